package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type notificationRepo struct{ s *Store }

func (r notificationRepo) Enqueue(ctx context.Context, n *model.Notification, event *model.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	nc := *n
	r.s.notifications[n.ID] = &nc
	if event != nil {
		r.s.insertEventLocked(event)
	}
	return nil
}

func (r notificationRepo) MarkStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return errors.NotFound("notification", nil)
	}
	n.Status = status
	return nil
}

type outboxRepo struct{ s *Store }

func (s *Store) insertEventLocked(e *model.OutboxEvent) {
	now := s.now()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = model.OutboxStatusPending
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	s.outbox[e.ID] = &cp
	s.outboxOrder = append(s.outboxOrder, e.ID)
}

func (r outboxRepo) Create(ctx context.Context, e *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.insertEventLocked(e)
	return nil
}

func (r outboxRepo) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var out []*model.OutboxEvent
	for _, id := range r.s.outboxOrder {
		if len(out) >= limit {
			break
		}
		e, ok := r.s.outbox[id]
		if !ok {
			continue
		}
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusRetry && (e.RetryAt == nil || !e.RetryAt.After(now)))
		if !due {
			continue
		}
		e.Status = model.OutboxStatusClaimed
		e.UpdatedAt = now
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent, now time.Time) {
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
	})
}

func (r outboxRepo) MarkRetry(ctx context.Context, id uuid.UUID, msg string, retryAt time.Time) error {
	return r.update(id, func(e *model.OutboxEvent, _ time.Time) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &msg
		e.RetryCount++
		e.RetryAt = &retryAt
	})
}

func (r outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	return r.update(id, func(e *model.OutboxEvent, _ time.Time) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &msg
	})
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	kept := r.s.outboxOrder[:0]
	for _, id := range r.s.outboxOrder {
		e := r.s.outbox[id]
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	r.s.outboxOrder = kept
	return n, nil
}

func (r outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent, time.Time)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return errors.NotFound("outbox event", nil)
	}
	now := r.s.now()
	fn(e, now)
	e.UpdatedAt = now
	return nil
}

// Events returns a snapshot of the outbox in insertion order.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		cp := *s.outbox[id]
		out = append(out, &cp)
	}
	return out
}
