// Package notification records user notifications and queues them for
// delivery. Delivery itself happens in the outbox worker; Send only has to
// commit the notification and its outbox event together.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type Service interface {
	Send(ctx context.Context, recipientID uuid.UUID, title, message, entityType string, entityID uuid.UUID) error
}

// Payload is the body of a notification.created outbox event.
type Payload struct {
	NotificationID    uuid.UUID `json:"notification_id"`
	RecipientID       uuid.UUID `json:"recipient_id"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	RelatedEntityType string    `json:"related_entity_type"`
	RelatedEntityID   uuid.UUID `json:"related_entity_id"`
	CreatedAt         time.Time `json:"created_at"`
}

type service struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

func NewService(repo repository.NotificationRepository, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}
}

func (s *service) Send(ctx context.Context, recipientID uuid.UUID, title, message, entityType string, entityID uuid.UUID) error {
	if err := validate(recipientID, title, entityType); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	n := &model.Notification{
		ID:                uuid.New(),
		RecipientID:       recipientID,
		Title:             title,
		Message:           message,
		RelatedEntityType: entityType,
		RelatedEntityID:   entityID,
		Status:            model.NotificationStatusPending,
		CreatedAt:         s.now(),
	}

	payload, err := json.Marshal(Payload{
		NotificationID:    n.ID,
		RecipientID:       n.RecipientID,
		Title:             n.Title,
		Message:           n.Message,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		CreatedAt:         n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventNotificationCreated,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
	}
	if err := s.repo.Enqueue(ctx, n, event); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func validate(recipientID uuid.UUID, title, entityType string) error {
	if recipientID == uuid.Nil {
		return errors.Validation("recipient is required", nil)
	}
	if strings.TrimSpace(title) == "" {
		return errors.Validation("title is required", nil)
	}
	switch entityType {
	case model.EntityAdmission, model.EntityVisit:
		return nil
	}
	return errors.Validation(fmt.Sprintf("unknown related entity type %q", entityType), nil)
}
