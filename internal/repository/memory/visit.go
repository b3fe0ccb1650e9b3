package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type visitRepo struct{ s *Store }

func (r visitRepo) CreateWithToken(ctx context.Context, visit *model.Visit, token *model.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.tokens {
		if t.DepartmentID == token.DepartmentID && t.IssueDate == token.IssueDate && t.TokenNumber == token.TokenNumber {
			return errors.StateConflict(fmt.Sprintf("token %d already issued for %s", token.TokenNumber, token.IssueDate))
		}
	}

	r.s.stamp(&visit.Base)
	token.VisitID = visit.ID
	r.s.stamp(&token.Base)

	v := *visit
	t := *token
	r.s.visits[v.ID] = &v
	r.s.visitOrder = append(r.s.visitOrder, v.ID)
	r.s.tokens[v.ID] = &t
	return nil
}

func (r visitRepo) Get(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok {
		return nil, errors.NotFound("visit", nil)
	}
	cp := *v
	return &cp, nil
}

func (r visitRepo) GetToken(ctx context.Context, visitID uuid.UUID) (*model.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[visitID]
	if !ok {
		return nil, errors.NotFound("token", nil)
	}
	cp := *t
	return &cp, nil
}

func (r visitRepo) DoctorLoads(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]model.DoctorLoad, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := model.DateKey(day)
	counts := make(map[uuid.UUID]int)
	var order []uuid.UUID
	for _, id := range r.s.visitOrder {
		v := r.s.visits[id]
		if v.DepartmentID != departmentID || v.DoctorID == nil || model.DateKey(v.CheckInAt) != key {
			continue
		}
		if _, seen := counts[*v.DoctorID]; !seen {
			order = append(order, *v.DoctorID)
		}
		counts[*v.DoctorID]++
	}
	loads := make([]model.DoctorLoad, 0, len(order))
	for _, id := range order {
		loads = append(loads, model.DoctorLoad{DoctorID: id, Visits: counts[id]})
	}
	return loads, nil
}

func (r visitRepo) CountWaitingAhead(ctx context.Context, departmentID uuid.UUID, doctorID *uuid.UUID, before time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := model.DateKey(before)
	n := 0
	for _, id := range r.s.visitOrder {
		v := r.s.visits[id]
		if v.DepartmentID != departmentID || v.Status != model.VisitStatusWaiting {
			continue
		}
		if model.DateKey(v.CheckInAt) != key || !v.CheckInAt.Before(before) {
			continue
		}
		if doctorID != nil && (v.DoctorID == nil || *v.DoctorID != *doctorID) {
			continue
		}
		n++
	}
	return n, nil
}

func (r visitRepo) AdvanceStatus(ctx context.Context, visitID uuid.UUID, from, to model.VisitStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[visitID]
	if !ok {
		return errors.NotFound("visit", nil)
	}
	if v.Status != from {
		return errors.StateConflict(fmt.Sprintf("visit is %s, not %s", v.Status, from))
	}
	now := r.s.now()
	v.Status = to
	v.UpdatedAt = now
	if t, ok := r.s.tokens[visitID]; ok {
		t.Status = to
		t.UpdatedAt = now
	}
	return nil
}
