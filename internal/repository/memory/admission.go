package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type admissionRepo struct{ s *Store }

func (r admissionRepo) Create(ctx context.Context, a *model.Admission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stamp(&a.Base)
	cp := *a
	r.s.admissions[a.ID] = &cp
	return nil
}

func (r admissionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.admissions[id]
	if !ok {
		return nil, errors.NotFound("admission", nil)
	}
	cp := *a
	return &cp, nil
}

func (r admissionRepo) ListByStatus(ctx context.Context, wardID uuid.UUID, statuses []model.AdmissionStatus) ([]*model.Admission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	want := make(map[model.AdmissionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*model.Admission
	for _, a := range r.s.admissions {
		if a.WardID == wardID && want[a.Status] {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Approve checks every condition before writing anything, so a failure leaves
// the bed, the ward and the admission untouched.
func (r admissionRepo) Approve(ctx context.Context, ap *model.Approval) (*model.Admission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.admissions[ap.AdmissionID]
	if !ok {
		return nil, errors.NotFound("admission", nil)
	}

	// The bed is claimed before the admission row is checked, so two approvals
	// racing for the same bed resolve as BedUnavailable for the loser.
	var bed *model.Bed
	if ap.BedID != nil {
		bed, ok = r.s.beds[*ap.BedID]
		if !ok {
			return nil, errors.NotFound("bed", nil)
		}
		if bed.WardID != a.WardID {
			return nil, errors.Validation("bed does not belong to the admission's ward", nil)
		}
		if bed.Status != model.BedStatusAvailable {
			return nil, errors.BedUnavailable(bed.BedNumber)
		}
	}

	if !a.Status.IsPendingEquivalent() {
		return nil, errors.StateConflict(fmt.Sprintf("admission is already %s", a.Status))
	}

	at := ap.DecidedAt
	if bed != nil {
		patient := ap.PatientID
		admission := a.ID
		bed.Status = model.BedStatusOccupied
		bed.OccupantID = &patient
		bed.AdmissionID = &admission
		bed.UpdatedAt = at

		w := r.s.wards[bed.WardID]
		w.AvailableBeds--
		w.UpdatedAt = at

		bedID := bed.ID
		a.BedID = &bedID
	}
	decidedBy := ap.DecidedBy
	a.Status = model.AdmissionStatusApproved
	a.AssignedDoctorID = ap.AssignedDoctorID
	a.Notes = ap.Notes
	a.DecidedBy = &decidedBy
	a.DecidedAt = &at
	a.UpdatedAt = at

	cp := *a
	return &cp, nil
}

func (r admissionRepo) Reject(ctx context.Context, rej *model.Rejection) (*model.Admission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.admissions[rej.AdmissionID]
	if !ok {
		return nil, errors.NotFound("admission", nil)
	}
	if !a.Status.IsPendingEquivalent() {
		return nil, errors.StateConflict(fmt.Sprintf("admission is already %s", a.Status))
	}
	at := rej.DecidedAt
	decidedBy := rej.DecidedBy
	a.Status = model.AdmissionStatusRejected
	a.Notes = rej.Notes
	a.DecidedBy = &decidedBy
	a.DecidedAt = &at
	a.UpdatedAt = at

	cp := *a
	return &cp, nil
}
