package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type wardRepo struct{ s *Store }

func (r wardRepo) Get(ctx context.Context, id uuid.UUID) (*model.Ward, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wards[id]
	if !ok {
		return nil, errors.NotFound("ward", nil)
	}
	cp := *w
	return &cp, nil
}

func (r wardRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.s.wards))
	for id := range r.s.wards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r wardRepo) GetBed(ctx context.Context, id uuid.UUID) (*model.Bed, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.beds[id]
	if !ok {
		return nil, errors.NotFound("bed", nil)
	}
	cp := *b
	return &cp, nil
}

func (r wardRepo) Occupancy(ctx context.Context, wardID uuid.UUID) (*model.WardOccupancy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wards[wardID]
	if !ok {
		return nil, errors.NotFound("ward", nil)
	}
	wc := *w
	occ := &model.WardOccupancy{Ward: &wc}
	for _, id := range r.s.bedOrder {
		b := r.s.beds[id]
		if b.WardID == wardID {
			cp := *b
			occ.Beds = append(occ.Beds, &cp)
		}
	}
	return occ, nil
}

func (r wardRepo) ReleaseBed(ctx context.Context, bedID uuid.UUID, at time.Time) (*model.Bed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.beds[bedID]
	if !ok {
		return nil, errors.NotFound("bed", nil)
	}
	if b.Status != model.BedStatusOccupied {
		return nil, errors.StateConflict(fmt.Sprintf("bed %s is %s, not occupied", b.BedNumber, b.Status))
	}
	w := r.s.wards[b.WardID]

	if b.AdmissionID != nil {
		if a, ok := r.s.admissions[*b.AdmissionID]; ok {
			stamp := at
			a.DischargedAt = &stamp
			a.UpdatedAt = at
		}
	}
	b.Status = model.BedStatusAvailable
	b.OccupantID = nil
	b.AdmissionID = nil
	b.UpdatedAt = at
	w.AvailableBeds++
	w.UpdatedAt = at

	cp := *b
	return &cp, nil
}

func (r wardRepo) SetMaintenance(ctx context.Context, bedID uuid.UUID, on bool) (*model.Bed, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.beds[bedID]
	if !ok {
		return nil, errors.NotFound("bed", nil)
	}
	target := model.BedStatusAvailable
	delta := 1
	if on {
		target = model.BedStatusMaintenance
		delta = -1
	}
	switch {
	case b.Status == target:
		cp := *b
		return &cp, nil
	case b.Status == model.BedStatusOccupied:
		return nil, errors.StateConflict(fmt.Sprintf("bed %s is occupied", b.BedNumber))
	}

	now := r.s.now()
	b.Status = target
	b.UpdatedAt = now
	w := r.s.wards[b.WardID]
	w.AvailableBeds += delta
	w.UpdatedAt = now

	cp := *b
	return &cp, nil
}

func (r wardRepo) Reconcile(ctx context.Context, wardID uuid.UUID, repair bool) (*model.ReconcileResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.wards[wardID]
	if !ok {
		return nil, errors.NotFound("ward", nil)
	}
	actual := 0
	for _, b := range r.s.beds {
		if b.WardID == wardID && b.Status == model.BedStatusAvailable {
			actual++
		}
	}
	res := &model.ReconcileResult{WardID: wardID, Cached: w.AvailableBeds, Actual: actual}
	if repair && w.AvailableBeds != actual {
		w.AvailableBeds = actual
		w.UpdatedAt = r.s.now()
		res.Repaired = true
	}
	return res, nil
}

// CorruptWardCounter overwrites the cached counter without touching beds.
// Only reconciliation tests use it.
func (s *Store) CorruptWardCounter(wardID uuid.UUID, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wards[wardID]; ok {
		w.AvailableBeds = value
	}
}
