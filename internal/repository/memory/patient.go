package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

type counterRepo struct{ s *Store }

func (r counterRepo) Increment(ctx context.Context, scope string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[scope]++
	return r.s.counters[scope], nil
}

type patientRepo struct{ s *Store }

func (r patientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", nil)
	}
	cp := *p
	return &cp, nil
}

func (r patientRepo) FindFirstMatch(ctx context.Context, key model.IdentityKey) (*model.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p := r.s.firstMatchLocked(key); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r patientRepo) CreateUnlessMatched(ctx context.Context, p *model.Patient, key model.IdentityKey) (*model.Patient, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !key.IsEmpty() {
		if existing := r.s.firstMatchLocked(key); existing != nil {
			cp := *existing
			return &cp, false, nil
		}
	}
	r.s.stamp(&p.Base)
	stored := *p
	r.s.patients[p.ID] = &stored
	r.s.patientOrder = append(r.s.patientOrder, p.ID)
	cp := stored
	return &cp, true, nil
}

func (r patientRepo) UpdateContact(ctx context.Context, id uuid.UUID, update model.ContactUpdate) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", nil)
	}
	if update.Apply(p) {
		p.UpdatedAt = r.s.now()
	}
	cp := *p
	return &cp, nil
}

func (r patientRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return errors.NotFound("patient", nil)
	}
	p.Active = false
	p.UpdatedAt = r.s.now()
	return nil
}

// firstMatchLocked walks patients in creation order. Caller holds s.mu.
func (s *Store) firstMatchLocked(key model.IdentityKey) *model.Patient {
	for _, id := range s.patientOrder {
		if p := s.patients[id]; key.Matches(p) {
			return p
		}
	}
	return nil
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.departments[id]
	if !ok {
		return nil, errors.NotFound("department", nil)
	}
	cp := *d
	return &cp, nil
}

type doctorRepo struct{ s *Store }

func (r doctorRepo) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.doctors[id]
	if !ok {
		return nil, errors.NotFound("doctor", nil)
	}
	cp := *d
	return &cp, nil
}

// ListActive keeps insertion order, which is the fetch order the balancer's
// tie-break depends on.
func (r doctorRepo) ListActive(ctx context.Context, departmentID uuid.UUID) ([]*model.Doctor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Doctor
	for _, id := range r.s.doctorOrder {
		d := r.s.doctors[id]
		if d.DepartmentID == departmentID && d.Active {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SetDoctorActive toggles a doctor's roster membership.
func (s *Store) SetDoctorActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.doctors[id]; ok {
		d.Active = active
	}
}
