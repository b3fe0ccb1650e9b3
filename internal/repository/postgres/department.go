package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
)

type departmentRepository struct {
	BaseRepository
}

func NewDepartmentRepository(base BaseRepository) repository.DepartmentRepository {
	return &departmentRepository{base}
}

func (r *departmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	var d model.Department
	err := r.db.GetContext(ctx, &d,
		`SELECT id, code, name, created_at, updated_at FROM departments WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "department")
	}
	return &d, nil
}

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

const doctorColumns = `id, department_id, name, email, active, created_at, updated_at`

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var d model.Doctor
	err := r.db.GetContext(ctx, &d, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "doctor")
	}
	return &d, nil
}

// ListActive orders by name then id; the balancer's first-seen tie-break
// relies on this order being stable.
func (r *doctorRepository) ListActive(ctx context.Context, departmentID uuid.UUID) ([]*model.Doctor, error) {
	var doctors []*model.Doctor
	err := r.db.SelectContext(ctx, &doctors, `
		SELECT `+doctorColumns+` FROM doctors
		WHERE department_id = $1 AND active
		ORDER BY name, id`, departmentID)
	if err != nil {
		return nil, classify(err, "list doctors")
	}
	return doctors, nil
}
