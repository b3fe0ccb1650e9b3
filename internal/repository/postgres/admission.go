package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

const admissionColumns = `id, visit_id, patient_id, ward_id, requested_by, status, reason, bed_id,
	assigned_doctor_id, notes, decided_by, decided_at, discharged_at, created_at, updated_at`

type admissionRepository struct {
	BaseRepository
}

func NewAdmissionRepository(base BaseRepository) repository.AdmissionRepository {
	return &admissionRepository{base}
}

func (r *admissionRepository) Create(ctx context.Context, a *model.Admission) error {
	now := r.now()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO admissions (`+admissionColumns+`)
		VALUES (:id, :visit_id, :patient_id, :ward_id, :requested_by, :status, :reason, :bed_id,
			:assigned_doctor_id, :notes, :decided_by, :decided_at, :discharged_at, :created_at, :updated_at)`, a)
	if err != nil {
		return classify(err, "create admission")
	}
	return nil
}

func (r *admissionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	var a model.Admission
	if err := r.db.GetContext(ctx, &a, `SELECT `+admissionColumns+` FROM admissions WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "admission")
	}
	return &a, nil
}

func (r *admissionRepository) ListByStatus(ctx context.Context, wardID uuid.UUID, statuses []model.AdmissionStatus) ([]*model.Admission, error) {
	args := make([]string, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	var out []*model.Admission
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+admissionColumns+` FROM admissions
		WHERE ward_id = $1 AND status = ANY($2)
		ORDER BY created_at, id`, wardID, pq.Array(args))
	if err != nil {
		return nil, classify(err, "list admissions")
	}
	return out, nil
}

// Approve runs the bed binding as conditional writes in one transaction. The bed
// row is claimed first: a concurrent approval for the same bed blocks on it and
// then fails its status = 'available' predicate.
func (r *admissionRepository) Approve(ctx context.Context, ap *model.Approval) (*model.Admission, error) {
	var approved model.Admission
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if ap.BedID != nil {
			if err := claimBed(ctx, tx, ap); err != nil {
				return err
			}
			if err := adjustWardCounter(ctx, tx, ap.WardID, -1, ap.DecidedAt); err != nil {
				return err
			}
		}
		err := tx.GetContext(ctx, &approved, `
			UPDATE admissions SET
				status = 'approved',
				bed_id = $2,
				assigned_doctor_id = $3,
				notes = $4,
				decided_by = $5,
				decided_at = $6,
				updated_at = $6
			WHERE id = $1 AND status = ANY($7)
			RETURNING `+admissionColumns,
			ap.AdmissionID, ap.BedID, ap.AssignedDoctorID, ap.Notes, ap.DecidedBy, ap.DecidedAt,
			pq.Array(model.PendingEquivalentStrings()))
		if errors.Is(err, sql.ErrNoRows) {
			return decidedConflict(ctx, tx, ap.AdmissionID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &approved, nil
}

func claimBed(ctx context.Context, tx *sqlx.Tx, ap *model.Approval) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE beds SET status = 'occupied', occupant_id = $2, admission_id = $3, updated_at = $4
		WHERE id = $1 AND ward_id = $5 AND status = 'available'`,
		*ap.BedID, ap.PatientID, ap.AdmissionID, ap.DecidedAt, ap.WardID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var b model.Bed
	if err := tx.GetContext(ctx, &b, `SELECT `+bedColumns+` FROM beds WHERE id = $1`, *ap.BedID); err != nil {
		return notFound(err, "bed")
	}
	if b.WardID != ap.WardID {
		return errors.Validation("bed does not belong to the admission's ward", nil)
	}
	return errors.BedUnavailable(b.BedNumber)
}

func decidedConflict(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var status model.AdmissionStatus
	if err := tx.GetContext(ctx, &status, `SELECT status FROM admissions WHERE id = $1`, id); err != nil {
		return notFound(err, "admission")
	}
	return errors.StateConflict(fmt.Sprintf("admission is already %s", status))
}

func (r *admissionRepository) Reject(ctx context.Context, rej *model.Rejection) (*model.Admission, error) {
	var rejected model.Admission
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &rejected, `
			UPDATE admissions SET
				status = 'rejected',
				notes = $2,
				decided_by = $3,
				decided_at = $4,
				updated_at = $4
			WHERE id = $1 AND status = ANY($5)
			RETURNING `+admissionColumns,
			rej.AdmissionID, rej.Notes, rej.DecidedBy, rej.DecidedAt,
			pq.Array(model.PendingEquivalentStrings()))
		if errors.Is(err, sql.ErrNoRows) {
			return decidedConflict(ctx, tx, rej.AdmissionID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rejected, nil
}
