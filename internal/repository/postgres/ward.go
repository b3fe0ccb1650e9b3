package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

const wardColumns = `id, name, department_id, admin_id, total_beds, available_beds, created_at, updated_at`

const bedColumns = `id, ward_id, bed_number, status, occupant_id, admission_id, created_at, updated_at`

type wardRepository struct {
	BaseRepository
}

func NewWardRepository(base BaseRepository) repository.WardRepository {
	return &wardRepository{base}
}

func (r *wardRepository) Get(ctx context.Context, id uuid.UUID) (*model.Ward, error) {
	var w model.Ward
	if err := r.db.GetContext(ctx, &w, `SELECT `+wardColumns+` FROM wards WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "ward")
	}
	return &w, nil
}

func (r *wardRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM wards ORDER BY id`); err != nil {
		return nil, classify(err, "list wards")
	}
	return ids, nil
}

func (r *wardRepository) GetBed(ctx context.Context, id uuid.UUID) (*model.Bed, error) {
	var b model.Bed
	if err := r.db.GetContext(ctx, &b, `SELECT `+bedColumns+` FROM beds WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "bed")
	}
	return &b, nil
}

// Occupancy reads the ward and its beds from one repeatable-read snapshot.
func (r *wardRepository) Occupancy(ctx context.Context, wardID uuid.UUID) (*model.WardOccupancy, error) {
	occ := &model.WardOccupancy{}
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := r.withTxOptions(ctx, opts, func(tx *sqlx.Tx) error {
		var w model.Ward
		if err := tx.GetContext(ctx, &w, `SELECT `+wardColumns+` FROM wards WHERE id = $1`, wardID); err != nil {
			return notFound(err, "ward")
		}
		occ.Ward = &w
		return tx.SelectContext(ctx, &occ.Beds,
			`SELECT `+bedColumns+` FROM beds WHERE ward_id = $1 ORDER BY bed_number`, wardID)
	})
	if err != nil {
		return nil, err
	}
	return occ, nil
}

func lockBed(ctx context.Context, tx *sqlx.Tx, bedID uuid.UUID) (*model.Bed, error) {
	var b model.Bed
	err := tx.GetContext(ctx, &b, `SELECT `+bedColumns+` FROM beds WHERE id = $1 FOR UPDATE`, bedID)
	if err != nil {
		return nil, notFound(err, "bed")
	}
	return &b, nil
}

func adjustWardCounter(ctx context.Context, tx *sqlx.Tx, wardID uuid.UUID, delta int, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wards SET available_beds = available_beds + $2, updated_at = $3
		WHERE id = $1 AND available_beds + $2 BETWEEN 0 AND total_beds`, wardID, delta, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Internal(fmt.Errorf("ward %s available_beds out of range, reconcile required", wardID))
	}
	return nil
}

func (r *wardRepository) ReleaseBed(ctx context.Context, bedID uuid.UUID, at time.Time) (*model.Bed, error) {
	var released *model.Bed
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		b, err := lockBed(ctx, tx, bedID)
		if err != nil {
			return err
		}
		if b.Status != model.BedStatusOccupied {
			return errors.StateConflict(fmt.Sprintf("bed %s is %s, not occupied", b.BedNumber, b.Status))
		}
		if b.AdmissionID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE admissions SET discharged_at = $2, updated_at = $2 WHERE id = $1`,
				*b.AdmissionID, at); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE beds SET status = 'available', occupant_id = NULL, admission_id = NULL, updated_at = $2
			WHERE id = $1`, bedID, at); err != nil {
			return err
		}
		if err := adjustWardCounter(ctx, tx, b.WardID, 1, at); err != nil {
			return err
		}
		b.Status = model.BedStatusAvailable
		b.OccupantID = nil
		b.AdmissionID = nil
		b.UpdatedAt = at
		released = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (r *wardRepository) SetMaintenance(ctx context.Context, bedID uuid.UUID, on bool) (*model.Bed, error) {
	target, delta := model.BedStatusAvailable, 1
	if on {
		target, delta = model.BedStatusMaintenance, -1
	}
	var out *model.Bed
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		b, err := lockBed(ctx, tx, bedID)
		if err != nil {
			return err
		}
		out = b
		switch {
		case b.Status == target:
			return nil
		case b.Status == model.BedStatusOccupied:
			return errors.StateConflict(fmt.Sprintf("bed %s is occupied", b.BedNumber))
		}
		now := r.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE beds SET status = $2, updated_at = $3 WHERE id = $1`, bedID, target, now); err != nil {
			return err
		}
		if err := adjustWardCounter(ctx, tx, b.WardID, delta, now); err != nil {
			return err
		}
		b.Status = target
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *wardRepository) Reconcile(ctx context.Context, wardID uuid.UUID, repair bool) (*model.ReconcileResult, error) {
	res := &model.ReconcileResult{WardID: wardID}
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &res.Cached,
			`SELECT available_beds FROM wards WHERE id = $1 FOR UPDATE`, wardID); err != nil {
			return notFound(err, "ward")
		}
		if err := tx.GetContext(ctx, &res.Actual,
			`SELECT COUNT(*) FROM beds WHERE ward_id = $1 AND status = 'available'`, wardID); err != nil {
			return err
		}
		if !repair || res.Cached == res.Actual {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wards SET available_beds = $2, updated_at = $3 WHERE id = $1`,
			wardID, res.Actual, r.now()); err != nil {
			return err
		}
		res.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
