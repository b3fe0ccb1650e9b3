package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

const visitColumns = `id, visit_number, patient_id, department_id, doctor_id, chief_complaint,
	status, priority, check_in_at, created_at, updated_at`

const tokenColumns = `id, visit_id, department_id, token_number, issue_date, status, created_at, updated_at`

type visitRepository struct {
	BaseRepository
}

func NewVisitRepository(base BaseRepository) repository.VisitRepository {
	return &visitRepository{base}
}

func (r *visitRepository) CreateWithToken(ctx context.Context, visit *model.Visit, token *model.Token) error {
	now := r.now()
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	visit.CreatedAt, visit.UpdatedAt = now, now
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.VisitID = visit.ID
	token.CreatedAt, token.UpdatedAt = now, now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO visits (`+visitColumns+`)
			VALUES (:id, :visit_number, :patient_id, :department_id, :doctor_id, :chief_complaint,
				:status, :priority, :check_in_at, :created_at, :updated_at)`, visit); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO visit_tokens (`+tokenColumns+`)
			VALUES (:id, :visit_id, :department_id, :token_number, :issue_date, :status, :created_at, :updated_at)`, token)
		return err
	})
}

func (r *visitRepository) Get(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	var v model.Visit
	if err := r.db.GetContext(ctx, &v, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "visit")
	}
	return &v, nil
}

func (r *visitRepository) GetToken(ctx context.Context, visitID uuid.UUID) (*model.Token, error) {
	var t model.Token
	if err := r.db.GetContext(ctx, &t, `SELECT `+tokenColumns+` FROM visit_tokens WHERE visit_id = $1`, visitID); err != nil {
		return nil, notFound(err, "token")
	}
	return &t, nil
}

// DoctorLoads is one grouped read, so all doctors are counted against the same snapshot.
func (r *visitRepository) DoctorLoads(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]model.DoctorLoad, error) {
	start := model.StartOfDay(day)
	var loads []model.DoctorLoad
	err := r.db.SelectContext(ctx, &loads, `
		SELECT doctor_id, COUNT(*) AS visits
		FROM visits
		WHERE department_id = $1
		AND doctor_id IS NOT NULL
		AND check_in_at >= $2 AND check_in_at < $3
		GROUP BY doctor_id`, departmentID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, classify(err, "doctor loads")
	}
	return loads, nil
}

func (r *visitRepository) CountWaitingAhead(ctx context.Context, departmentID uuid.UUID, doctorID *uuid.UUID, before time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM visits
		WHERE department_id = $1
		AND status = 'waiting'
		AND check_in_at >= $2 AND check_in_at < $3
		AND ($4::uuid IS NULL OR doctor_id = $4)`,
		departmentID, model.StartOfDay(before), before, doctorID)
	if err != nil {
		return 0, classify(err, "count waiting")
	}
	return n, nil
}

func (r *visitRepository) AdvanceStatus(ctx context.Context, visitID uuid.UUID, from, to model.VisitStatus) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx,
			`UPDATE visits SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
			visitID, from, to, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			var current model.VisitStatus
			if err := tx.GetContext(ctx, &current, `SELECT status FROM visits WHERE id = $1`, visitID); err != nil {
				return notFound(err, "visit")
			}
			return errors.StateConflict(fmt.Sprintf("visit is %s, not %s", current, from))
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE visit_tokens SET status = $2, updated_at = $3 WHERE visit_id = $1`, visitID, to, now)
		return err
	})
}
