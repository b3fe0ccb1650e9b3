package postgres

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

const patientColumns = `id, patient_number, first_name, last_name, date_of_birth, gender,
	national_id, national_id_normalized, phone, phone_normalized, email, address, city,
	emergency_contact, allergies, medical_history, active, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var p model.Patient
	err := r.db.GetContext(ctx, &p, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return &p, nil
}

const firstMatchQuery = `SELECT ` + patientColumns + ` FROM patients
	WHERE active
	AND (phone_normalized = ANY($1) OR ($2 <> '' AND national_id_normalized = $2))
	ORDER BY created_at, id
	LIMIT 1`

func (r *patientRepository) FindFirstMatch(ctx context.Context, key model.IdentityKey) (*model.Patient, error) {
	return firstMatch(ctx, r.db, key)
}

func firstMatch(ctx context.Context, q sqlx.QueryerContext, key model.IdentityKey) (*model.Patient, error) {
	var p model.Patient
	err := sqlx.GetContext(ctx, q, &p, firstMatchQuery, pq.Array(key.PhoneVariants), key.NationalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "find patient")
	}
	return &p, nil
}

func (r *patientRepository) CreateUnlessMatched(ctx context.Context, p *model.Patient, key model.IdentityKey) (*model.Patient, bool, error) {
	var (
		stored  *model.Patient
		created bool
	)
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if !key.IsEmpty() {
			if err := lockKeys(ctx, tx, identityLockKeys(key)); err != nil {
				return err
			}
			existing, err := firstMatch(ctx, tx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				stored = existing
				return nil
			}
		}

		now := r.now()
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		query := `
			INSERT INTO patients (` + patientColumns + `)
			VALUES (:id, :patient_number, :first_name, :last_name, :date_of_birth, :gender,
				:national_id, :national_id_normalized, :phone, :phone_normalized, :email, :address, :city,
				:emergency_contact, :allergies, :medical_history, :active, :created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return err
		}
		stored = p
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func identityLockKeys(key model.IdentityKey) []string {
	keys := make([]string, 0, len(key.PhoneVariants)+1)
	for _, v := range key.PhoneVariants {
		keys = append(keys, "patient:phone:"+v)
	}
	if key.NationalID != "" {
		keys = append(keys, "patient:nid:"+key.NationalID)
	}
	sort.Strings(keys)
	return keys
}

// UpdateContact only overwrites columns for which the update carries a value.
func (r *patientRepository) UpdateContact(ctx context.Context, id uuid.UUID, update model.ContactUpdate) (*model.Patient, error) {
	query := `
		UPDATE patients SET
			address = COALESCE(NULLIF($2, ''), address),
			email = COALESCE(NULLIF($3, ''), email),
			emergency_contact = COALESCE(NULLIF($4, ''), emergency_contact),
			city = COALESCE(NULLIF($5, ''), city),
			updated_at = $6
		WHERE id = $1
		RETURNING ` + patientColumns
	var p model.Patient
	err := r.db.GetContext(ctx, &p, query, id,
		update.Address, update.Email, update.EmergencyContact, update.City, r.now())
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return &p, nil
}

func (r *patientRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE patients SET active = FALSE, updated_at = $2 WHERE id = $1`, id, r.now())
	if err != nil {
		return classify(err, "deactivate patient")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "deactivate patient")
	}
	if n == 0 {
		return errors.NotFound("patient", nil)
	}
	return nil
}
