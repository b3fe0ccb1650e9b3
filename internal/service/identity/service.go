// Package identity decides whether a registration refers to a patient already
// on file. Matching is deliberately loose: any phone variant or the national
// id is enough, and the oldest active match wins.
package identity

import (
	"context"
	"fmt"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
)

// Decision is the resolver's answer. Exactly one of Patient or Create is set.
type Decision struct {
	Patient *model.Patient
	Create  bool
	Key     model.IdentityKey
}

type IdentityService interface {
	Resolve(ctx context.Context, phone, nationalID string, forceNew bool) (*Decision, error)
	// FindOrCreate stores p unless a patient matching the key already exists.
	// Re-running it with the same inputs never creates a second patient.
	FindOrCreate(ctx context.Context, p *model.Patient, key model.IdentityKey) (*model.Patient, bool, error)
	Normalize(phone, nationalID string) (canonicalPhone, normalizedID string)
}

type Service struct {
	repo   repository.PatientRepository
	rules  PhoneRules
	logger *logger.Logger
}

func NewService(repo repository.PatientRepository, rules PhoneRules, log *logger.Logger) *Service {
	if rules.CountryCode == "" && rules.TrunkPrefix == "" {
		rules = DefaultPhoneRules()
	}
	return &Service{repo: repo, rules: rules, logger: log}
}

func (s *Service) Normalize(phone, nationalID string) (string, string) {
	return s.rules.Canonical(phone), NormalizeNationalID(nationalID)
}

func (s *Service) Resolve(ctx context.Context, phone, nationalID string, forceNew bool) (*Decision, error) {
	key := s.rules.Key(phone, nationalID)
	if forceNew || key.IsEmpty() {
		return &Decision{Create: true, Key: key}, nil
	}

	existing, err := s.repo.FindFirstMatch(ctx, key)
	if err != nil {
		// A failed search must not turn into a duplicate patient.
		s.logger.Error(err, "patient identity search failed",
			"phone_variants", len(key.PhoneVariants),
			"has_national_id", key.NationalID != "")
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}
	if existing == nil {
		return &Decision{Create: true, Key: key}, nil
	}
	return &Decision{Patient: existing, Key: key}, nil
}

func (s *Service) FindOrCreate(ctx context.Context, p *model.Patient, key model.IdentityKey) (*model.Patient, bool, error) {
	stored, created, err := s.repo.CreateUnlessMatched(ctx, p, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create patient: %w", err)
	}
	if !created {
		s.logger.Info("concurrent registration matched existing patient",
			"patient_id", stored.ID.String(),
			"patient_number", stored.PatientNumber)
	}
	return stored, created, nil
}
