// Package bed owns the ward bed ledger. Every bed status flip goes through a
// single repository transaction that also moves the ward's available_beds
// counter, so the counter always equals the number of available beds.
package bed

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

type LedgerService interface {
	// Allocate binds the approval's bed (if any) and approves the admission in
	// one unit of work.
	Allocate(ctx context.Context, approval *model.Approval) (*model.Admission, error)
	Discharge(ctx context.Context, bedID, actorID uuid.UUID) (*model.Bed, error)
	SetMaintenance(ctx context.Context, bedID, actorID uuid.UUID, on bool) (*model.Bed, error)
	Occupancy(ctx context.Context, wardID uuid.UUID) (*model.WardOccupancy, error)
	Reconcile(ctx context.Context, wardID, actorID uuid.UUID) (*model.ReconcileResult, error)
}

type Service struct {
	wards      repository.WardRepository
	admissions repository.AdmissionRepository
	logger     *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	attempts        int
	initialInterval time.Duration
}

func NewService(
	wards repository.WardRepository,
	admissions repository.AdmissionRepository,
	attempts int,
	log *logger.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) *Service {
	if attempts <= 0 {
		attempts = 3
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		wards:           wards,
		admissions:      admissions,
		logger:          log,
		metrics:         m,
		now:             now,
		attempts:        attempts,
		initialInterval: 20 * time.Millisecond,
	}
}

func (s *Service) Allocate(ctx context.Context, ap *model.Approval) (*model.Admission, error) {
	var out *model.Admission
	err := s.retry(ctx, "allocate", func() error {
		a, err := s.admissions.Approve(ctx, ap)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ap.BedID != nil {
		s.metrics.BedTransitions.WithLabelValues(string(model.BedStatusAvailable), string(model.BedStatusOccupied)).Inc()
	}
	return out, nil
}

// Discharge frees an occupied bed and stamps the admission's discharge time.
func (s *Service) Discharge(ctx context.Context, bedID, actorID uuid.UUID) (*model.Bed, error) {
	if _, err := s.authorize(ctx, bedID, actorID); err != nil {
		return nil, err
	}
	var out *model.Bed
	err := s.retry(ctx, "discharge", func() error {
		b, err := s.wards.ReleaseBed(ctx, bedID, s.now())
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BedTransitions.WithLabelValues(string(model.BedStatusOccupied), string(model.BedStatusAvailable)).Inc()
	s.logger.Info("bed discharged", "bed_id", bedID.String(), "ward_id", out.WardID.String())
	return out, nil
}

func (s *Service) SetMaintenance(ctx context.Context, bedID, actorID uuid.UUID, on bool) (*model.Bed, error) {
	before, err := s.authorize(ctx, bedID, actorID)
	if err != nil {
		return nil, err
	}
	var out *model.Bed
	err = s.retry(ctx, "maintenance", func() error {
		b, err := s.wards.SetMaintenance(ctx, bedID, on)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if before.Status != out.Status {
		s.metrics.BedTransitions.WithLabelValues(string(before.Status), string(out.Status)).Inc()
	}
	return out, nil
}

func (s *Service) Occupancy(ctx context.Context, wardID uuid.UUID) (*model.WardOccupancy, error) {
	occ, err := s.wards.Occupancy(ctx, wardID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ward occupancy: %w", err)
	}
	return occ, nil
}

// Reconcile recounts the ward's available beds and repairs the cached counter
// if it drifted. Drift means some write bypassed the ledger, so it is logged
// as an error.
func (s *Service) Reconcile(ctx context.Context, wardID, actorID uuid.UUID) (*model.ReconcileResult, error) {
	ward, err := s.wards.Get(ctx, wardID)
	if err != nil {
		return nil, err
	}
	if ward.AdminID != actorID {
		return nil, errors.Unauthorized("only the ward administrator can reconcile this ward")
	}
	res, err := s.wards.Reconcile(ctx, wardID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ward: %w", err)
	}
	if res.Repaired {
		s.logger.Error(nil, "ward available_beds drifted",
			"ward_id", wardID.String(), "cached", res.Cached, "actual", res.Actual)
	}
	return res, nil
}

func (s *Service) authorize(ctx context.Context, bedID, actorID uuid.UUID) (*model.Bed, error) {
	b, err := s.wards.GetBed(ctx, bedID)
	if err != nil {
		return nil, err
	}
	ward, err := s.wards.Get(ctx, b.WardID)
	if err != nil {
		return nil, err
	}
	if ward.AdminID != actorID {
		return nil, errors.Unauthorized("only the ward administrator can change this bed")
	}
	return b, nil
}

// retry reruns op while it fails with a transient storage error. The
// repository transaction rolls back on failure, so a rerun starts clean.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.attempts-1)), ctx)

	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		s.metrics.LedgerRetries.Inc()
		s.logger.Warn(err, "bed ledger transaction contended", "op", op, "attempt", attempt)
		return err
	}, policy)
}
