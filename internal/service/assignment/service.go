// Package assignment picks the doctor a new visit goes to.
//
// The rule is the least same-day workload in the department. Ties go to the
// doctor listed first by the roster query; this is first-seen, not round
// robin, so with equal loads the same doctor keeps winning until someone else
// is strictly less busy.
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
)

type BalancerService interface {
	// Pick returns the chosen doctor, or ok=false when the department has no
	// active doctor. An empty roster is not an error.
	Pick(ctx context.Context, departmentID uuid.UUID, day time.Time) (doctorID uuid.UUID, ok bool, err error)
	Invalidate(departmentID uuid.UUID)
}

type Service struct {
	doctors repository.DoctorRepository
	visits  repository.VisitRepository
	roster  *cache.Cache
	logger  *logger.Logger
}

// NewService caches each department's active roster for rosterTTL. A zero TTL
// reads the roster on every pick.
func NewService(doctors repository.DoctorRepository, visits repository.VisitRepository, rosterTTL time.Duration, log *logger.Logger) *Service {
	s := &Service{doctors: doctors, visits: visits, logger: log}
	if rosterTTL > 0 {
		s.roster = cache.New(rosterTTL, 2*rosterTTL)
	}
	return s
}

func (s *Service) Pick(ctx context.Context, departmentID uuid.UUID, day time.Time) (uuid.UUID, bool, error) {
	roster, err := s.activeRoster(ctx, departmentID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(roster) == 0 {
		s.logger.Warn(nil, "no active doctor in department", "department_id", departmentID.String())
		return uuid.Nil, false, nil
	}

	// Counts can be stale by the time the visit is written; a slightly uneven
	// spread under bursts is accepted.
	loads, err := s.visits.DoctorLoads(ctx, departmentID, day)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read doctor workload: %w", err)
	}
	counts := make(map[uuid.UUID]int, len(loads))
	for _, l := range loads {
		counts[l.DoctorID] = l.Visits
	}

	return LeastLoaded(roster, counts), true, nil
}

// LeastLoaded returns the first doctor in roster order with the strict
// minimum count. roster must not be empty.
func LeastLoaded(roster []*model.Doctor, counts map[uuid.UUID]int) uuid.UUID {
	best := roster[0].ID
	bestCount := counts[best]
	for _, d := range roster[1:] {
		if c := counts[d.ID]; c < bestCount {
			best, bestCount = d.ID, c
		}
	}
	return best
}

func (s *Service) Invalidate(departmentID uuid.UUID) {
	if s.roster != nil {
		s.roster.Delete(departmentID.String())
	}
}

func (s *Service) activeRoster(ctx context.Context, departmentID uuid.UUID) ([]*model.Doctor, error) {
	key := departmentID.String()
	if s.roster != nil {
		if v, found := s.roster.Get(key); found {
			return v.([]*model.Doctor), nil
		}
	}
	roster, err := s.doctors.ListActive(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active doctors: %w", err)
	}
	if s.roster != nil {
		s.roster.SetDefault(key, roster)
	}
	return roster, nil
}
