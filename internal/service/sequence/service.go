// Package sequence issues per-scope counters for patient numbers, visit numbers
// and department tokens. Values are unique and strictly increasing within a
// scope; gaps are allowed (a number issued to a registration that later fails
// is never reused).
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-intake/internal/model"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/errors"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

const (
	KindPatient = "patient"
	KindVisit   = "visit"
	KindToken   = "token"
)

// DefaultLimit is the largest value a three digit number can carry.
const DefaultLimit int64 = 999

type Config struct {
	MaxAttempts     int
	Limit           int64
	InitialInterval time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Limit: DefaultLimit, InitialInterval: 10 * time.Millisecond}
}

type SequenceService interface {
	Next(ctx context.Context, scope string) (int64, error)
	NextPatientNumber(ctx context.Context, at time.Time) (string, error)
	NextVisitNumber(ctx context.Context, at time.Time) (string, error)
	NextToken(ctx context.Context, departmentID uuid.UUID, at time.Time) (int, error)
}

type Service struct {
	store   repository.CounterStore
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(store repository.CounterStore, cfg Config, log *logger.Logger, m *metrics.Metrics) *Service {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	return &Service{store: store, cfg: cfg, logger: log, metrics: m}
}

// Next returns the next value in scope. Transient storage errors are retried
// with exponential backoff up to MaxAttempts; anything else is returned at once.
func (s *Service) Next(ctx context.Context, scope string) (int64, error) {
	kind := kindOf(scope)
	var (
		value   int64
		attempt int
	)
	op := func() error {
		attempt++
		n, err := s.store.Increment(ctx, scope)
		if err == nil {
			value = n
			return nil
		}
		if !errors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		s.metrics.SequenceRetries.WithLabelValues(kind).Inc()
		s.logger.Debug("sequence increment contended", "scope", scope, "attempt", attempt)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if errors.IsTransient(err) {
			s.metrics.SequenceExhausted.WithLabelValues(kind).Inc()
			return 0, errors.SequenceContended(scope, attempt, err)
		}
		return 0, err
	}

	if value > s.cfg.Limit {
		s.metrics.SequenceExhausted.WithLabelValues(kind).Inc()
		s.logger.Warn(nil, "sequence scope overflowed", "scope", scope, "value", value)
		return 0, errors.SequenceExhausted(scope, s.cfg.Limit)
	}
	s.metrics.SequenceIssued.WithLabelValues(kind).Inc()
	return value, nil
}

func (s *Service) NextPatientNumber(ctx context.Context, at time.Time) (string, error) {
	n, err := s.Next(ctx, PatientScope(at))
	if err != nil {
		return "", err
	}
	return FormatPatientNumber(at, n), nil
}

func (s *Service) NextVisitNumber(ctx context.Context, at time.Time) (string, error) {
	n, err := s.Next(ctx, VisitScope(at))
	if err != nil {
		return "", err
	}
	return FormatVisitNumber(at, n), nil
}

func (s *Service) NextToken(ctx context.Context, departmentID uuid.UUID, at time.Time) (int, error) {
	n, err := s.Next(ctx, TokenScope(departmentID, at))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PatientScope is monthly: patient numbers carry no day component, so a daily
// reset would hand out P2505001 again on the second of the month.
func PatientScope(at time.Time) string {
	return KindPatient + ":" + at.Format("2006-01")
}

func VisitScope(at time.Time) string {
	return KindVisit + ":" + model.DateKey(at)
}

func TokenScope(departmentID uuid.UUID, at time.Time) string {
	return KindToken + ":" + departmentID.String() + ":" + model.DateKey(at)
}

// FormatPatientNumber renders P{YY}{MM}{seq3}.
func FormatPatientNumber(at time.Time, n int64) string {
	return fmt.Sprintf("P%02d%02d%03d", at.Year()%100, int(at.Month()), n)
}

// FormatVisitNumber renders V{YY}{MM}{DD}{seq3}.
func FormatVisitNumber(at time.Time, n int64) string {
	return fmt.Sprintf("V%02d%02d%02d%03d", at.Year()%100, int(at.Month()), at.Day(), n)
}

func kindOf(scope string) string {
	if i := strings.IndexByte(scope, ':'); i > 0 {
		return scope[:i]
	}
	return scope
}
