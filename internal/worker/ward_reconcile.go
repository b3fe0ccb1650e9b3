package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

// WardReconcileWorker periodically recounts every ward's available beds and
// rewrites counters that drifted from the bed rows.
type WardReconcileWorker struct {
	wards    repository.WardRepository
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewWardReconcileWorker(wards repository.WardRepository, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *WardReconcileWorker {
	return &WardReconcileWorker{
		wards:    wards,
		interval: interval,
		logger:   log,
		metrics:  m,
	}
}

func (w *WardReconcileWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "ward reconciliation failed")
			}
		}
	}
}

// RunOnce reconciles every ward and returns how many counters were repaired.
// One ward failing does not stop the others.
func (w *WardReconcileWorker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.wards.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list wards: %w", err)
	}

	repaired := 0
	var firstErr error
	for _, id := range ids {
		res, err := w.wards.Reconcile(ctx, id, true)
		if err != nil {
			w.logger.Warn(err, "failed to reconcile ward", "ward_id", id.String())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res.Repaired {
			repaired++
			w.metrics.WardRepairs.Inc()
			w.logger.Error(nil, "ward available_beds drifted",
				"ward_id", id.String(), "cached", res.Cached, "actual", res.Actual)
		}
	}
	return repaired, firstErr
}
