package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/batchctl/internal/metrics"
	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/worker"
)

type executionStore interface {
	ListStale(ctx context.Context, threshold time.Time) ([]model.ExecutionMapping, error)
	ApplyWorkerStatus(ctx context.Context, triggerID string, st *worker.Status) error
	Abandon(ctx context.Context, triggerID, reason string) error
}

type statusPoller interface {
	QueryStatus(ctx context.Context, correlationID string) (*worker.Status, error)
}

// Reconciler sweeps executions that have been in flight longer than the
// stale threshold and resolves them against the worker's authoritative
// status. Executions the worker cannot account for are abandoned once they
// age past the abandon threshold.
type Reconciler struct {
	store  executionStore
	poller statusPoller
	logger zerolog.Logger

	interval         time.Duration
	staleThreshold   time.Duration
	abandonThreshold time.Duration

	now func() time.Time
}

func NewReconciler(store executionStore, poller statusPoller, interval, staleThreshold, abandonThreshold time.Duration, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:            store,
		poller:           poller,
		logger:           logger.With().Str("component", "reconciler").Logger(),
		interval:         interval,
		staleThreshold:   staleThreshold,
		abandonThreshold: abandonThreshold,
		now:              time.Now,
	}
}

func (r *Reconciler) RunLoop(ctx context.Context) {
	r.logger.Info().
		Dur("interval", r.interval).
		Dur("stale_threshold", r.staleThreshold).
		Dur("abandon_threshold", r.abandonThreshold).
		Msg("starting stale execution sweep loop")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("stale execution sweep loop stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("stale execution sweep failed")
			}
		}
	}
}

// Sweep resolves every stale execution it can. Per-execution failures are
// logged and do not abort the sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	now := r.now()
	metrics.ReconcilerSweeps.Inc()

	stale, err := r.store.ListStale(ctx, now.Add(-r.staleThreshold))
	if err != nil {
		return err
	}
	metrics.StaleExecutions.Set(float64(len(stale)))
	if len(stale) == 0 {
		return nil
	}

	r.logger.Info().Int("count", len(stale)).Msg("sweeping stale executions")

	for _, exec := range stale {
		r.resolve(ctx, exec, now)
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, exec model.ExecutionMapping, now time.Time) {
	log := r.logger.With().Str("trigger_id", exec.TriggerID).Str("job", exec.JobName).Logger()

	st, err := r.poller.QueryStatus(ctx, exec.TriggerID)
	if err == nil {
		if err := r.store.ApplyWorkerStatus(ctx, exec.TriggerID, st); err != nil {
			log.Error().Err(err).Msg("failed to apply worker status")
		}
		return
	}

	// The worker cannot account for the execution. Keep waiting until the
	// abandon threshold in case the worker is briefly unreachable.
	if now.Sub(exec.TriggeredAt) < r.abandonThreshold {
		log.Warn().Err(err).Msg("worker status unavailable for stale execution, will retry")
		return
	}

	if err := r.store.Abandon(ctx, exec.TriggerID, "no worker status after abandon threshold: "+err.Error()); err != nil {
		log.Error().Err(err).Msg("failed to abandon execution")
	}
}
