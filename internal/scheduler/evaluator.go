package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/edvin/batchctl/internal/core"
	"github.com/edvin/batchctl/internal/metrics"
	"github.com/edvin/batchctl/internal/model"
)

type jobSource interface {
	ListSchedulable(ctx context.Context) ([]model.JobDefinition, error)
}

type calendarChecker interface {
	ShouldRunOn(ctx context.Context, jobID string, date time.Time) (bool, error)
}

type jobTrigger interface {
	TriggerJob(ctx context.Context, jobID string, params map[string]any, triggeredBy, triggerType string, skipDependencyCheck bool) (*model.ExecutionMapping, error)
}

// Evaluator wakes on a fixed interval and fires every schedulable job whose
// cron expression has a due time inside the window since the previous tick.
// The window is half-open on the left, so a fire landing exactly on a tick
// boundary is evaluated exactly once. Missed windows are not backfilled: a
// job due three times during downtime fires at most once on the next tick.
type Evaluator struct {
	jobs      jobSource
	calendars calendarChecker
	trigger   jobTrigger
	logger    zerolog.Logger

	interval  time.Duration
	defaultTZ *time.Location
	parser    cron.Parser

	paused atomic.Bool

	mu       sync.Mutex
	lastTick time.Time

	now func() time.Time
}

func NewEvaluator(jobs jobSource, calendars calendarChecker, trigger jobTrigger, interval time.Duration, defaultTZ *time.Location, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		jobs:      jobs,
		calendars: calendars,
		trigger:   trigger,
		logger:    logger.With().Str("component", "evaluator").Logger(),
		interval:  interval,
		defaultTZ: defaultTZ,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:       time.Now,
	}
}

// RunLoop evaluates schedules until the context is cancelled. The first
// window opens at startup, so fires that happened while the process was down
// are skipped rather than replayed.
func (e *Evaluator) RunLoop(ctx context.Context) {
	e.logger.Info().Dur("interval", e.interval).Msg("starting schedule evaluation loop")
	e.mu.Lock()
	e.lastTick = e.now()
	e.mu.Unlock()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("schedule evaluation loop stopped")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error().Err(err).Msg("schedule evaluation failed")
			}
		}
	}
}

// Pause suspends firing. The window keeps advancing, so fires landing while
// paused are skipped, not queued.
func (e *Evaluator) Pause()  { e.paused.Store(true) }
func (e *Evaluator) Resume() { e.paused.Store(false) }

func (e *Evaluator) Paused() bool { return e.paused.Load() }

// LastTick returns when the current evaluation window opened.
func (e *Evaluator) LastTick() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTick
}

// Tick evaluates one window. The window advances even when individual jobs
// fail to trigger; only a failure to list jobs leaves it in place for retry.
func (e *Evaluator) Tick(ctx context.Context) error {
	now := e.now()
	metrics.EvaluatorTicks.Inc()

	e.mu.Lock()
	windowStart := e.lastTick
	e.mu.Unlock()

	if e.paused.Load() {
		e.mu.Lock()
		e.lastTick = now
		e.mu.Unlock()
		return nil
	}

	jobs, err := e.jobs.ListSchedulable(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		e.evaluateJob(ctx, job, windowStart, now)
	}

	e.mu.Lock()
	e.lastTick = now
	e.mu.Unlock()
	return nil
}

func (e *Evaluator) evaluateJob(ctx context.Context, job model.JobDefinition, windowStart, windowEnd time.Time) {
	log := e.logger.With().Str("job", job.Name).Logger()

	if !job.Schedulable() {
		return
	}

	sched, err := e.parser.Parse(*job.CronExpression)
	if err != nil {
		log.Error().Err(err).Str("cron", *job.CronExpression).Msg("invalid cron expression, skipping job")
		return
	}

	loc := e.defaultTZ
	if job.Timezone != "" {
		l, err := time.LoadLocation(job.Timezone)
		if err != nil {
			log.Error().Err(err).Str("timezone", job.Timezone).Msg("invalid timezone, skipping job")
			return
		}
		loc = l
	}

	fire := sched.Next(windowStart.In(loc))
	if fire.After(windowEnd) {
		return
	}

	ok, err := e.calendars.ShouldRunOn(ctx, job.ID, fire.In(loc))
	if err != nil {
		log.Error().Err(err).Msg("calendar check failed, skipping job")
		return
	}
	if !ok {
		log.Info().Time("fire", fire).Msg("calendar excludes this date, skipping fire")
		return
	}

	_, err = e.trigger.TriggerJob(ctx, job.ID, nil, "SCHEDULER", model.TriggerScheduled, false)
	switch {
	case errors.Is(err, core.ErrJobNotRunnable):
		log.Debug().Err(err).Msg("job not ready at fire time, skipping")
	case err != nil:
		log.Error().Err(err).Msg("failed to trigger scheduled job")
	default:
		metrics.EvaluatorFires.Inc()
		log.Info().Time("fire", fire).Msg("triggered scheduled job")
	}
}
