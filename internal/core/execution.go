package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/batchctl/internal/metrics"
	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/platform"
	"github.com/edvin/batchctl/internal/worker"
)

// ExecutionService issues trigger requests, applies asynchronous lifecycle
// events to the execution state machine, and fires dependent jobs on
// success. Every state transition is a single conditional UPDATE, so a late
// event and a concurrent reconciler sweep can never both win.
type ExecutionService struct {
	db     DB
	worker worker.Client
	deps   *DependencyService
	audit  Auditor
	logger zerolog.Logger
}

func NewExecutionService(db DB, wc worker.Client, deps *DependencyService, audit Auditor, logger zerolog.Logger) *ExecutionService {
	return &ExecutionService{db: db, worker: wc, deps: deps, audit: audit, logger: logger}
}

const executionColumns = `e.id, e.job_id, j.name, e.trigger_id, e.status, e.trigger_type, e.triggered_by, e.triggered_at, e.started_at, e.completed_at, e.progress_percentage, e.progress_message, e.error_message, e.retry_count`

func scanExecution(row interface{ Scan(dest ...any) error }) (model.ExecutionMapping, error) {
	var e model.ExecutionMapping
	err := row.Scan(&e.ID, &e.JobID, &e.JobName, &e.TriggerID, &e.Status, &e.TriggerType,
		&e.TriggeredBy, &e.TriggeredAt, &e.StartedAt, &e.CompletedAt,
		&e.ProgressPercentage, &e.ProgressMessage, &e.ErrorMessage, &e.RetryCount)
	return e, err
}

// TriggerJob creates an execution for the job and dispatches it to the
// worker. The call returns as soon as the TRIGGERED row is persisted;
// dispatch failures surface later as a FAILED execution, never as an error
// here.
func (s *ExecutionService) TriggerJob(ctx context.Context, jobID string, params map[string]any, triggeredBy, triggerType string, skipDependencyCheck bool) (*model.ExecutionMapping, error) {
	job, err := s.jobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Runnable() {
		return nil, fmt.Errorf("%w: %s (status=%s enabled=%t)",
			ErrJobNotRunnable, job.Name, job.Status, job.Enabled)
	}

	// A held job blocks every transitive dependent, so the upstream walk
	// applies even when the dependency-satisfaction check is skipped.
	if err := s.checkUpstreamHolds(ctx, jobID); err != nil {
		return nil, err
	}
	if !skipDependencyCheck {
		if err := s.checkDependenciesSatisfied(ctx, jobID); err != nil {
			return nil, err
		}
	}

	id := platform.NewID()
	triggerID := platform.NewID()

	// The insert is atomic with its idempotency check: no second execution
	// can be created while one is still in flight, even under concurrent
	// completions of two prerequisites.
	tag, err := s.db.Exec(ctx,
		`INSERT INTO execution_mappings (id, job_id, trigger_id, status, trigger_type, triggered_by, triggered_at)
		 SELECT $1, $2, $3, $4, $5, $6, now()
		 WHERE NOT EXISTS (
		   SELECT 1 FROM execution_mappings WHERE job_id = $2 AND status = ANY($7)
		 )`,
		id, jobID, triggerID, model.ExecutionTriggered, triggerType, triggeredBy,
		model.NonTerminalStatuses(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert execution for job %s: %w", job.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s already has a running execution", ErrJobNotRunnable, job.Name)
	}

	merged, err := mergeParameters(job.Parameters, params)
	if err != nil {
		s.logger.Warn().Err(err).Str("job", job.Name).Msg("ignoring malformed stored job parameters")
	}

	// Dispatch off the request path; the caller never blocks on the worker.
	dispatchCtx := context.WithoutCancel(ctx)
	go s.dispatch(dispatchCtx, job.JobType, job.Name, merged, triggerID)

	metrics.ExecutionsTriggered.WithLabelValues(triggerType).Inc()
	s.audit.Record("JOB_DEFINITION", jobID, model.AuditTrigger, triggeredBy,
		fmt.Sprintf("triggered job %s (trigger id %s)", job.Name, triggerID))

	return s.GetByTriggerID(ctx, triggerID)
}

func (s *ExecutionService) dispatch(ctx context.Context, jobType, jobName string, params map[string]any, triggerID string) {
	if err := s.worker.Dispatch(ctx, jobType, params, triggerID); err != nil {
		s.logger.Error().Err(err).Str("job", jobName).Str("trigger_id", triggerID).
			Msg("worker dispatch failed")
		s.markFailed(ctx, triggerID, "dispatch failed: "+err.Error())
	}
}

// mergeParameters overlays per-trigger parameters on the stored job
// parameters.
func mergeParameters(stored json.RawMessage, override map[string]any) (map[string]any, error) {
	merged := map[string]any{}
	var parseErr error
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &merged); err != nil {
			parseErr = err
			merged = map[string]any{}
		}
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged, parseErr
}

// checkUpstreamHolds walks the active dependency edges upstream and fails if
// any prerequisite at any depth is HELD.
func (s *ExecutionService) checkUpstreamHolds(ctx context.Context, jobID string) error {
	visited := map[string]bool{jobID: true}
	frontier := []string{jobID}

	for len(frontier) > 0 {
		rows, err := s.db.Query(ctx,
			`SELECT d.depends_on_job_id, j.name, j.status
			 FROM job_dependencies d
			 JOIN job_definitions j ON j.id = d.depends_on_job_id
			 WHERE d.job_id = ANY($1) AND d.is_active = true AND j.deleted_at IS NULL`,
			frontier,
		)
		if err != nil {
			return fmt.Errorf("walk upstream dependencies: %w", err)
		}

		var next []string
		for rows.Next() {
			var id, name, status string
			if err := rows.Scan(&id, &name, &status); err != nil {
				rows.Close()
				return fmt.Errorf("scan upstream dependency: %w", err)
			}
			if status == model.JobStatusHeld {
				rows.Close()
				return fmt.Errorf("%w: upstream job %s is held", ErrJobNotRunnable, name)
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate upstream dependencies: %w", err)
		}
		frontier = next
	}
	return nil
}

// checkDependenciesSatisfied enforces AND semantics over the job's active
// SUCCESS dependencies: each prerequisite's latest execution must be
// COMPLETED. An iced prerequisite counts as satisfied.
func (s *ExecutionService) checkDependenciesSatisfied(ctx context.Context, jobID string) error {
	deps, err := s.deps.Dependencies(ctx, jobID)
	if err != nil {
		return err
	}

	for _, dep := range deps {
		if dep.DependencyType != model.DependencySuccess {
			continue
		}

		depJob, err := s.jobByID(ctx, dep.DependsOnJobID)
		if err != nil {
			return err
		}
		if depJob.Status == model.JobStatusIced {
			continue
		}

		latest, err := s.latestExecution(ctx, dep.DependsOnJobID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("%w: dependency %s has never run", ErrJobNotRunnable, depJob.Name)
		}
		if latest.Status != model.ExecutionCompleted {
			return fmt.Errorf("%w: dependency %s is %s, not COMPLETED",
				ErrJobNotRunnable, depJob.Name, latest.Status)
		}
	}
	return nil
}

// latestExecution returns the job's most recent execution: latest by
// triggered_at, ties broken by trigger id. Nil if the job never ran.
func (s *ExecutionService) latestExecution(ctx context.Context, jobID string) (*model.ExecutionMapping, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+executionColumns+`
		 FROM execution_mappings e
		 JOIN job_definitions j ON j.id = e.job_id
		 WHERE e.job_id = $1
		 ORDER BY e.triggered_at DESC, e.trigger_id DESC
		 LIMIT 1`,
		jobID,
	)
	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest execution for job %s: %w", jobID, err)
	}
	return &e, nil
}

// HandleEvent applies one asynchronous worker event. Unknown trigger ids and
// events for terminal executions are logged and discarded; nothing here is
// an error to the event transport.
func (s *ExecutionService) HandleEvent(ctx context.Context, ev model.JobEvent) error {
	log := s.logger.With().Str("trigger_id", ev.TriggerID).Str("event", ev.EventType).Logger()

	exec, err := s.findByTriggerID(ctx, ev.TriggerID)
	if err != nil {
		return err
	}
	if exec == nil {
		log.Warn().Msg("event for unknown trigger id, discarding")
		metrics.EventsReceived.WithLabelValues(ev.EventType, "unknown").Inc()
		return nil
	}
	if exec.IsTerminal() {
		log.Debug().Str("status", exec.Status).Msg("event for terminal execution, discarding")
		metrics.EventsReceived.WithLabelValues(ev.EventType, "discarded").Inc()
		return nil
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch ev.EventType {
	case model.EventStarted:
		applied, err := s.transition(ctx, ev.TriggerID, model.ExecutionRunning,
			`started_at = $3`, ts)
		if err != nil {
			return err
		}
		outcome := "applied"
		if !applied {
			outcome = "discarded"
		}
		metrics.EventsReceived.WithLabelValues(ev.EventType, outcome).Inc()

	case model.EventProgress:
		_, err := s.db.Exec(ctx,
			`UPDATE execution_mappings
			 SET progress_percentage = $1, progress_message = $2
			 WHERE trigger_id = $3 AND status = ANY($4)`,
			ev.ProgressPercentage, ev.ProgressMessage, ev.TriggerID, model.NonTerminalStatuses(),
		)
		if err != nil {
			return fmt.Errorf("apply progress for %s: %w", ev.TriggerID, err)
		}
		metrics.EventsReceived.WithLabelValues(ev.EventType, "applied").Inc()

	case model.EventCompleted:
		applied, err := s.transition(ctx, ev.TriggerID, model.ExecutionCompleted,
			`completed_at = $3, progress_percentage = 100`, ts)
		if err != nil {
			return err
		}
		if applied {
			metrics.EventsReceived.WithLabelValues(ev.EventType, "applied").Inc()
			metrics.ExecutionsFinished.WithLabelValues(model.ExecutionCompleted).Inc()
			s.cascadeDependents(ctx, exec.JobID, exec.JobName)
		} else {
			metrics.EventsReceived.WithLabelValues(ev.EventType, "discarded").Inc()
		}

	case model.EventFailed:
		applied, err := s.transition(ctx, ev.TriggerID, model.ExecutionFailed,
			`completed_at = $3, error_message = $4`, ts, ev.ErrorMessage)
		if err != nil {
			return err
		}
		if applied {
			metrics.EventsReceived.WithLabelValues(ev.EventType, "applied").Inc()
			metrics.ExecutionsFinished.WithLabelValues(model.ExecutionFailed).Inc()
			s.bumpRetryCount(ctx, ev.TriggerID)
		} else {
			metrics.EventsReceived.WithLabelValues(ev.EventType, "discarded").Inc()
		}

	default:
		log.Warn().Msg("unknown event type, discarding")
		metrics.EventsReceived.WithLabelValues(ev.EventType, "unknown").Inc()
	}
	return nil
}

// transition is the single atomic read-modify-write for status changes: the
// row moves to newStatus only if its current status is a legal source per
// the transition table. Returns whether the update took effect.
func (s *ExecutionService) transition(ctx context.Context, triggerID, newStatus, extraSet string, extraArgs ...any) (bool, error) {
	sources := model.TransitionSources(newStatus)
	query := `UPDATE execution_mappings SET status = $1`
	if extraSet != "" {
		query += `, ` + extraSet
	}
	query += ` WHERE trigger_id = $2 AND status = ANY($` + fmt.Sprint(3+len(extraArgs)) + `)`

	args := append([]any{newStatus, triggerID}, extraArgs...)
	args = append(args, sources)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", triggerID, newStatus, err)
	}
	return tag.RowsAffected() > 0, nil
}

// cascadeDependents evaluates every direct dependent of the completed job
// and triggers the ones whose full dependency set is now satisfied. Each
// dependent is isolated: one failure never aborts the siblings.
func (s *ExecutionService) cascadeDependents(ctx context.Context, jobID, jobName string) {
	dependents, err := s.deps.Dependents(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job", jobName).Msg("failed to load dependents for cascade")
		return
	}

	for _, dep := range dependents {
		if dep.DependencyType != model.DependencySuccess {
			continue
		}
		_, err := s.TriggerJob(ctx, dep.JobID, nil, "DEPENDENCY", model.TriggerDependency, false)
		switch {
		case errors.Is(err, ErrJobNotRunnable):
			s.logger.Debug().Err(err).Str("dependent", dep.JobName).
				Msg("dependent not ready, skipping")
		case err != nil:
			s.logger.Error().Err(err).Str("dependent", dep.JobName).
				Msg("failed to trigger dependent")
		default:
			s.logger.Info().Str("dependent", dep.JobName).Str("completed", jobName).
				Msg("triggered dependent job")
		}
	}
}

// markFailed is the dispatch-failure path: the execution never reached the
// worker, so no event will ever arrive for it.
func (s *ExecutionService) markFailed(ctx context.Context, triggerID, message string) {
	applied, err := s.transition(ctx, triggerID, model.ExecutionFailed,
		`completed_at = now(), error_message = $3`, message)
	if err != nil {
		s.logger.Error().Err(err).Str("trigger_id", triggerID).Msg("failed to mark execution failed")
		return
	}
	if applied {
		metrics.ExecutionsFinished.WithLabelValues(model.ExecutionFailed).Inc()
	}
}

func (s *ExecutionService) bumpRetryCount(ctx context.Context, triggerID string) {
	_, err := s.db.Exec(ctx,
		`UPDATE execution_mappings e
		 SET retry_count = e.retry_count + 1
		 FROM job_definitions j
		 WHERE e.trigger_id = $1 AND j.id = e.job_id AND e.retry_count < j.max_retries`,
		triggerID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("trigger_id", triggerID).Msg("failed to bump retry count")
	}
}

// StopExecution marks the execution STOPPED and asks the worker to halt.
// Local state is authoritative: the stop is recorded even if the worker is
// unreachable, and a late COMPLETED event is absorbed by the terminal-state
// rule. Stopping an already-terminal execution is a no-op.
func (s *ExecutionService) StopExecution(ctx context.Context, triggerID, requestedBy string) error {
	exec, err := s.findByTriggerID(ctx, triggerID)
	if err != nil {
		return err
	}
	if exec == nil {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, triggerID)
	}
	if exec.IsTerminal() {
		return nil
	}

	if err := s.worker.Stop(ctx, triggerID); err != nil {
		s.logger.Warn().Err(err).Str("trigger_id", triggerID).
			Msg("worker stop request failed, recording stop locally anyway")
	}

	applied, err := s.transition(ctx, triggerID, model.ExecutionStopped,
		`completed_at = now(), error_message = $3`, "stopped by "+requestedBy)
	if err != nil {
		return err
	}
	if applied {
		metrics.ExecutionsFinished.WithLabelValues(model.ExecutionStopped).Inc()
		s.audit.Record("EXECUTION", exec.ID, model.AuditStop, requestedBy,
			fmt.Sprintf("stopped execution %s of job %s", triggerID, exec.JobName))
	}
	return nil
}

// GetByTriggerID returns the execution or ErrExecutionNotFound.
func (s *ExecutionService) GetByTriggerID(ctx context.Context, triggerID string) (*model.ExecutionMapping, error) {
	exec, err := s.findByTriggerID(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, triggerID)
	}
	return exec, nil
}

// findByTriggerID returns nil, nil when the trigger id is unknown.
func (s *ExecutionService) findByTriggerID(ctx context.Context, triggerID string) (*model.ExecutionMapping, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+executionColumns+`
		 FROM execution_mappings e
		 JOIN job_definitions j ON j.id = e.job_id
		 WHERE e.trigger_id = $1`,
		triggerID,
	)
	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get execution %s: %w", triggerID, err)
	}
	return &e, nil
}

func (s *ExecutionService) ListByJob(ctx context.Context, jobID string, limit int, cursor string) ([]model.ExecutionMapping, bool, error) {
	query := `SELECT ` + executionColumns + `
	 FROM execution_mappings e
	 JOIN job_definitions j ON j.id = e.job_id
	 WHERE e.job_id = $1`
	args := []any{jobID}
	argIdx := 2

	if cursor != "" {
		query += fmt.Sprintf(` AND e.id < $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY e.triggered_at DESC, e.id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	return s.listExecutions(ctx, query, args, limit)
}

// ListRunning returns every non-terminal execution.
func (s *ExecutionService) ListRunning(ctx context.Context) ([]model.ExecutionMapping, error) {
	execs, _, err := s.listExecutions(ctx,
		`SELECT `+executionColumns+`
		 FROM execution_mappings e
		 JOIN job_definitions j ON j.id = e.job_id
		 WHERE e.status = ANY($1)
		 ORDER BY e.triggered_at`,
		[]any{model.NonTerminalStatuses()}, 0)
	return execs, err
}

func (s *ExecutionService) ListRecent(ctx context.Context, since time.Time, limit int) ([]model.ExecutionMapping, error) {
	execs, _, err := s.listExecutions(ctx,
		`SELECT `+executionColumns+`
		 FROM execution_mappings e
		 JOIN job_definitions j ON j.id = e.job_id
		 WHERE e.triggered_at >= $1
		 ORDER BY e.triggered_at DESC
		 LIMIT $2`,
		[]any{since, limit}, 0)
	return execs, err
}

// ListStale returns non-terminal executions triggered before the threshold,
// for the reconciler.
func (s *ExecutionService) ListStale(ctx context.Context, threshold time.Time) ([]model.ExecutionMapping, error) {
	execs, _, err := s.listExecutions(ctx,
		`SELECT `+executionColumns+`
		 FROM execution_mappings e
		 JOIN job_definitions j ON j.id = e.job_id
		 WHERE e.status = ANY($1) AND e.triggered_at < $2
		 ORDER BY e.triggered_at`,
		[]any{model.NonTerminalStatuses(), threshold}, 0)
	return execs, err
}

// listExecutions runs a query and scans the result. When limit > 0, it
// expects limit+1 rows to have been requested and reports hasMore.
func (s *ExecutionService) listExecutions(ctx context.Context, query string, args []any, limit int) ([]model.ExecutionMapping, bool, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []model.ExecutionMapping
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate executions: %w", err)
	}

	hasMore := false
	if limit > 0 && len(execs) > limit {
		hasMore = true
		execs = execs[:limit]
	}
	return execs, hasMore, nil
}

// ApplyWorkerStatus reconciles the worker's authoritative status onto the
// local record, subject to the same monotonic transition rule as event
// ingestion. A worker-reported COMPLETED cascades dependents exactly like a
// COMPLETED event.
func (s *ExecutionService) ApplyWorkerStatus(ctx context.Context, triggerID string, st *worker.Status) error {
	exec, err := s.findByTriggerID(ctx, triggerID)
	if err != nil {
		return err
	}
	if exec == nil {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, triggerID)
	}
	if exec.IsTerminal() || st.Status == exec.Status {
		return nil
	}

	switch st.Status {
	case model.ExecutionCompleted:
		applied, err := s.transition(ctx, triggerID, model.ExecutionCompleted,
			`completed_at = now(), progress_percentage = 100`)
		if err != nil {
			return err
		}
		if applied {
			metrics.ExecutionsFinished.WithLabelValues(model.ExecutionCompleted).Inc()
			s.cascadeDependents(ctx, exec.JobID, exec.JobName)
		}
	case model.ExecutionFailed:
		applied, err := s.transition(ctx, triggerID, model.ExecutionFailed,
			`completed_at = now(), error_message = $3`, st.ErrorMessage)
		if err != nil {
			return err
		}
		if applied {
			metrics.ExecutionsFinished.WithLabelValues(model.ExecutionFailed).Inc()
		}
	case model.ExecutionStopped:
		if _, err := s.transition(ctx, triggerID, model.ExecutionStopped, `completed_at = now()`); err != nil {
			return err
		}
	case model.ExecutionQueued, model.ExecutionStarting, model.ExecutionRunning:
		if _, err := s.transition(ctx, triggerID, st.Status,
			`progress_percentage = $3, progress_message = $4`,
			st.ProgressPercentage, st.ProgressMessage); err != nil {
			return err
		}
	default:
		s.logger.Warn().Str("trigger_id", triggerID).Str("status", st.Status).
			Msg("worker reported unknown status, ignoring")
	}
	return nil
}

// Abandon is the designed failure boundary for lost event delivery: the
// reconciler declares the execution dead after the extended threshold.
func (s *ExecutionService) Abandon(ctx context.Context, triggerID, reason string) error {
	applied, err := s.transition(ctx, triggerID, model.ExecutionAbandoned,
		`completed_at = now(), error_message = $3`, reason)
	if err != nil {
		return err
	}
	if applied {
		metrics.ExecutionsFinished.WithLabelValues(model.ExecutionAbandoned).Inc()
		s.logger.Warn().Str("trigger_id", triggerID).Str("reason", reason).
			Msg("execution abandoned")
	}
	return nil
}

func (s *ExecutionService) jobByID(ctx context.Context, id string) (*model.JobDefinition, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_definitions WHERE id = $1 AND deleted_at IS NULL`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &j, nil
}
