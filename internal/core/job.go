package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/batchctl/internal/model"
)

// JobService owns job definitions and their lifecycle status. Lifecycle is
// mutated only through the explicit operator actions below, never implicitly.
type JobService struct {
	db    DB
	audit Auditor
}

func NewJobService(db DB, audit Auditor) *JobService {
	return &JobService{db: db, audit: audit}
}

const jobColumns = `id, name, job_type, description, cron_expression, timezone, status, enabled, priority, max_retries, timeout_seconds, parameters, target_roles, target_counties, created_by, updated_by, created_at, updated_at, deleted_at`

func scanJob(row interface{ Scan(dest ...any) error }) (model.JobDefinition, error) {
	var j model.JobDefinition
	err := row.Scan(&j.ID, &j.Name, &j.JobType, &j.Description, &j.CronExpression,
		&j.Timezone, &j.Status, &j.Enabled, &j.Priority, &j.MaxRetries,
		&j.TimeoutSeconds, &j.Parameters, &j.TargetRoles, &j.TargetCounties,
		&j.CreatedBy, &j.UpdatedBy, &j.CreatedAt, &j.UpdatedAt, &j.DeletedAt)
	return j, err
}

func (s *JobService) Create(ctx context.Context, job *model.JobDefinition) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_definitions WHERE name = $1 AND deleted_at IS NULL)`,
		job.Name,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job name %s: %w", job.Name, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO job_definitions (id, name, job_type, description, cron_expression, timezone, status, enabled, priority, max_retries, timeout_seconds, parameters, target_roles, target_counties, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())`,
		job.ID, job.Name, job.JobType, job.Description, job.CronExpression,
		job.Timezone, job.Status, job.Enabled, job.Priority, job.MaxRetries,
		job.TimeoutSeconds, job.Parameters, job.TargetRoles, job.TargetCounties,
		job.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.Name, err)
	}

	s.audit.Record("JOB_DEFINITION", job.ID, model.AuditCreate, job.CreatedBy, "created job "+job.Name)
	return nil
}

func (s *JobService) GetByID(ctx context.Context, id string) (*model.JobDefinition, error) {
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

func (s *JobService) GetByName(ctx context.Context, name string) (*model.JobDefinition, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_definitions WHERE name = $1 AND deleted_at IS NULL`, name)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
		}
		return nil, fmt.Errorf("get job by name %s: %w", name, err)
	}
	return &j, nil
}

// JobFilter narrows List results. Zero values mean "no filter".
type JobFilter struct {
	Status  string
	JobType string
	Enabled *bool
	Search  string
}

func (s *JobService) List(ctx context.Context, filter JobFilter, limit int, cursor string) ([]model.JobDefinition, bool, error) {
	query := `SELECT ` + jobColumns + ` FROM job_definitions WHERE deleted_at IS NULL`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.JobType != "" {
		query += fmt.Sprintf(` AND job_type = $%d`, argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}
	if filter.Enabled != nil {
		query += fmt.Sprintf(` AND enabled = $%d`, argIdx)
		args = append(args, *filter.Enabled)
		argIdx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}
	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobDefinition
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate jobs: %w", err)
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	return jobs, hasMore, nil
}

// ListSchedulable returns every job the cron evaluator should consider:
// cron expression present, enabled, ACTIVE, not deleted.
func (s *JobService) ListSchedulable(ctx context.Context) ([]model.JobDefinition, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM job_definitions
		 WHERE cron_expression IS NOT NULL AND cron_expression <> ''
		   AND enabled = true AND status = $1 AND deleted_at IS NULL
		 ORDER BY priority DESC, id`,
		model.JobStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedulable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobDefinition
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedulable job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedulable jobs: %w", err)
	}
	return jobs, nil
}

// JobTypes returns the distinct job types of non-deleted jobs.
func (s *JobService) JobTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT job_type FROM job_definitions WHERE deleted_at IS NULL ORDER BY job_type`)
	if err != nil {
		return nil, fmt.Errorf("list job types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan job type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job types: %w", err)
	}
	return types, nil
}

// Update persists the mutable fields of a job. The name is immutable after
// create so active dependents can never be orphaned by a rename.
func (s *JobService) Update(ctx context.Context, job *model.JobDefinition, updatedBy string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE job_definitions
		 SET job_type = $1, description = $2, cron_expression = $3, timezone = $4,
		     enabled = $5, priority = $6, max_retries = $7, timeout_seconds = $8,
		     parameters = $9, target_roles = $10, target_counties = $11,
		     updated_by = $12, updated_at = now()
		 WHERE id = $13 AND deleted_at IS NULL`,
		job.JobType, job.Description, job.CronExpression, job.Timezone,
		job.Enabled, job.Priority, job.MaxRetries, job.TimeoutSeconds,
		job.Parameters, job.TargetRoles, job.TargetCounties,
		updatedBy, job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	s.audit.Record("JOB_DEFINITION", job.ID, model.AuditUpdate, updatedBy, "updated job "+job.Name)
	return nil
}

// Delete soft-deletes the job and deactivates its dependency edges in both
// directions. Execution history is retained.
func (s *JobService) Delete(ctx context.Context, id, deletedBy string) error {
	var name string
	err := s.db.QueryRow(ctx,
		`UPDATE job_definitions SET deleted_at = now(), updated_by = $1, updated_at = now()
		 WHERE id = $2 AND deleted_at IS NULL RETURNING name`,
		deletedBy, id,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE job_dependencies SET is_active = false WHERE job_id = $1 OR depends_on_job_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate edges for job %s: %w", id, err)
	}

	s.audit.Record("JOB_DEFINITION", id, model.AuditDelete, deletedBy, "deleted job "+name)
	return nil
}

// Hold blocks the job and, through the trigger-time upstream check, every
// transitive dependent.
func (s *JobService) Hold(ctx context.Context, id, actor string) (*model.JobDefinition, error) {
	return s.setStatus(ctx, id, model.JobStatusHeld, actor, model.AuditHold)
}

// Ice makes the job skip its own runs while counting as succeeded for its
// dependents.
func (s *JobService) Ice(ctx context.Context, id, actor string) (*model.JobDefinition, error) {
	return s.setStatus(ctx, id, model.JobStatusIced, actor, model.AuditIce)
}

// Resume returns a HELD or ICED job to ACTIVE.
func (s *JobService) Resume(ctx context.Context, id, actor string) (*model.JobDefinition, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusHeld && job.Status != model.JobStatusIced {
		return nil, fmt.Errorf("job %s is not held or iced (current: %s)", id, job.Status)
	}
	return s.setStatus(ctx, id, model.JobStatusActive, actor, model.AuditResume)
}

func (s *JobService) Enable(ctx context.Context, id, actor string) (*model.JobDefinition, error) {
	return s.setEnabled(ctx, id, true, actor, model.AuditEnable)
}

func (s *JobService) Disable(ctx context.Context, id, actor string) (*model.JobDefinition, error) {
	return s.setEnabled(ctx, id, false, actor, model.AuditDisable)
}

func (s *JobService) setStatus(ctx context.Context, id, status, actor, action string) (*model.JobDefinition, error) {
	var previous string
	err := s.db.QueryRow(ctx,
		`SELECT status FROM job_definitions WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("get job %s status: %w", id, err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE job_definitions SET status = $1, updated_by = $2, updated_at = now()
		 WHERE id = $3 AND deleted_at IS NULL`,
		status, actor, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set job %s status: %w", id, err)
	}

	s.audit.Record("JOB_DEFINITION", id, action, actor,
		fmt.Sprintf("status %s -> %s", previous, status))
	return s.GetByID(ctx, id)
}

func (s *JobService) setEnabled(ctx context.Context, id string, enabled bool, actor, action string) (*model.JobDefinition, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE job_definitions SET enabled = $1, updated_by = $2, updated_at = now()
		 WHERE id = $3 AND deleted_at IS NULL`,
		enabled, actor, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set job %s enabled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	s.audit.Record("JOB_DEFINITION", id, action, actor, fmt.Sprintf("enabled=%t", enabled))
	return s.GetByID(ctx, id)
}
