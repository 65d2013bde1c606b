package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/platform"
)

// CalendarService manages named date sets and their INCLUDE/EXCLUDE
// assignments to jobs.
type CalendarService struct {
	db    DB
	audit Auditor
}

func NewCalendarService(db DB, audit Auditor) *CalendarService {
	return &CalendarService{db: db, audit: audit}
}

const calendarColumns = `id, name, description, calendar_type, is_active, created_by, updated_by, created_at, updated_at`

func scanCalendar(row interface{ Scan(dest ...any) error }) (model.JobCalendar, error) {
	var c model.JobCalendar
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CalendarType, &c.IsActive,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *CalendarService) Create(ctx context.Context, cal *model.JobCalendar) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_calendars WHERE name = $1)`, cal.Name,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check calendar name %s: %w", cal.Name, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCalendar, cal.Name)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO job_calendars (id, name, description, calendar_type, is_active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		cal.ID, cal.Name, cal.Description, cal.CalendarType, cal.IsActive, cal.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert calendar %s: %w", cal.Name, err)
	}

	s.audit.Record("JOB_CALENDAR", cal.ID, model.AuditCreate, cal.CreatedBy, "created calendar "+cal.Name)
	return nil
}

func (s *CalendarService) GetByID(ctx context.Context, id string) (*model.JobCalendar, error) {
	row := s.db.QueryRow(ctx, `SELECT `+calendarColumns+` FROM job_calendars WHERE id = $1`, id)
	c, err := scanCalendar(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCalendarNotFound, id)
		}
		return nil, fmt.Errorf("get calendar %s: %w", id, err)
	}
	return &c, nil
}

func (s *CalendarService) List(ctx context.Context, calendarType string) ([]model.JobCalendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM job_calendars WHERE is_active = true`
	args := []any{}
	if calendarType != "" {
		query += ` AND calendar_type = $1`
		args = append(args, calendarType)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	var cals []model.JobCalendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		cals = append(cals, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendars: %w", err)
	}
	return cals, nil
}

func (s *CalendarService) Update(ctx context.Context, cal *model.JobCalendar, updatedBy string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE job_calendars SET description = $1, calendar_type = $2, is_active = $3, updated_by = $4, updated_at = now()
		 WHERE id = $5`,
		cal.Description, cal.CalendarType, cal.IsActive, updatedBy, cal.ID,
	)
	if err != nil {
		return fmt.Errorf("update calendar %s: %w", cal.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCalendarNotFound, cal.ID)
	}

	s.audit.Record("JOB_CALENDAR", cal.ID, model.AuditUpdate, updatedBy, "updated calendar "+cal.Name)
	return nil
}

// Delete removes the calendar with its dates and assignments (schema
// cascades).
func (s *CalendarService) Delete(ctx context.Context, id, actor string) error {
	var name string
	err := s.db.QueryRow(ctx,
		`DELETE FROM job_calendars WHERE id = $1 RETURNING name`, id,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrCalendarNotFound, id)
		}
		return fmt.Errorf("delete calendar %s: %w", id, err)
	}

	s.audit.Record("JOB_CALENDAR", id, model.AuditDelete, actor, "deleted calendar "+name)
	return nil
}

// AddDates inserts dates into the calendar, skipping ones already present.
func (s *CalendarService) AddDates(ctx context.Context, calendarID string, dates []time.Time, description *string) error {
	if _, err := s.GetByID(ctx, calendarID); err != nil {
		return err
	}

	for _, d := range dates {
		_, err := s.db.Exec(ctx,
			`INSERT INTO job_calendar_dates (id, calendar_id, calendar_date, description)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (calendar_id, calendar_date) DO NOTHING`,
			platform.NewID(), calendarID, d, description,
		)
		if err != nil {
			return fmt.Errorf("add date %s to calendar %s: %w", d.Format("2006-01-02"), calendarID, err)
		}
	}
	return nil
}

func (s *CalendarService) RemoveDate(ctx context.Context, calendarID string, date time.Time) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM job_calendar_dates WHERE calendar_id = $1 AND calendar_date = $2`,
		calendarID, date,
	)
	if err != nil {
		return fmt.Errorf("remove date from calendar %s: %w", calendarID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: date not in calendar %s", ErrCalendarNotFound, calendarID)
	}
	return nil
}

func (s *CalendarService) DatesInRange(ctx context.Context, calendarID string, from, to time.Time) ([]model.JobCalendarDate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, calendar_id, calendar_date, description FROM job_calendar_dates
		 WHERE calendar_id = $1 AND calendar_date >= $2 AND calendar_date <= $3
		 ORDER BY calendar_date`,
		calendarID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list dates for calendar %s: %w", calendarID, err)
	}
	defer rows.Close()

	var dates []model.JobCalendarDate
	for rows.Next() {
		var d model.JobCalendarDate
		if err := rows.Scan(&d.ID, &d.CalendarID, &d.Date, &d.Description); err != nil {
			return nil, fmt.Errorf("scan calendar date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar dates: %w", err)
	}
	return dates, nil
}

// AssignToJob binds a calendar to a job as an INCLUDE or EXCLUDE filter.
func (s *CalendarService) AssignToJob(ctx context.Context, jobID, calendarID, assignmentType, actor string) (*model.JobCalendarAssignment, error) {
	jobName, err := jobNameByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	cal, err := s.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_calendar_assignments WHERE job_id = $1 AND calendar_id = $2 AND is_active = true)`,
		jobID, calendarID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check calendar assignment: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCalendarAssigned, cal.Name, jobName)
	}

	a := &model.JobCalendarAssignment{
		ID:             platform.NewID(),
		JobID:          jobID,
		CalendarID:     calendarID,
		CalendarName:   cal.Name,
		AssignmentType: assignmentType,
		IsActive:       true,
		CreatedBy:      actor,
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO job_calendar_assignments (id, job_id, calendar_id, assignment_type, is_active, created_by, created_at)
		 VALUES ($1, $2, $3, $4, true, $5, now())`,
		a.ID, jobID, calendarID, assignmentType, actor,
	)
	if err != nil {
		return nil, fmt.Errorf("assign calendar %s to job %s: %w", calendarID, jobID, err)
	}

	s.audit.Record("JOB_CALENDAR_ASSIGNMENT", a.ID, model.AuditAssignCalendar, actor,
		fmt.Sprintf("assigned calendar %s to %s as %s", cal.Name, jobName, assignmentType))
	return a, nil
}

func (s *CalendarService) UnassignFromJob(ctx context.Context, jobID, calendarID, actor string) error {
	var assignmentID string
	err := s.db.QueryRow(ctx,
		`UPDATE job_calendar_assignments SET is_active = false
		 WHERE job_id = $1 AND calendar_id = $2 AND is_active = true
		 RETURNING id`,
		jobID, calendarID,
	).Scan(&assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: calendar %s not assigned to job %s", ErrCalendarNotFound, calendarID, jobID)
		}
		return fmt.Errorf("unassign calendar: %w", err)
	}

	s.audit.Record("JOB_CALENDAR_ASSIGNMENT", assignmentID, model.AuditUnassignCalendar, actor, "unassigned calendar")
	return nil
}

// AssignmentsForJob lists the active calendar assignments of a job.
func (s *CalendarService) AssignmentsForJob(ctx context.Context, jobID string) ([]model.JobCalendarAssignment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT a.id, a.job_id, a.calendar_id, c.name, a.assignment_type, a.is_active, a.created_by, a.created_at
		 FROM job_calendar_assignments a
		 JOIN job_calendars c ON c.id = a.calendar_id
		 WHERE a.job_id = $1 AND a.is_active = true
		 ORDER BY c.name`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var assignments []model.JobCalendarAssignment
	for rows.Next() {
		var a model.JobCalendarAssignment
		if err := rows.Scan(&a.ID, &a.JobID, &a.CalendarID, &a.CalendarName,
			&a.AssignmentType, &a.IsActive, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return assignments, nil
}

// ShouldRunOn decides whether a job may fire on the given date. The date is
// blocked if any active EXCLUDE calendar contains it; if the job has active
// INCLUDE calendars, the date must additionally appear in at least one.
func (s *CalendarService) ShouldRunOn(ctx context.Context, jobID string, date time.Time) (bool, error) {
	day := date.Format("2006-01-02")

	var excluded bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM job_calendar_assignments a
		   JOIN job_calendars c ON c.id = a.calendar_id AND c.is_active = true
		   JOIN job_calendar_dates d ON d.calendar_id = c.id
		   WHERE a.job_id = $1 AND a.is_active = true AND a.assignment_type = $2
		     AND d.calendar_date = $3
		 )`,
		jobID, model.AssignmentExclude, day,
	).Scan(&excluded)
	if err != nil {
		return false, fmt.Errorf("check calendar exclusion for job %s: %w", jobID, err)
	}
	if excluded {
		return false, nil
	}

	var includeCount int
	err = s.db.QueryRow(ctx,
		`SELECT count(*) FROM job_calendar_assignments a
		 JOIN job_calendars c ON c.id = a.calendar_id AND c.is_active = true
		 WHERE a.job_id = $1 AND a.is_active = true AND a.assignment_type = $2`,
		jobID, model.AssignmentInclude,
	).Scan(&includeCount)
	if err != nil {
		return false, fmt.Errorf("count include calendars for job %s: %w", jobID, err)
	}
	if includeCount == 0 {
		return true, nil
	}

	var included bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM job_calendar_assignments a
		   JOIN job_calendars c ON c.id = a.calendar_id AND c.is_active = true
		   JOIN job_calendar_dates d ON d.calendar_id = c.id
		   WHERE a.job_id = $1 AND a.is_active = true AND a.assignment_type = $2
		     AND d.calendar_date = $3
		 )`,
		jobID, model.AssignmentInclude, day,
	).Scan(&included)
	if err != nil {
		return false, fmt.Errorf("check calendar inclusion for job %s: %w", jobID, err)
	}
	return included, nil
}
