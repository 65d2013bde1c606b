package model

import "time"

// Calendar type constants.
const (
	CalendarTypeHoliday  = "HOLIDAY"
	CalendarTypeBusiness = "BUSINESS"
	CalendarTypeFiscal   = "FISCAL"
	CalendarTypeCustom   = "CUSTOM"
)

// Calendar assignment type constants.
const (
	AssignmentInclude = "INCLUDE"
	AssignmentExclude = "EXCLUDE"
)

// JobCalendar is a named set of dates that can be bound to jobs as an
// inclusion or exclusion filter for scheduled firing.
type JobCalendar struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	CalendarType string    `json:"calendar_type"`
	IsActive     bool      `json:"is_active"`
	CreatedBy    string    `json:"created_by"`
	UpdatedBy    *string   `json:"updated_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobCalendarDate is one date inside a calendar.
type JobCalendarDate struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	Date        time.Time `json:"date"`
	Description *string   `json:"description,omitempty"`
}

// JobCalendarAssignment binds a calendar to a job with INCLUDE or EXCLUDE
// semantics.
type JobCalendarAssignment struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	CalendarID     string    `json:"calendar_id"`
	CalendarName   string    `json:"calendar_name,omitempty"`
	AssignmentType string    `json:"assignment_type"`
	IsActive       bool      `json:"is_active"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}
