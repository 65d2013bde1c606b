package model

import (
	"encoding/json"
	"time"
)

// Job lifecycle status constants.
const (
	JobStatusActive   = "ACTIVE"
	JobStatusHeld     = "HELD"
	JobStatusIced     = "ICED"
	JobStatusDisabled = "DISABLED"
)

type JobDefinition struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	JobType        string          `json:"job_type"`
	Description    *string         `json:"description,omitempty"`
	CronExpression *string         `json:"cron_expression,omitempty"`
	Timezone       string          `json:"timezone"`
	Status         string          `json:"status"`
	Enabled        bool            `json:"enabled"`
	Priority       int             `json:"priority"`
	MaxRetries     int             `json:"max_retries"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	TargetRoles    []string        `json:"target_roles,omitempty"`
	TargetCounties []string        `json:"target_counties,omitempty"`
	CreatedBy      string          `json:"created_by"`
	UpdatedBy      *string         `json:"updated_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// Runnable reports whether the job may be handed to the worker at all.
// Held, iced, and disabled jobs are not runnable.
func (j *JobDefinition) Runnable() bool {
	return j.Enabled && j.Status == JobStatusActive && j.DeletedAt == nil
}

// Schedulable reports whether the cron evaluator should consider this job.
func (j *JobDefinition) Schedulable() bool {
	return j.CronExpression != nil && *j.CronExpression != "" && j.Runnable()
}
