package request

import "encoding/json"

// CreateJob is the payload for registering a new job definition.
type CreateJob struct {
	Name           string          `json:"name" validate:"required,slug"`
	JobType        string          `json:"job_type" validate:"required"`
	Description    *string         `json:"description,omitempty"`
	CronExpression *string         `json:"cron_expression,omitempty" validate:"omitempty,cron"`
	Timezone       string          `json:"timezone,omitempty" validate:"timezone"`
	Enabled        *bool           `json:"enabled,omitempty"`
	Priority       int             `json:"priority,omitempty" validate:"gte=0,lte=100"`
	MaxRetries     int             `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty" validate:"gte=0"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	TargetRoles    []string        `json:"target_roles,omitempty"`
	TargetCounties []string        `json:"target_counties,omitempty"`
	CreatedBy      string          `json:"created_by" validate:"required"`
}

// UpdateJob carries the mutable fields of a job definition. The name is not
// accepted here; it is fixed at creation.
type UpdateJob struct {
	JobType        *string         `json:"job_type,omitempty"`
	Description    *string         `json:"description,omitempty"`
	CronExpression *string         `json:"cron_expression,omitempty" validate:"omitempty,cron"`
	Timezone       *string         `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Enabled        *bool           `json:"enabled,omitempty"`
	Priority       *int            `json:"priority,omitempty" validate:"omitempty,gte=0,lte=100"`
	MaxRetries     *int            `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	TimeoutSeconds *int            `json:"timeout_seconds,omitempty" validate:"omitempty,gte=0"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	TargetRoles    []string        `json:"target_roles,omitempty"`
	TargetCounties []string        `json:"target_counties,omitempty"`
	UpdatedBy      string          `json:"updated_by" validate:"required"`
}

// Actor identifies who performs a lifecycle action (hold, ice, resume,
// enable, disable, delete).
type Actor struct {
	Actor string `json:"actor" validate:"required"`
}
