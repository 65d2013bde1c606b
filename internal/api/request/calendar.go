package request

// CreateCalendar is the payload for a new named date set.
type CreateCalendar struct {
	Name         string  `json:"name" validate:"required,slug"`
	Description  *string `json:"description,omitempty"`
	CalendarType string  `json:"calendar_type" validate:"required,oneof=HOLIDAY BUSINESS FISCAL CUSTOM"`
	CreatedBy    string  `json:"created_by" validate:"required"`
}

// UpdateCalendar carries the mutable calendar fields.
type UpdateCalendar struct {
	Description  *string `json:"description,omitempty"`
	CalendarType *string `json:"calendar_type,omitempty" validate:"omitempty,oneof=HOLIDAY BUSINESS FISCAL CUSTOM"`
	IsActive     *bool   `json:"is_active,omitempty"`
	UpdatedBy    string  `json:"updated_by" validate:"required"`
}

// AddCalendarDates adds dates (YYYY-MM-DD) to a calendar.
type AddCalendarDates struct {
	Dates       []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
	Description *string  `json:"description,omitempty"`
}

// AssignCalendar binds a calendar to a job as a date filter.
type AssignCalendar struct {
	CalendarID     string `json:"calendar_id" validate:"required"`
	AssignmentType string `json:"assignment_type" validate:"required,oneof=INCLUDE EXCLUDE"`
	Actor          string `json:"actor" validate:"required"`
}
