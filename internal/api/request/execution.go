package request

// TriggerJob starts an execution outside the cron schedule. TriggeredBy may
// be omitted, in which case the authenticated API key name is recorded.
type TriggerJob struct {
	Parameters          map[string]any `json:"parameters,omitempty"`
	TriggeredBy         string         `json:"triggered_by,omitempty"`
	SkipDependencyCheck bool           `json:"skip_dependency_check,omitempty"`
}

// StopExecution asks the worker to halt an in-flight execution. RequestedBy
// may be omitted, in which case the authenticated API key name is recorded.
type StopExecution struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// JobEvent is the worker's asynchronous lifecycle notification.
type JobEvent struct {
	TriggerID          string `json:"trigger_id" validate:"required"`
	EventType          string `json:"event_type" validate:"required,oneof=STARTED PROGRESS COMPLETED FAILED"`
	ProgressPercentage int    `json:"progress_percentage,omitempty" validate:"gte=0,lte=100"`
	ProgressMessage    string `json:"progress_message,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
	Timestamp          string `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}
