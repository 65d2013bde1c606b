package model

import "time"

// Execution status constants. COMPLETED, FAILED, STOPPED, and ABANDONED are
// terminal: once reached, no further transition is accepted.
const (
	ExecutionTriggered = "TRIGGERED"
	ExecutionQueued    = "QUEUED"
	ExecutionStarting  = "STARTING"
	ExecutionRunning   = "RUNNING"
	ExecutionCompleted = "COMPLETED"
	ExecutionFailed    = "FAILED"
	ExecutionStopped   = "STOPPED"
	ExecutionAbandoned = "ABANDONED"
)

// Trigger type constants.
const (
	TriggerManual     = "MANUAL"
	TriggerScheduled  = "SCHEDULED"
	TriggerDependency = "DEPENDENCY"
)

// Worker event type constants.
const (
	EventStarted   = "STARTED"
	EventProgress  = "PROGRESS"
	EventCompleted = "COMPLETED"
	EventFailed    = "FAILED"
)

// ExecutionMapping is the local record of one run of a job, keyed by the
// trigger id shared with the external worker as correlation metadata.
type ExecutionMapping struct {
	ID                 string     `json:"id"`
	JobID              string     `json:"job_id"`
	JobName            string     `json:"job_name,omitempty"`
	TriggerID          string     `json:"trigger_id"`
	Status             string     `json:"status"`
	TriggerType        string     `json:"trigger_type"`
	TriggeredBy        string     `json:"triggered_by"`
	TriggeredAt        time.Time  `json:"triggered_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ProgressPercentage int        `json:"progress_percentage"`
	ProgressMessage    *string    `json:"progress_message,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	RetryCount         int        `json:"retry_count"`
}

// JobEvent is one asynchronous lifecycle event delivered by the worker.
// Delivery is at-least-once and may be out of order.
type JobEvent struct {
	TriggerID          string    `json:"trigger_id"`
	EventType          string    `json:"event_type"`
	ProgressPercentage int       `json:"progress_percentage"`
	ProgressMessage    string    `json:"progress_message,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// executionTransitions is the explicit state-transition table. A missing
// entry means the transition is rejected, which gives the monotonic-status
// guarantee: terminal states have no outgoing entries, and late events that
// would move an execution backwards are discarded.
var executionTransitions = map[string]map[string]bool{
	ExecutionTriggered: {
		ExecutionQueued:    true,
		ExecutionStarting:  true,
		ExecutionRunning:   true,
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionStopped:   true,
		ExecutionAbandoned: true,
	},
	ExecutionQueued: {
		ExecutionStarting:  true,
		ExecutionRunning:   true,
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionStopped:   true,
		ExecutionAbandoned: true,
	},
	ExecutionStarting: {
		ExecutionRunning:   true,
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionStopped:   true,
		ExecutionAbandoned: true,
	},
	ExecutionRunning: {
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionStopped:   true,
		ExecutionAbandoned: true,
	},
}

// CanTransition reports whether an execution may move from one status to
// another.
func CanTransition(from, to string) bool {
	return executionTransitions[from][to]
}

// TransitionSources returns every status from which a transition to the
// given status is legal. Used to build conditional updates so a state change
// is a single atomic read-modify-write.
func TransitionSources(to string) []string {
	var sources []string
	for _, from := range []string{ExecutionTriggered, ExecutionQueued, ExecutionStarting, ExecutionRunning} {
		if executionTransitions[from][to] {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsTerminalStatus reports whether the status accepts no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case ExecutionCompleted, ExecutionFailed, ExecutionStopped, ExecutionAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether the execution has reached a terminal status.
func (e *ExecutionMapping) IsTerminal() bool {
	return IsTerminalStatus(e.Status)
}

// NonTerminalStatuses lists every status an in-flight execution can hold.
func NonTerminalStatuses() []string {
	return []string{ExecutionTriggered, ExecutionQueued, ExecutionStarting, ExecutionRunning}
}
