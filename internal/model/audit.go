package model

import "time"

// Audit action constants.
const (
	AuditCreate           = "CREATE"
	AuditUpdate           = "UPDATE"
	AuditDelete           = "DELETE"
	AuditHold             = "HOLD"
	AuditIce              = "ICE"
	AuditResume           = "RESUME"
	AuditEnable           = "ENABLE"
	AuditDisable          = "DISABLE"
	AuditTrigger          = "TRIGGER"
	AuditStop             = "STOP"
	AuditAddDependency    = "ADD_DEPENDENCY"
	AuditRemoveDependency = "REMOVE_DEPENDENCY"
	AuditAssignCalendar   = "ASSIGN_CALENDAR"
	AuditUnassignCalendar = "UNASSIGN_CALENDAR"
)

// AuditLog is one record of a state-changing operation: who did what.
type AuditLog struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
