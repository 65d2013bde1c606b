package request

// AddDependency declares that a job requires another job's success.
type AddDependency struct {
	DependsOnJobID string `json:"depends_on_job_id" validate:"required"`
	DependencyType string `json:"dependency_type,omitempty" validate:"omitempty,oneof=SUCCESS"`
	Actor          string `json:"actor" validate:"required"`
}

// ExecutionOrder asks for a valid run order over a set of jobs.
type ExecutionOrder struct {
	JobIDs []string `json:"job_ids" validate:"required,min=1,dive,required"`
}
