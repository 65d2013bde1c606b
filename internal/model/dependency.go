package model

import "time"

// Dependency type constants. SUCCESS means the dependent may fire only after
// the prerequisite's latest execution completed successfully.
const (
	DependencySuccess = "SUCCESS"
)

// JobDependency is a directed edge: the job identified by JobID depends on
// the job identified by DependsOnJobID. Edges are soft-removed by clearing
// IsActive so the history stays queryable.
type JobDependency struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	JobName        string    `json:"job_name,omitempty"`
	DependsOnJobID string    `json:"depends_on_job_id"`
	DependsOnName  string    `json:"depends_on_name,omitempty"`
	DependencyType string    `json:"dependency_type"`
	IsActive       bool      `json:"is_active"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// GraphNode is one job in a dependency subgraph view.
type GraphNode struct {
	JobID   string `json:"job_id"`
	JobName string `json:"job_name"`
	Status  string `json:"status"`
	Depth   int    `json:"depth"`
}

// GraphEdge is one active edge in a dependency subgraph view.
type GraphEdge struct {
	JobID          string `json:"job_id"`
	DependsOnJobID string `json:"depends_on_job_id"`
	DependencyType string `json:"dependency_type"`
}

// DependencyGraph is a bounded subgraph around a single job, used by the
// graph visualization endpoint.
type DependencyGraph struct {
	RootJobID string      `json:"root_job_id"`
	Depth     int         `json:"depth"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
}
