package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/platform"
)

// graphLockKey is the advisory lock key serializing dependency-edge
// mutations, so concurrent edge additions validate cycle-freedom against the
// latest committed edge set.
const graphLockKey = 0x6261_7463 // "batc"

// Subgraph depth bounds for the visualization view.
const (
	DefaultGraphDepth = 2
	maxGraphDepth     = 5
)

// DependencyService maintains the directed edges between jobs. The set of
// active edges is kept acyclic at edge-creation time, never at read time.
type DependencyService struct {
	db    DB
	audit Auditor
}

func NewDependencyService(db DB, audit Auditor) *DependencyService {
	return &DependencyService{db: db, audit: audit}
}

// AddDependency inserts the edge job -> dependsOn. It runs inside a
// transaction holding the graph advisory lock: the reachability check and
// the insert see one consistent edge set.
func (s *DependencyService) AddDependency(ctx context.Context, jobID, dependsOnJobID, dependencyType, actor string) (*model.JobDependency, error) {
	if jobID == dependsOnJobID {
		return nil, fmt.Errorf("%w: a job cannot depend on itself", ErrCyclicDependency)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dependency tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, graphLockKey); err != nil {
		return nil, fmt.Errorf("acquire graph lock: %w", err)
	}

	jobName, err := jobNameByID(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	dependsOnName, err := jobNameByID(ctx, tx, dependsOnJobID)
	if err != nil {
		return nil, err
	}

	// An existing active edge is a conflict; an inactive one is re-activated
	// (removing and re-adding the same edge is idempotent).
	var existingID string
	var existingActive bool
	err = tx.QueryRow(ctx,
		`SELECT id, is_active FROM job_dependencies WHERE job_id = $1 AND depends_on_job_id = $2`,
		jobID, dependsOnJobID,
	).Scan(&existingID, &existingActive)
	switch {
	case err == nil && existingActive:
		return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateDependency, jobName, dependsOnName)
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("check existing dependency: %w", err)
	}

	// Reject before insert: the edge is cyclic iff the prerequisite already
	// reaches the dependent through active edges.
	reachable, err := s.reachable(ctx, tx, dependsOnJobID, jobID)
	if err != nil {
		return nil, err
	}
	if reachable {
		return nil, fmt.Errorf("%w: %s already depends on %s (directly or transitively)",
			ErrCyclicDependency, dependsOnName, jobName)
	}

	dep := &model.JobDependency{
		JobID:          jobID,
		JobName:        jobName,
		DependsOnJobID: dependsOnJobID,
		DependsOnName:  dependsOnName,
		DependencyType: dependencyType,
		IsActive:       true,
		CreatedBy:      actor,
	}

	if existingID != "" {
		dep.ID = existingID
		_, err = tx.Exec(ctx,
			`UPDATE job_dependencies SET is_active = true, dependency_type = $1, created_by = $2, created_at = now() WHERE id = $3`,
			dependencyType, actor, existingID)
		if err != nil {
			return nil, fmt.Errorf("reactivate dependency: %w", err)
		}
	} else {
		dep.ID = platform.NewID()
		_, err = tx.Exec(ctx,
			`INSERT INTO job_dependencies (id, job_id, depends_on_job_id, dependency_type, is_active, created_by, created_at)
			 VALUES ($1, $2, $3, $4, true, $5, now())`,
			dep.ID, jobID, dependsOnJobID, dependencyType, actor)
		if err != nil {
			return nil, fmt.Errorf("insert dependency: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit dependency: %w", err)
	}

	s.audit.Record("JOB_DEPENDENCY", dep.ID, model.AuditAddDependency, actor,
		fmt.Sprintf("%s now depends on %s", jobName, dependsOnName))
	return dep, nil
}

// RemoveDependency soft-removes the edge, keeping it for audit history.
func (s *DependencyService) RemoveDependency(ctx context.Context, jobID, dependsOnJobID, actor string) error {
	var depID string
	err := s.db.QueryRow(ctx,
		`UPDATE job_dependencies SET is_active = false
		 WHERE job_id = $1 AND depends_on_job_id = $2 AND is_active = true
		 RETURNING id`,
		jobID, dependsOnJobID,
	).Scan(&depID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s -> %s", ErrDependencyNotFound, jobID, dependsOnJobID)
		}
		return fmt.Errorf("remove dependency: %w", err)
	}

	s.audit.Record("JOB_DEPENDENCY", depID, model.AuditRemoveDependency, actor, "removed dependency")
	return nil
}

// Dependencies returns the direct prerequisites of a job (one hop).
func (s *DependencyService) Dependencies(ctx context.Context, jobID string) ([]model.JobDependency, error) {
	return s.listEdges(ctx, s.db, `d.job_id = $1`, jobID)
}

// Dependents returns the jobs directly depending on the given job (one hop).
func (s *DependencyService) Dependents(ctx context.Context, jobID string) ([]model.JobDependency, error) {
	return s.listEdges(ctx, s.db, `d.depends_on_job_id = $1`, jobID)
}

const edgeColumns = `d.id, d.job_id, j.name, d.depends_on_job_id, p.name, d.dependency_type, d.is_active, d.created_by, d.created_at`

func (s *DependencyService) listEdges(ctx context.Context, q querier, where string, arg any) ([]model.JobDependency, error) {
	rows, err := q.Query(ctx,
		`SELECT `+edgeColumns+`
		 FROM job_dependencies d
		 JOIN job_definitions j ON j.id = d.job_id
		 JOIN job_definitions p ON p.id = d.depends_on_job_id
		 WHERE d.is_active = true AND `+where+`
		 ORDER BY d.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []model.JobDependency
	for rows.Next() {
		var d model.JobDependency
		if err := rows.Scan(&d.ID, &d.JobID, &d.JobName, &d.DependsOnJobID, &d.DependsOnName,
			&d.DependencyType, &d.IsActive, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return deps, nil
}

// ActiveGraph returns the full adjacency map of active edges:
// job id -> ids it depends on.
func (s *DependencyService) ActiveGraph(ctx context.Context) (map[string][]string, error) {
	return activeGraph(ctx, s.db)
}

func activeGraph(ctx context.Context, q querier) (map[string][]string, error) {
	rows, err := q.Query(ctx,
		`SELECT job_id, depends_on_job_id FROM job_dependencies WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}
	defer rows.Close()

	graph := make(map[string][]string)
	for rows.Next() {
		var jobID, dependsOn string
		if err := rows.Scan(&jobID, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		graph[jobID] = append(graph[jobID], dependsOn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return graph, nil
}

// reachable reports whether target is reachable from start by following
// active dependency edges (start -> its prerequisites -> ...). Bounded BFS
// over the committed edge set.
func (s *DependencyService) reachable(ctx context.Context, q querier, start, target string) (bool, error) {
	graph, err := activeGraph(ctx, q)
	if err != nil {
		return false, err
	}

	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			return true, nil
		}
		for _, next := range graph[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false, nil
}

// ExecutionOrder runs Kahn's algorithm over the induced subgraph of the
// given jobs. Jobs with no relative ordering constraint are emitted in
// ascending id order, so the result is deterministic for a fixed graph.
func (s *DependencyService) ExecutionOrder(ctx context.Context, jobIDs []string) ([]string, error) {
	graph, err := activeGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}

	inSet := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		inSet[id] = true
	}

	// dependents[p] = jobs in the set that wait on p; indegree counts the
	// in-set prerequisites of each job.
	dependents := make(map[string][]string)
	indegree := make(map[string]int, len(jobIDs))
	for _, id := range jobIDs {
		indegree[id] = 0
	}
	for _, id := range jobIDs {
		for _, dep := range graph[id] {
			if inSet[dep] {
				dependents[dep] = append(dependents[dep], id)
				indegree[id]++
			}
		}
	}

	ready := make([]string, 0, len(jobIDs))
	for _, id := range jobIDs {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(jobIDs))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		released := false
		for _, next := range dependents[current] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(jobIDs) {
		return nil, fmt.Errorf("%w: cycle among requested jobs", ErrCyclicDependency)
	}
	return order, nil
}

// Subgraph expands the graph around one job for visualization, following
// both dependency and dependent edges. Depth is clamped so the expansion is
// never unbounded.
func (s *DependencyService) Subgraph(ctx context.Context, jobID string, depth int) (*model.DependencyGraph, error) {
	if depth <= 0 {
		depth = DefaultGraphDepth
	}
	if depth > maxGraphDepth {
		depth = maxGraphDepth
	}

	if _, err := jobNameByID(ctx, s.db, jobID); err != nil {
		return nil, err
	}

	g := &model.DependencyGraph{RootJobID: jobID, Depth: depth}
	seen := map[string]int{jobID: 0}
	frontier := []string{jobID}
	edgeSeen := map[string]bool{}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		rows, err := s.db.Query(ctx,
			`SELECT job_id, depends_on_job_id, dependency_type FROM job_dependencies
			 WHERE is_active = true AND (job_id = ANY($1) OR depends_on_job_id = ANY($1))`,
			frontier)
		if err != nil {
			return nil, fmt.Errorf("expand subgraph: %w", err)
		}

		var next []string
		for rows.Next() {
			var e model.GraphEdge
			if err := rows.Scan(&e.JobID, &e.DependsOnJobID, &e.DependencyType); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan subgraph edge: %w", err)
			}
			key := e.JobID + "->" + e.DependsOnJobID
			if !edgeSeen[key] {
				edgeSeen[key] = true
				g.Edges = append(g.Edges, e)
			}
			for _, id := range []string{e.JobID, e.DependsOnJobID} {
				if _, ok := seen[id]; !ok {
					seen[id] = level + 1
					next = append(next, id)
				}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate subgraph edges: %w", err)
		}
		frontier = next
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows, err := s.db.Query(ctx,
		`SELECT id, name, status FROM job_definitions WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load subgraph nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n model.GraphNode
		if err := rows.Scan(&n.JobID, &n.JobName, &n.Status); err != nil {
			return nil, fmt.Errorf("scan subgraph node: %w", err)
		}
		n.Depth = seen[n.JobID]
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subgraph nodes: %w", err)
	}

	return g, nil
}

func jobNameByID(ctx context.Context, q querier, id string) (string, error) {
	var name string
	err := q.QueryRow(ctx,
		`SELECT name FROM job_definitions WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return "", fmt.Errorf("get job %s: %w", id, err)
	}
	return name, nil
}
