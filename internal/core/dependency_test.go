package core

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/batchctl/internal/model"
)

func nameRow(name string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = name
		return nil
	}}
}

func noRows() *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

// edgeRows builds mockRows over (job_id, depends_on_job_id) pairs for the
// adjacency query.
func edgeRows(pairs ...[2]string) *mockRows {
	funcs := make([]func(dest ...any) error, len(pairs))
	for i, p := range pairs {
		p := p
		funcs[i] = func(dest ...any) error {
			*(dest[0].(*string)) = p[0]
			*(dest[1].(*string)) = p[1]
			return nil
		}
	}
	return newMockRows(funcs...)
}

// ---------- AddDependency ----------

func TestDependencyService_AddDependency_SelfEdge(t *testing.T) {
	svc := NewDependencyService(&mockDB{}, &stubAuditor{})

	dep, err := svc.AddDependency(context.Background(), "job-a", "job-a", model.DependencySuccess, "ops")
	require.Error(t, err)
	assert.Nil(t, dep)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestDependencyService_AddDependency_Success(t *testing.T) {
	db := &mockDB{}
	txDB := &mockDB{}
	tx := &mockTx{db: txDB}
	audit := &stubAuditor{}
	svc := NewDependencyService(db, audit)
	ctx := context.Background()

	db.On("Begin", ctx).Return(tx, nil).Once()
	// Advisory lock.
	txDB.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()
	// Name lookups.
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("downstream")).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("upstream")).Once()
	// No existing edge.
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows()).Once()
	// Reachability: no active edges at all.
	txDB.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(edgeRows(), nil).Once()
	// Insert.
	txDB.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()

	dep, err := svc.AddDependency(ctx, "job-a", "job-b", model.DependencySuccess, "ops")
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, "downstream", dep.JobName)
	assert.Equal(t, "upstream", dep.DependsOnName)
	assert.True(t, dep.IsActive)

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditAddDependency, records[0].Action)
	db.AssertExpectations(t)
	txDB.AssertExpectations(t)
}

func TestDependencyService_AddDependency_RejectsCycle(t *testing.T) {
	db := &mockDB{}
	txDB := &mockDB{}
	tx := &mockTx{db: txDB}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Begin", ctx).Return(tx, nil).Once()
	txDB.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("a")).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("c")).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows()).Once()
	// Existing chain c -> b -> a; adding a -> c closes the loop.
	txDB.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(edgeRows([2]string{"job-c", "job-b"}, [2]string{"job-b", "job-a"}), nil).Once()

	dep, err := svc.AddDependency(ctx, "job-a", "job-c", model.DependencySuccess, "ops")
	require.Error(t, err)
	assert.Nil(t, dep)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	db.AssertExpectations(t)
	txDB.AssertExpectations(t)
}

func TestDependencyService_AddDependency_DuplicateActive(t *testing.T) {
	db := &mockDB{}
	txDB := &mockDB{}
	tx := &mockTx{db: txDB}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Begin", ctx).Return(tx, nil).Once()
	txDB.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("a")).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("b")).Once()
	existing := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "dep-1"
		*(dest[1].(*bool)) = true
		return nil
	}}
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existing).Once()

	dep, err := svc.AddDependency(ctx, "job-a", "job-b", model.DependencySuccess, "ops")
	require.Error(t, err)
	assert.Nil(t, dep)
	assert.ErrorIs(t, err, ErrDuplicateDependency)
	db.AssertExpectations(t)
	txDB.AssertExpectations(t)
}

func TestDependencyService_AddDependency_ReactivatesInactiveEdge(t *testing.T) {
	db := &mockDB{}
	txDB := &mockDB{}
	tx := &mockTx{db: txDB}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Begin", ctx).Return(tx, nil).Once()
	txDB.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("a")).Once()
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow("b")).Once()
	existing := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "dep-1"
		*(dest[1].(*bool)) = false
		return nil
	}}
	txDB.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existing).Once()
	txDB.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(edgeRows(), nil).Once()
	txDB.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()

	dep, err := svc.AddDependency(ctx, "job-a", "job-b", model.DependencySuccess, "ops")
	require.NoError(t, err)
	assert.Equal(t, "dep-1", dep.ID)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
	txDB.AssertExpectations(t)
}

// ---------- RemoveDependency ----------

func TestDependencyService_RemoveDependency_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows()).Once()

	err := svc.RemoveDependency(ctx, "job-a", "job-b", "ops")
	assert.ErrorIs(t, err, ErrDependencyNotFound)
	db.AssertExpectations(t)
}

// ---------- ExecutionOrder ----------

func TestDependencyService_ExecutionOrder_TopologicalWithStableTieBreak(t *testing.T) {
	db := &mockDB{}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	// b and c both depend on a; d depends on c.
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(edgeRows(
			[2]string{"job-b", "job-a"},
			[2]string{"job-c", "job-a"},
			[2]string{"job-d", "job-c"},
		), nil).Once()

	order, err := svc.ExecutionOrder(ctx, []string{"job-d", "job-b", "job-c", "job-a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b", "job-c", "job-d"}, order)
	db.AssertExpectations(t)
}

func TestDependencyService_ExecutionOrder_IgnoresEdgesOutsideSet(t *testing.T) {
	db := &mockDB{}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	// b depends on x, but x is not in the requested set, so b is
	// unconstrained.
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(edgeRows([2]string{"job-b", "job-x"}), nil).Once()

	order, err := svc.ExecutionOrder(ctx, []string{"job-b", "job-a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b"}, order)
	db.AssertExpectations(t)
}

func TestDependencyService_ExecutionOrder_CycleDetected(t *testing.T) {
	db := &mockDB{}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(edgeRows([2]string{"job-a", "job-b"}, [2]string{"job-b", "job-a"}), nil).Once()

	order, err := svc.ExecutionOrder(ctx, []string{"job-a", "job-b"})
	require.Error(t, err)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	db.AssertExpectations(t)
}

func TestDependencyService_ExecutionOrder_Deterministic(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		db := &mockDB{}
		svc := NewDependencyService(db, &stubAuditor{})
		db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(edgeRows(), nil).Once()

		order, err := svc.ExecutionOrder(ctx, []string{"job-c", "job-a", "job-b"})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-a", "job-b", "job-c"}, order)
	}
}

// ---------- Listings ----------

func TestDependencyService_Dependencies_Empty(t *testing.T) {
	db := &mockDB{}
	svc := NewDependencyService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newEmptyMockRows(), nil).Once()

	deps, err := svc.Dependencies(ctx, "job-a")
	require.NoError(t, err)
	assert.Empty(t, deps)
	db.AssertExpectations(t)
}
