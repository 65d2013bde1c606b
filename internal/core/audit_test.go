package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/batchctl/internal/model"
)

func TestAuditService_RecordWritesThroughBuffer(t *testing.T) {
	db := &mockDB{}
	written := make(chan []any, 1)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			written <- args.Get(2).([]any)
		}).
		Return(pgconn.CommandTag{}, nil).Once()

	svc := NewAuditService(db, zerolog.Nop())
	svc.Record("JOB_DEFINITION", "job-1", model.AuditHold, "ops", "status ACTIVE -> HELD")

	select {
	case args := <-written:
		require.Len(t, args, 6)
		assert.Equal(t, "JOB_DEFINITION", args[1])
		assert.Equal(t, "job-1", args[2])
		assert.Equal(t, model.AuditHold, args[3])
		assert.Equal(t, "ops", args[4])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit write")
	}

	svc.Close()
	db.AssertExpectations(t)
}

func TestAuditService_CloseFlushesPendingEntries(t *testing.T) {
	db := &mockDB{}
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, nil).Times(3)

	svc := NewAuditService(db, zerolog.Nop())
	svc.Record("JOB_DEFINITION", "job-1", model.AuditCreate, "ops", "created")
	svc.Record("JOB_DEFINITION", "job-1", model.AuditHold, "ops", "held")
	svc.Record("JOB_DEFINITION", "job-1", model.AuditResume, "ops", "resumed")
	svc.Close()

	db.AssertExpectations(t)
}

func TestAuditService_List_Pagination(t *testing.T) {
	db := &mockDB{}
	svc := &AuditService{db: db, logger: zerolog.Nop()}

	entry := func(id string) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*string)) = id
			*(dest[1].(*string)) = "JOB_DEFINITION"
			*(dest[2].(*string)) = "job-1"
			*(dest[3].(*string)) = model.AuditUpdate
			*(dest[4].(*string)) = "ops"
			*(dest[5].(*string)) = "updated"
			*(dest[6].(*time.Time)) = time.Now()
			return nil
		}
	}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(entry("a3"), entry("a2"), entry("a1")), nil).Once()

	logs, hasMore, err := svc.List(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.True(t, hasMore)
	db.AssertExpectations(t)
}
