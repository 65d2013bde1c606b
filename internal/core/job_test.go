package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/batchctl/internal/model"
)

func strPtr(s string) *string { return &s }

func testJob(id, name string) model.JobDefinition {
	now := time.Now().Truncate(time.Microsecond)
	return model.JobDefinition{
		ID:             id,
		Name:           name,
		JobType:        "REPORT_GENERATION",
		CronExpression: strPtr("0 2 * * *"),
		Timezone:       "UTC",
		Status:         model.JobStatusActive,
		Enabled:        true,
		Priority:       5,
		MaxRetries:     3,
		TimeoutSeconds: 3600,
		Parameters:     json.RawMessage(`{"format":"csv"}`),
		CreatedBy:      "ops",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// jobScanFunc fills scan destinations in jobColumns order.
func jobScanFunc(j model.JobDefinition) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = j.ID
		*(dest[1].(*string)) = j.Name
		*(dest[2].(*string)) = j.JobType
		*(dest[3].(**string)) = j.Description
		*(dest[4].(**string)) = j.CronExpression
		*(dest[5].(*string)) = j.Timezone
		*(dest[6].(*string)) = j.Status
		*(dest[7].(*bool)) = j.Enabled
		*(dest[8].(*int)) = j.Priority
		*(dest[9].(*int)) = j.MaxRetries
		*(dest[10].(*int)) = j.TimeoutSeconds
		*(dest[11].(*json.RawMessage)) = j.Parameters
		*(dest[12].(*[]string)) = j.TargetRoles
		*(dest[13].(*[]string)) = j.TargetCounties
		*(dest[14].(*string)) = j.CreatedBy
		*(dest[15].(**string)) = j.UpdatedBy
		*(dest[16].(*time.Time)) = j.CreatedAt
		*(dest[17].(*time.Time)) = j.UpdatedAt
		*(dest[18].(**time.Time)) = j.DeletedAt
		return nil
	}
}

// ---------- Create ----------

func TestJobService_Create_Success(t *testing.T) {
	db := &mockDB{}
	audit := &stubAuditor{}
	svc := NewJobService(db, audit)
	ctx := context.Background()

	existsRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = false
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()

	job := testJob("job-1", "nightly-report")
	err := svc.Create(ctx, &job)
	require.NoError(t, err)

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditCreate, records[0].Action)
	db.AssertExpectations(t)
}

func TestJobService_Create_DuplicateName(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	existsRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = true
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow).Once()

	job := testJob("job-1", "nightly-report")
	err := svc.Create(ctx, &job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateJob)
	db.AssertExpectations(t)
}

// ---------- GetByID ----------

func TestJobService_GetByID_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	want := testJob("job-1", "nightly-report")
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: jobScanFunc(want)}).Once()

	got, err := svc.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "nightly-report", got.Name)
	assert.Equal(t, model.JobStatusActive, got.Status)
	assert.True(t, got.Runnable())
	db.AssertExpectations(t)
}

func TestJobService_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	got, err := svc.GetByID(ctx, "missing")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrJobNotFound)
	db.AssertExpectations(t)
}

// ---------- List ----------

func TestJobService_List_Pagination(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	rows := newMockRows(
		jobScanFunc(testJob("job-1", "a")),
		jobScanFunc(testJob("job-2", "b")),
		jobScanFunc(testJob("job-3", "c")),
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil).Once()

	jobs, hasMore, err := svc.List(ctx, JobFilter{}, 2, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.True(t, hasMore)
	db.AssertExpectations(t)
}

func TestJobService_List_Empty(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newEmptyMockRows(), nil).Once()

	jobs, hasMore, err := svc.List(ctx, JobFilter{Status: model.JobStatusActive}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.False(t, hasMore)
	db.AssertExpectations(t)
}

// ---------- Lifecycle ----------

func TestJobService_Hold_RecordsTransition(t *testing.T) {
	db := &mockDB{}
	audit := &stubAuditor{}
	svc := NewJobService(db, audit)
	ctx := context.Background()

	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.JobStatusActive
		return nil
	}}
	held := testJob("job-1", "nightly-report")
	held.Status = model.JobStatusHeld

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: jobScanFunc(held)}).Once()

	got, err := svc.Hold(ctx, "job-1", "ops")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusHeld, got.Status)
	assert.False(t, got.Runnable())

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditHold, records[0].Action)
	assert.Contains(t, records[0].Detail, "ACTIVE -> HELD")
	db.AssertExpectations(t)
}

func TestJobService_Resume_RequiresHeldOrIced(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	active := testJob("job-1", "nightly-report")
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: jobScanFunc(active)}).Once()

	got, err := svc.Resume(ctx, "job-1", "ops")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "not held or iced")
	db.AssertExpectations(t)
}

func TestJobService_Resume_FromIced(t *testing.T) {
	db := &mockDB{}
	audit := &stubAuditor{}
	svc := NewJobService(db, audit)
	ctx := context.Background()

	iced := testJob("job-1", "nightly-report")
	iced.Status = model.JobStatusIced
	resumed := testJob("job-1", "nightly-report")

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: jobScanFunc(iced)}).Once()
	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.JobStatusIced
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: jobScanFunc(resumed)}).Once()

	got, err := svc.Resume(ctx, "job-1", "ops")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusActive, got.Status)
	db.AssertExpectations(t)
}

func TestJobService_Disable_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	got, err := svc.Disable(ctx, "missing", "ops")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrJobNotFound)
	db.AssertExpectations(t)
}

// ---------- Delete ----------

func TestJobService_Delete_DeactivatesEdges(t *testing.T) {
	db := &mockDB{}
	audit := &stubAuditor{}
	svc := NewJobService(db, audit)
	ctx := context.Background()

	nameRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "nightly-report"
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nameRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil).Once()

	err := svc.Delete(ctx, "job-1", "ops")
	require.NoError(t, err)

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditDelete, records[0].Action)
	db.AssertExpectations(t)
}

func TestJobService_Delete_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	err := svc.Delete(ctx, "missing", "ops")
	assert.ErrorIs(t, err, ErrJobNotFound)
	db.AssertExpectations(t)
}

// ---------- Update ----------

func TestJobService_Update_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	job := testJob("missing", "ghost")
	err := svc.Update(ctx, &job, "ops")
	assert.ErrorIs(t, err, ErrJobNotFound)
	db.AssertExpectations(t)
}

func TestJobService_Update_DBError(t *testing.T) {
	db := &mockDB{}
	svc := NewJobService(db, &stubAuditor{})
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset")).Once()

	job := testJob("job-1", "nightly-report")
	err := svc.Update(ctx, &job, "ops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update job")
	db.AssertExpectations(t)
}
