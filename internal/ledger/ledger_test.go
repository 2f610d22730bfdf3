package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/types"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l, err := New(db, "nightly", logger.NewNop())
	require.NoError(t, err)
	return l, mock
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "x", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database connection is nil")

	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	l, err := New(db, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", l.cycleName)
}

func TestInitializeTables(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_cycle ").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_cycle_dataset").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, l.InitializeTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeTables_DatasetTableError(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_cycle ").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_cycle_dataset").WillReturnError(assert.AnError)

	err := l.InitializeTables(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create ingest_cycle_dataset table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycleLifecycle(t *testing.T) {
	l, mock := newTestLedger(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO ingest_cycle \\(run_id").
		WithArgs("run-1", "nightly", 2, "running").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ingest_cycle_dataset").
		WithArgs("run-1", "customers", "customers", "Loaded", "", 2, int64(20), int64(1), nil, "", int64(1500)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ingest_cycle_dataset").
		WithArgs("run-1", "accounts", "accounts", "Failed", "ArchiveDeleteFailed", 2, int64(5), int64(0),
			`["accounts/b.parquet"]`, sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE ingest_cycle SET cycle_status").
		WithArgs("failed", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	datasets := []types.Dataset{types.NewDataset("customers", "", ""), types.NewDataset("accounts", "", "")}
	require.NoError(t, l.CycleStarted(ctx, "run-1", datasets))

	loaded := types.CycleResult{
		RunID: "run-1", Dataset: "customers", Table: "customers", Status: types.StatusLoaded,
		ObjectCount: 2, RowsLoaded: 20, RowsSkipped: 1, Duration: 1500 * time.Millisecond,
	}
	require.NoError(t, l.DatasetFinished(ctx, loaded))

	failed := types.CycleResult{
		RunID: "run-1", Dataset: "accounts", Table: "accounts", ObjectCount: 2, RowsLoaded: 5,
		ArchivedKeys: []string{"accounts/a.parquet"}, UnarchivedKeys: []string{"accounts/b.parquet"},
	}
	failed.Fail(types.Errorf(types.KindArchiveDeleteFailed, "delete refused"))
	require.NoError(t, l.DatasetFinished(ctx, failed))

	require.NoError(t, l.CycleFinished(ctx, "run-1", []types.CycleResult{loaded, failed}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycleFinished_Succeeded(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectExec("UPDATE ingest_cycle SET cycle_status").
		WithArgs("succeeded", "run-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	results := []types.CycleResult{{Status: types.StatusLoaded}, {Status: types.StatusNoObjects}}
	assert.NoError(t, l.CycleFinished(context.Background(), "run-2", results))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycleStarted_Error(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectExec("INSERT INTO ingest_cycle").WillReturnError(assert.AnError)

	err := l.CycleStarted(context.Background(), "run-3", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record cycle start")
}

func TestMarkInterrupted(t *testing.T) {
	l, mock := newTestLedger(t)

	mock.ExpectExec("UPDATE ingest_cycle SET cycle_status").
		WithArgs("interrupted", "nightly", "running").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := l.MarkInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentCycles(t *testing.T) {
	l, mock := newTestLedger(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"run_id", "cycle_name", "datasets", "cycle_status", "started_at", "finished_at"}).
		AddRow("run-2", "nightly", 3, "running", now, nil).
		AddRow("run-1", "nightly", 3, "succeeded", now.Add(-time.Hour), now.Add(-50*time.Minute))
	mock.ExpectQuery("SELECT run_id, cycle_name, datasets, cycle_status, started_at, finished_at FROM ingest_cycle").
		WithArgs("nightly", 10).
		WillReturnRows(rows)

	cycles, err := l.RecentCycles(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "run-2", cycles[0].RunID)
	assert.Equal(t, CycleRunning, cycles[0].Status)
	assert.False(t, cycles[0].FinishedAt.Valid)
	assert.Equal(t, CycleSucceeded, cycles[1].Status)
	assert.True(t, cycles[1].FinishedAt.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingCleanup(t *testing.T) {
	l, mock := newTestLedger(t)

	rows := sqlmock.NewRows([]string{"dataset", "error_kind", "unarchived_keys"}).
		AddRow("customers", "ArchiveDeleteFailed", `["customers/a.parquet"]`).
		AddRow("accounts", "ArchiveDeleteFailed", `["accounts/x.parquet","accounts/y.parquet"]`).
		AddRow("customers", "", nil)
	mock.ExpectQuery("SELECT d.dataset, d.error_kind, d.unarchived_keys FROM ingest_cycle_dataset").
		WithArgs("nightly").
		WillReturnRows(rows)

	pending, err := l.PendingCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"accounts": {"accounts/x.parquet", "accounts/y.parquet"},
	}, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}
