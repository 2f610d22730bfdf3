package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goingest/internal/ledger"
)

type fakeHistory struct {
	cycles   []ledger.Cycle
	pending  map[string][]string
	err      error
	gotLimit int
}

func (f *fakeHistory) RecentCycles(ctx context.Context, limit int) ([]ledger.Cycle, error) {
	f.gotLimit = limit
	return f.cycles, f.err
}

func (f *fakeHistory) PendingCleanup(ctx context.Context) (map[string][]string, error) {
	return f.pending, nil
}

func TestHistoryCommandStructure(t *testing.T) {
	assert.NotNil(t, historyCmd)
	assert.Equal(t, "history", historyCmd.Use)
	assert.NotEmpty(t, historyCmd.Short)
	assert.NotNil(t, historyCmd.RunE)
}

func TestBuildHistory(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &fakeHistory{
		cycles: []ledger.Cycle{
			{RunID: "run-2", Status: ledger.CycleRunning, Datasets: 3, StartedAt: started.Add(30 * time.Minute)},
			{RunID: "run-1", Status: ledger.CycleFailed, Datasets: 3, StartedAt: started,
				FinishedAt: sql.NullTime{Time: started.Add(2 * time.Minute), Valid: true}},
		},
		pending: map[string][]string{"accounts": {"accounts/b.parquet"}},
	}

	report, err := buildHistory(context.Background(), src, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, src.gotLimit)

	require.Len(t, report.Cycles, 2)
	assert.Equal(t, "running", report.Cycles[0].Status)
	assert.Equal(t, "2026-03-01 10:30:00", report.Cycles[0].StartedAt)
	assert.Empty(t, report.Cycles[0].FinishedAt)
	assert.Equal(t, "2026-03-01 10:02:00", report.Cycles[1].FinishedAt)
	assert.Equal(t, []string{"accounts/b.parquet"}, report.PendingCleanup["accounts"])
}

func TestBuildHistory_Error(t *testing.T) {
	_, err := buildHistory(context.Background(), &fakeHistory{err: errors.New("no such table")}, 10)
	assert.EqualError(t, err, "no such table")
}

func TestPrintHistory(t *testing.T) {
	report := historyReport{
		Cycles: []cycleRow{
			{RunID: "run-1", Status: "succeeded", Datasets: 3, StartedAt: "2026-03-01 10:00:00", FinishedAt: "2026-03-01 10:02:00"},
		},
		PendingCleanup: map[string][]string{
			"transactions": {"transactions/t2.parquet"},
			"accounts":     {"accounts/b.parquet"},
		},
	}

	var buf bytes.Buffer
	historyCmd.SetOut(&buf)
	printHistory(historyCmd, "nightly", report)

	output := buf.String()
	assert.Contains(t, output, "=== History: nightly ===")
	assert.Contains(t, output, "RUN ID")
	assert.Contains(t, output, "succeeded")
	assert.Contains(t, output, "Datasets needing cleanup")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("accounts/b.parquet")),
		bytes.Index(buf.Bytes(), []byte("transactions/t2.parquet")))
}

func TestPrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	historyCmd.SetOut(&buf)
	printHistory(historyCmd, "default", historyReport{})

	assert.Contains(t, buf.String(), "No cycles recorded")
	assert.NotContains(t, buf.String(), "cleanup")
}

func TestRunHistory_StateDisabled(t *testing.T) {
	writeTestConfig(t, t.TempDir())

	err := runHistory(historyCmd, []string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state database is disabled")
}
