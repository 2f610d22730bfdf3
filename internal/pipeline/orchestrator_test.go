package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/objectstore"
	"github.com/dbsmedya/goingest/internal/types"
	"github.com/dbsmedya/goingest/internal/warehouse"
)

// stubWarehouse loads every staged file unless the table is listed in failTables.
type stubWarehouse struct {
	failTables map[string]bool
	delay      time.Duration

	active    int32
	maxActive int32
	mu        sync.Mutex
	loaded    map[string]int
}

func (w *stubWarehouse) OpenSession(ctx context.Context, runID string) (warehouse.Session, error) {
	n := atomic.AddInt32(&w.active, 1)
	for {
		m := atomic.LoadInt32(&w.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&w.maxActive, m, n) {
			break
		}
	}
	return &stubSession{w: w}, nil
}

type stubSession struct {
	w     *stubWarehouse
	table string
	files int
}

func (s *stubSession) Stage(ctx context.Context, dataset, table string, files []string) (warehouse.StagedRef, error) {
	s.table = table
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	return warehouse.StagedRef{Table: table, Files: names, LocalFiles: files}, nil
}

func (s *stubSession) LoadStaged(ctx context.Context, table string, ref warehouse.StagedRef, opts warehouse.LoadOptions) (warehouse.LoadStats, error) {
	if s.w.delay > 0 {
		time.Sleep(s.w.delay)
	}
	if s.w.failTables[table] {
		return warehouse.LoadStats{}, types.Errorf(types.KindLoadFailed, "table %s does not exist", table)
	}
	s.files = len(ref.Files)
	return warehouse.LoadStats{FilesLoaded: len(ref.Files), RowsLoaded: int64(len(ref.Files))}, nil
}

func (s *stubSession) Commit() error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.loaded == nil {
		s.w.loaded = make(map[string]int)
	}
	s.w.loaded[s.table] += s.files
	return nil
}

func (s *stubSession) Close() error {
	atomic.AddInt32(&s.w.active, -1)
	return nil
}

// memRecorder keeps everything it is told.
type memRecorder struct {
	mu       sync.Mutex
	started  []string
	datasets []string
	finished [][]types.CycleResult
	err      error
}

func (r *memRecorder) CycleStarted(ctx context.Context, runID string, datasets []types.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, runID)
	return r.err
}

func (r *memRecorder) DatasetFinished(ctx context.Context, result types.CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets = append(r.datasets, result.Dataset)
	return r.err
}

func (r *memRecorder) CycleFinished(ctx context.Context, runID string, results []types.CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, results)
	return r.err
}

type fixture struct {
	bucketDir   string
	stagingRoot string
	client      *objectstore.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	backend, err := objectstore.NewLocalBackend(root, "landing")
	require.NoError(t, err)
	return &fixture{
		bucketDir:   filepath.Join(root, "landing"),
		stagingRoot: t.TempDir(),
		client:      objectstore.NewClient(backend, objectstore.Options{ArchivePrefix: "archive/", VerifySize: true}, logger.NewNop()),
	}
}

func (f *fixture) put(t *testing.T, key string) {
	t.Helper()
	p := filepath.Join(f.bucketDir, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(key), 0o644))
}

func (f *fixture) exists(key string) bool {
	_, err := os.Stat(filepath.Join(f.bucketDir, filepath.FromSlash(key)))
	return err == nil
}

func (f *fixture) orchestrator(t *testing.T, wh warehouse.Opener, concurrency int) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(f.client, wh, Options{Concurrency: concurrency, StagingRoot: f.stagingRoot}, logger.NewNop())
	require.NoError(t, err)
	return o
}

func datasets(names ...string) []types.Dataset {
	out := make([]types.Dataset, len(names))
	for i, n := range names {
		out[i] = types.NewDataset(n, "", "")
	}
	return out
}

func TestRunCycle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.put(t, "customers/a.parquet")
	f.put(t, "customers/b.parquet")
	wh := &stubWarehouse{}

	results := f.orchestrator(t, wh, 1).RunCycle(context.Background(), datasets("customers"))

	require.Len(t, results, 1)
	assert.Equal(t, types.StatusLoaded, results[0].Status)
	assert.Equal(t, 2, results[0].ObjectCount)
	assert.Equal(t, 2, wh.loaded["customers"])
	assert.True(t, f.exists("archive/customers/a.parquet"))
	assert.True(t, f.exists("archive/customers/b.parquet"))
	assert.False(t, f.exists("customers/a.parquet"))
	assert.False(t, f.exists("customers/b.parquet"))
}

func TestRunCycle_FaultIsolation(t *testing.T) {
	f := newFixture(t)
	f.put(t, "a/1.parquet")
	f.put(t, "b/1.parquet")
	f.put(t, "b/2.parquet")
	wh := &stubWarehouse{failTables: map[string]bool{"b": true}}

	results := f.orchestrator(t, wh, 2).RunCycle(context.Background(), datasets("a", "b", "c"))

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Dataset)
	assert.Equal(t, types.StatusLoaded, results[0].Status)
	assert.Equal(t, "b", results[1].Dataset)
	assert.Equal(t, types.StatusFailed, results[1].Status)
	assert.Equal(t, types.KindLoadFailed, results[1].ErrorKind)
	assert.Equal(t, "c", results[2].Dataset)
	assert.Equal(t, types.StatusNoObjects, results[2].Status)

	assert.True(t, f.exists("archive/a/1.parquet"))
	assert.False(t, f.exists("a/1.parquet"))
	assert.True(t, f.exists("b/1.parquet"))
	assert.True(t, f.exists("b/2.parquet"))
	assert.False(t, f.exists("archive/b/1.parquet"))

	for _, r := range results {
		assert.Equal(t, results[0].RunID, r.RunID, "one run id per cycle")
	}
}

func TestRunCycle_BoundedConcurrency(t *testing.T) {
	f := newFixture(t)
	names := []string{"d1", "d2", "d3", "d4", "d5", "d6"}
	for _, n := range names {
		f.put(t, n+"/x.parquet")
	}
	wh := &stubWarehouse{delay: 20 * time.Millisecond}

	results := f.orchestrator(t, wh, 2).RunCycle(context.Background(), datasets(names...))

	require.Len(t, results, len(names))
	for i, r := range results {
		assert.Equal(t, names[i], r.Dataset, "results keep configuration order")
		assert.Equal(t, types.StatusLoaded, r.Status)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&wh.maxActive), int32(2))
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.put(t, "customers/a.parquet")
	wh := &stubWarehouse{}
	rec := &memRecorder{}
	o := f.orchestrator(t, wh, 1)
	o.SetRecorder(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.RunCycle(ctx, datasets("customers", "accounts"))

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, types.StatusFailed, r.Status)
		assert.Equal(t, types.KindCancelled, r.ErrorKind)
		assert.True(t, errors.Is(r.Err, context.Canceled))
	}
	assert.True(t, f.exists("customers/a.parquet"))
	assert.Equal(t, []string{"customers", "accounts"}, rec.datasets)
	require.Len(t, rec.finished, 1)
}

func TestRunCycle_FreshRunIDAndRecorder(t *testing.T) {
	f := newFixture(t)
	rec := &memRecorder{err: errors.New("ledger down")}
	o := f.orchestrator(t, &stubWarehouse{}, 1)
	o.SetRecorder(rec)

	first := o.RunCycle(context.Background(), datasets("customers"))
	second := o.RunCycle(context.Background(), datasets("customers"))

	assert.NotEqual(t, first[0].RunID, second[0].RunID)
	assert.Equal(t, types.StatusNoObjects, first[0].Status, "recorder errors do not fail the cycle")
	assert.Len(t, rec.started, 2)
	assert.Len(t, rec.finished, 2)

	entries, err := os.ReadDir(f.stagingRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "cycle staging directories removed")
}

func TestNewOrchestrator_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := NewOrchestrator(nil, &stubWarehouse{}, Options{StagingRoot: "/tmp"}, nil)
	assert.Error(t, err)
	_, err = NewOrchestrator(f.client, nil, Options{StagingRoot: "/tmp"}, nil)
	assert.Error(t, err)
	_, err = NewOrchestrator(f.client, &stubWarehouse{}, Options{}, nil)
	assert.Error(t, err)

	o, err := NewOrchestrator(f.client, &stubWarehouse{}, Options{StagingRoot: "/tmp"}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, o.opts.Concurrency)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]types.CycleResult{
		{Dataset: "a", Status: types.StatusLoaded, ObjectCount: 2, RowsLoaded: 10, RowsSkipped: 1},
		{Dataset: "b", Status: types.StatusNoObjects},
		{Dataset: "c", Status: types.StatusFailed, ObjectCount: 1, ErrorKind: types.KindArchiveDeleteFailed},
	})
	assert.Equal(t, 1, s.Loaded)
	assert.Equal(t, 1, s.NoObjects)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.Objects)
	assert.Equal(t, int64(10), s.RowsLoaded)
	assert.Equal(t, int64(1), s.RowsSkipped)
	assert.Equal(t, []string{"c"}, s.NeedsCleanup)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs int32

	err := Serve(ctx, 5*time.Millisecond, func(ctx context.Context) {
		if atomic.AddInt32(&runs, 1) == 3 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), atomic.LoadInt32(&runs))
}
