// Package pipeline runs ingestion cycles across all configured datasets.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dbsmedya/goingest/internal/ingest"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/types"
	"github.com/dbsmedya/goingest/internal/warehouse"
)

// Recorder receives cycle progress. Errors are logged and never fail a cycle.
type Recorder interface {
	CycleStarted(ctx context.Context, runID string, datasets []types.Dataset) error
	DatasetFinished(ctx context.Context, result types.CycleResult) error
	CycleFinished(ctx context.Context, runID string, results []types.CycleResult) error
}

// Options configures the orchestrator.
type Options struct {
	Concurrency int
	StagingRoot string
	Load        warehouse.LoadOptions
}

// Orchestrator runs one ingestor per dataset per cycle. It keeps no state
// between cycles.
type Orchestrator struct {
	store     ingest.Store
	warehouse warehouse.Opener
	opts      Options
	recorder  Recorder
	logger    *logger.Logger
	newRunID  func() string
}

// NewOrchestrator creates an orchestrator over the given capabilities.
func NewOrchestrator(store ingest.Store, wh warehouse.Opener, opts Options, log *logger.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is nil")
	}
	if wh == nil {
		return nil, fmt.Errorf("warehouse is nil")
	}
	if opts.StagingRoot == "" {
		return nil, fmt.Errorf("staging root is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{
		store:     store,
		warehouse: wh,
		opts:      opts,
		logger:    log,
		newRunID:  uuid.NewString,
	}, nil
}

// SetRecorder attaches a recorder for cycle history.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// RunCycle processes every dataset once and returns one result per dataset,
// in the order given. A failure in one dataset never stops the others.
//
// Cancelling ctx stops new datasets from starting; those are reported Failed
// with kind Cancelled. Datasets already running finish their current stage.
func (o *Orchestrator) RunCycle(ctx context.Context, datasets []types.Dataset) []types.CycleResult {
	runID := o.newRunID()
	log := o.logger.WithRun(runID)
	started := time.Now()

	log.Infow("Starting cycle", "datasets", len(datasets), "concurrency", o.opts.Concurrency)
	o.record(log, func(r Recorder) error { return r.CycleStarted(ctx, runID, datasets) })

	results := orderedmap.NewOrderedMap[string, types.CycleResult]()
	for _, ds := range datasets {
		results.Set(ds.Name, types.CycleResult{RunID: runID, Dataset: ds.Name, Table: ds.Table})
	}

	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	done := make(chan types.CycleResult, len(datasets))
	running := 0

	for i, ds := range datasets {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			for _, skipped := range datasets[i:] {
				res, _ := results.Get(skipped.Name)
				res.StartedAt = time.Now()
				res.Fail(types.NewError(types.KindCancelled,
					fmt.Errorf("cycle cancelled before start: %w", context.Cause(ctx))).WithDataset(skipped.Name))
				results.Set(skipped.Name, res)
				o.record(log, func(r Recorder) error { return r.DatasetFinished(context.WithoutCancel(ctx), res) })
			}
			log.Warnw("Cycle cancelled", "not_started", len(datasets)-i)
			break
		}

		running++
		go func(ds types.Dataset) {
			defer sem.Release(1)
			in := ingest.New(ds, o.store, o.warehouse, ingest.Options{
				RunID:       runID,
				StagingRoot: o.opts.StagingRoot,
				Load:        o.opts.Load,
			}, o.logger)
			done <- in.Run(ctx)
		}(ds)
	}

	for ; running > 0; running-- {
		res := <-done
		results.Set(res.Dataset, res)
		o.record(log, func(r Recorder) error { return r.DatasetFinished(context.WithoutCancel(ctx), res) })
	}

	out := make([]types.CycleResult, 0, results.Len())
	for el := results.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}

	if err := os.RemoveAll(filepath.Join(o.opts.StagingRoot, runID)); err != nil {
		log.Warnw("failed to remove cycle staging directory", "error", err)
	}

	o.record(log, func(r Recorder) error { return r.CycleFinished(context.WithoutCancel(ctx), runID, out) })

	s := Summarize(out)
	log.Infow("Cycle finished",
		"duration", time.Since(started),
		"loaded", s.Loaded,
		"no_objects", s.NoObjects,
		"failed", s.Failed,
		"rows_loaded", s.RowsLoaded,
		"rows_skipped", s.RowsSkipped,
	)
	if len(s.NeedsCleanup) > 0 {
		log.WithFields(map[string]interface{}{
			"datasets":      s.NeedsCleanup,
			"needs_cleanup": true,
		}).Warn("Objects left at both source and archive locations")
	}
	return out
}

func (o *Orchestrator) record(log *logger.Logger, fn func(Recorder) error) {
	if o.recorder == nil {
		return
	}
	if err := fn(o.recorder); err != nil {
		log.WithError(err).Warn("failed to record cycle progress")
	}
}

// Summary aggregates a cycle's results.
type Summary struct {
	Loaded       int      `json:"loaded" yaml:"loaded"`
	NoObjects    int      `json:"no_objects" yaml:"no_objects"`
	Failed       int      `json:"failed" yaml:"failed"`
	Objects      int      `json:"objects" yaml:"objects"`
	RowsLoaded   int64    `json:"rows_loaded" yaml:"rows_loaded"`
	RowsSkipped  int64    `json:"rows_skipped" yaml:"rows_skipped"`
	NeedsCleanup []string `json:"needs_cleanup,omitempty" yaml:"needs_cleanup,omitempty"` // datasets with objects present both at source and in the archive
}

// Summarize counts outcomes across results.
func Summarize(results []types.CycleResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case types.StatusLoaded:
			s.Loaded++
		case types.StatusNoObjects:
			s.NoObjects++
		case types.StatusFailed:
			s.Failed++
		}
		s.Objects += r.ObjectCount
		s.RowsLoaded += r.RowsLoaded
		s.RowsSkipped += r.RowsSkipped
		if r.ErrorKind.NeedsCleanup() {
			s.NeedsCleanup = append(s.NeedsCleanup, r.Dataset)
		}
	}
	return s
}
