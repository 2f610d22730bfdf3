// Package ingest drives one dataset through discovery, load and archive.
//
// The Ingestor is a named-state machine:
//
//	Idle -> Discovering -> Loading -> Archiving -> Done
//	             |            |           |
//	             +-> Done     +-----------+-> Failed
//	             +-> Failed
//
// Archiving can only start from a committedBatch, which only a successful
// warehouse commit produces. Source objects are therefore never moved before
// their rows are durable in the destination table.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/types"
	"github.com/dbsmedya/goingest/internal/warehouse"
)

// Store is the object-store capability the ingestor needs.
type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Fetch(ctx context.Context, key, dir string) (string, error)
	Archive(ctx context.Context, key string) error
}

// Options configures one ingestor run.
type Options struct {
	RunID       string
	StagingRoot string
	Load        warehouse.LoadOptions
}

// committedBatch is a batch whose rows are committed in the warehouse.
// It is only constructed by load.
type committedBatch struct {
	batch types.Batch
	stats warehouse.LoadStats
}

// Ingestor processes one dataset for one cycle. It is single-use.
type Ingestor struct {
	dataset   types.Dataset
	store     Store
	warehouse warehouse.Opener
	opts      Options
	logger    *logger.Logger
	state     State
	dir       string
}

// New creates an ingestor in the Idle state.
func New(ds types.Dataset, store Store, wh warehouse.Opener, opts Options, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Ingestor{
		dataset:   ds,
		store:     store,
		warehouse: wh,
		opts:      opts,
		logger:    log.WithRun(opts.RunID).WithDataset(ds.Name),
		state:     StateIdle,
		dir:       filepath.Join(opts.StagingRoot, opts.RunID, ds.Name),
	}
}

// State returns the current state.
func (in *Ingestor) State() State {
	return in.state
}

// StagingDir returns the local directory used for this dataset's files.
func (in *Ingestor) StagingDir() string {
	return in.dir
}

func (in *Ingestor) enter(next State) error {
	if !in.state.CanTransition(next) {
		return &InvalidTransitionError{From: in.state, To: next}
	}
	in.logger.Debugw("state transition", "from", in.state, "to", next)
	in.state = next
	return nil
}

// Run drives the dataset to Done or Failed and returns its result.
// It never returns an error; failures are recorded in the result.
func (in *Ingestor) Run(ctx context.Context) types.CycleResult {
	res := types.CycleResult{
		RunID:     in.opts.RunID,
		Dataset:   in.dataset.Name,
		Table:     in.dataset.Table,
		StartedAt: time.Now(),
	}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	if err := in.enter(StateDiscovering); err != nil {
		res.Fail(err)
		return res
	}
	defer in.cleanup()

	batch, err := in.discover(ctx)
	if err != nil {
		return in.fail(res, err)
	}
	res.ObjectCount = batch.Len()

	if batch.Len() == 0 {
		if err := in.enter(StateDone); err != nil {
			return in.fail(res, err)
		}
		in.logger.Info("No new objects")
		res.Status = types.StatusNoObjects
		return res
	}

	if err := in.enter(StateLoading); err != nil {
		return in.fail(res, err)
	}
	committed, err := in.load(ctx, batch)
	if err != nil {
		return in.fail(res, err)
	}
	res.RowsLoaded = committed.stats.RowsLoaded
	res.RowsSkipped = committed.stats.RowsSkipped
	res.RejectedFiles = committed.stats.RejectedFiles

	if err := in.enter(StateArchiving); err != nil {
		return in.fail(res, err)
	}
	archived, err := in.archive(ctx, committed)
	res.ArchivedKeys = archived
	if err != nil {
		res.UnarchivedKeys = committed.batch.Keys()[len(archived):]
		return in.fail(res, err)
	}

	if err := in.enter(StateDone); err != nil {
		return in.fail(res, err)
	}
	res.Status = types.StatusLoaded

	in.logger.Infow("Dataset ingested",
		"objects", res.ObjectCount,
		"rows_loaded", res.RowsLoaded,
		"rows_skipped", res.RowsSkipped,
	)
	return res
}

func (in *Ingestor) fail(res types.CycleResult, err error) types.CycleResult {
	in.state = StateFailed
	res.Fail(err)

	var fields []interface{}
	if len(res.UnarchivedKeys) > 0 {
		fields = append(fields, "archived", len(res.ArchivedKeys), "unarchived_keys", res.UnarchivedKeys)
	}
	if res.ErrorKind.NeedsCleanup() {
		fields = append(fields, "needs_cleanup", true)
	}
	in.logger.WithError(err).Errorw("Dataset failed", fields...)
	return res
}

// discover lists the dataset prefix and fetches every key into the staging directory.
func (in *Ingestor) discover(ctx context.Context) (types.Batch, error) {
	batch := types.Batch{Dataset: in.dataset}

	keys, err := in.store.List(ctx, in.dataset.Prefix)
	if err != nil {
		return batch, annotate(err, types.KindStoreUnavailable, in.dataset.Name)
	}
	if len(keys) == 0 {
		return batch, nil
	}

	if err := CheckBaseNames(keys); err != nil {
		return batch, annotate(err, types.KindDiscoveryConflict, in.dataset.Name)
	}

	in.logger.Infof("Discovered %d objects under %s", len(keys), in.dataset.Prefix)

	for _, key := range keys {
		path, err := in.store.Fetch(ctx, key, in.dir)
		if err != nil {
			return batch, annotate(err, types.KindStoreUnavailable, in.dataset.Name)
		}
		obj := types.DiscoveredObject{Key: key, LocalPath: path}
		if info, err := os.Stat(path); err == nil {
			obj.Size = info.Size()
		}
		batch.Objects = append(batch.Objects, obj)
	}
	return batch, nil
}

// load stages and bulk-loads a non-empty batch and commits it.
func (in *Ingestor) load(ctx context.Context, batch types.Batch) (committedBatch, error) {
	if batch.Len() == 0 {
		return committedBatch{}, types.Errorf(types.KindLoadFailed, "empty batch").WithDataset(in.dataset.Name)
	}

	sess, err := in.warehouse.OpenSession(ctx, in.opts.RunID)
	if err != nil {
		return committedBatch{}, annotate(err, types.KindLoadFailed, in.dataset.Name)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			in.logger.Warnw("failed to close warehouse session", "error", err)
		}
	}()

	ref, err := sess.Stage(ctx, in.dataset.Name, in.dataset.Table, batch.LocalFiles())
	if err != nil {
		return committedBatch{}, annotate(err, types.KindStageUploadFailed, in.dataset.Name)
	}

	stats, err := sess.LoadStaged(ctx, in.dataset.Table, ref, in.opts.Load)
	if err != nil {
		return committedBatch{}, annotate(err, types.KindLoadFailed, in.dataset.Name)
	}

	if err := sess.Commit(); err != nil {
		return committedBatch{}, annotate(err, types.KindLoadFailed, in.dataset.Name)
	}

	if stats.RowsSkipped > 0 {
		in.logger.Warnw("Committed load with skipped records",
			"rows_skipped", stats.RowsSkipped,
			"rejected_files", stats.RejectedFiles,
			"first_errors", stats.FirstErrors,
		)
	}
	return committedBatch{batch: batch, stats: stats}, nil
}

// archive moves every key of a committed batch in listing order and stops at
// the first failure. It returns the keys archived before that failure.
//
// Calls run on a context detached from cycle cancellation so that a shutdown
// does not strand a committed batch half-archived. Per-call timeouts still apply.
func (in *Ingestor) archive(ctx context.Context, cb committedBatch) ([]string, error) {
	actx := context.WithoutCancel(ctx)

	archived := make([]string, 0, cb.batch.Len())
	for _, key := range cb.batch.Keys() {
		if err := in.store.Archive(actx, key); err != nil {
			return archived, annotate(err, types.KindArchiveCopyFailed, in.dataset.Name)
		}
		archived = append(archived, key)
		in.logger.Debugw("archived", "key", key)
	}

	in.logger.Infof("Archived %d objects", len(archived))
	return archived, nil
}

// cleanup removes the dataset's local staging directory.
func (in *Ingestor) cleanup() {
	if err := os.RemoveAll(in.dir); err != nil {
		in.logger.Warnw("failed to remove staging directory", "dir", in.dir, "error", err)
	}
}

// CheckBaseNames rejects key sets where two keys would collide in one staging directory.
func CheckBaseNames(keys []string) error {
	seen := make(map[string]string, len(keys))
	for _, key := range keys {
		base := types.BaseName(key)
		if prev, ok := seen[base]; ok {
			return fmt.Errorf("keys %s and %s share the local name %s", prev, key, base)
		}
		seen[base] = key
	}
	return nil
}

// annotate ensures err carries a kind and the dataset name. Classified errors
// keep their kind; anything else gets the fallback kind.
func annotate(err error, fallback types.ErrorKind, dataset string) error {
	var e *types.Error
	if !errors.As(err, &e) {
		return types.NewError(fallback, err).WithDataset(dataset)
	}
	if e.Dataset != "" {
		return err
	}
	if e == err {
		return e.WithDataset(dataset)
	}
	// Keep the outer context; the inner kind still classifies the error.
	return types.NewError(e.Kind, err).WithDataset(dataset)
}
