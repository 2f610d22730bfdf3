package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/sqlutil"
	"github.com/dbsmedya/goingest/internal/types"
)

// sqlSession implements Session on a single pooled connection.
type sqlSession struct {
	conn      *sql.Conn
	tx        *sql.Tx
	runID     string
	timeout   time.Duration
	logger    *logger.Logger
	staged    []string // stage locations to clear on Close
	committed bool
	closed    bool
}

// stageLocation returns the run-scoped folder of the table stage.
func stageLocation(table, runID string) (string, error) {
	stage, err := sqlutil.TableStage(table)
	if err != nil {
		return "", err
	}
	return stage + "/" + runID + "/", nil
}

// Stage uploads every local file into @%<table>/<run id>/.
func (s *sqlSession) Stage(ctx context.Context, dataset, table string, files []string) (StagedRef, error) {
	if len(files) == 0 {
		return StagedRef{}, types.Errorf(types.KindStageUploadFailed, "no files to stage").WithDataset(dataset)
	}

	location, err := stageLocation(table, s.runID)
	if err != nil {
		return StagedRef{}, types.NewError(types.KindStageUploadFailed, err).WithDataset(dataset)
	}

	ref := StagedRef{Table: table, Location: location}
	s.staged = append(s.staged, location)
	log := s.logger.WithDataset(dataset).WithTable(table)

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return StagedRef{}, types.NewError(types.KindStageUploadFailed, err).WithDataset(dataset)
		}

		stmt := fmt.Sprintf("PUT %s %s AUTO_COMPRESS=FALSE OVERWRITE=TRUE",
			sqlutil.QuoteLiteral("file://"+filepath.ToSlash(abs)), location)

		callCtx, cancel := withTimeout(ctx, s.timeout)
		_, err = s.conn.ExecContext(callCtx, stmt)
		cancel()
		if err != nil {
			return StagedRef{}, types.NewError(types.KindStageUploadFailed,
				fmt.Errorf("failed to upload %s: %w", filepath.Base(f), err)).WithDataset(dataset)
		}

		ref.Files = append(ref.Files, filepath.Base(f))
		ref.LocalFiles = append(ref.LocalFiles, abs)
		log.Debugw("staged file", "file", filepath.Base(f), "stage", location)
	}

	log.Infof("Staged %d files to %s", len(ref.Files), location)
	return ref, nil
}

// buildCopyStatement renders the COPY INTO statement for a staged batch.
func buildCopyStatement(table string, ref StagedRef, opts LoadOptions) (string, error) {
	id, err := sqlutil.TableIdentifier(table)
	if err != nil {
		return "", err
	}

	format := strings.ToUpper(opts.FileFormat)
	if format == "" {
		format = "PARQUET"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "COPY INTO %s FROM %s FILE_FORMAT=(TYPE=%s)", id, ref.Location, format)

	if m := strings.ToUpper(opts.MatchByColumnName); m != "" && m != "NONE" {
		fmt.Fprintf(&b, " MATCH_BY_COLUMN_NAME=%s", m)
	}

	if opts.SkipsBadRecords() {
		b.WriteString(" ON_ERROR='CONTINUE'")
	} else {
		b.WriteString(" ON_ERROR='ABORT_STATEMENT'")
	}
	return b.String(), nil
}

// LoadStaged runs COPY INTO inside a transaction that stays open until Commit.
func (s *sqlSession) LoadStaged(ctx context.Context, table string, ref StagedRef, opts LoadOptions) (LoadStats, error) {
	if len(ref.Files) == 0 {
		return LoadStats{}, types.Errorf(types.KindLoadFailed, "no staged files for %s", table)
	}
	if s.tx != nil {
		return LoadStats{}, types.Errorf(types.KindLoadFailed, "session already has an open load")
	}

	stmt, err := buildCopyStatement(table, ref, opts)
	if err != nil {
		return LoadStats{}, types.NewError(types.KindLoadFailed, err)
	}

	log := s.logger.WithTable(table)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return LoadStats{}, types.NewError(types.KindLoadFailed, fmt.Errorf("failed to begin transaction: %w", err))
	}
	s.tx = tx

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	log.Debugw("executing load", "statement", stmt)
	rows, err := tx.QueryContext(callCtx, stmt)
	if err != nil {
		return LoadStats{}, types.NewError(types.KindLoadFailed, fmt.Errorf("COPY INTO %s failed: %w", table, err))
	}

	stats, err := parseCopyResult(rows)
	if err != nil {
		return LoadStats{}, types.NewError(types.KindLoadFailed, err)
	}

	if opts.SkipsBadRecords() {
		stats.rejectBadFiles()
	}
	if failed := stats.FailedFiles(); len(failed) > 0 {
		return stats, types.Errorf(types.KindLoadFailed, "%d files failed to load into %s: %s",
			len(failed), table, strings.Join(failed, ", "))
	}

	if strings.EqualFold(opts.FileFormat, "PARQUET") || opts.FileFormat == "" {
		if reported := stats.reportedFiles(ref.LocalFiles); len(reported) > 0 {
			if expected, err := CountParquetRows(reported); err == nil {
				stats.applyExpected(expected)
			} else {
				log.Debugw("could not count expected rows", "error", err)
			}
		}
	}

	if stats.FilesLoaded == 0 {
		log.Warnw("load processed no files", "staged", len(ref.Files))
	}
	if stats.RowsSkipped > 0 {
		log.Warnw("records skipped during load",
			"rows_skipped", stats.RowsSkipped,
			"rows_loaded", stats.RowsLoaded,
			"first_errors", stats.FirstErrors)
	}
	if len(stats.RejectedFiles) > 0 {
		log.Warnw("files with no loadable records", "files", stats.RejectedFiles)
	}

	log.Infof("Loaded %d rows from %d files into %s", stats.RowsLoaded, stats.FilesLoaded, table)
	return stats, nil
}

// Commit makes the pending load durable.
func (s *sqlSession) Commit() error {
	if s.tx == nil {
		return types.Errorf(types.KindLoadFailed, "no load to commit")
	}
	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return types.NewError(types.KindLoadFailed, fmt.Errorf("failed to commit load: %w", err))
	}
	s.tx = nil
	s.committed = true
	return nil
}

// Committed reports whether Commit succeeded.
func (s *sqlSession) Committed() bool {
	return s.committed
}

// Close rolls back an uncommitted load, clears the run's staged files and
// returns the connection to the pool. Stage cleanup is best-effort.
func (s *sqlSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.tx != nil {
		s.logger.Warn("Rolling back uncommitted load")
		if err := s.tx.Rollback(); err != nil {
			s.logger.Errorf("Failed to rollback transaction: %v", err)
		}
		s.tx = nil
	}

	for _, location := range s.staged {
		ctx, cancel := withTimeout(context.Background(), s.timeout)
		if _, err := s.conn.ExecContext(ctx, "REMOVE "+location); err != nil {
			s.logger.Warnw("failed to clear stage", "stage", location, "error", err)
		}
		cancel()
	}

	return s.conn.Close()
}
