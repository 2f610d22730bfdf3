// Package warehouse stages local files into the warehouse and bulk-loads them
// into destination tables.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/goingest/internal/config"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/sqlutil"
	"github.com/dbsmedya/goingest/internal/types"
)

// Session is one dataset's unit of work against the warehouse.
//
// Stage uploads files, LoadStaged bulk-loads them inside a transaction and
// Commit makes the load durable. Close rolls back anything not committed and
// releases the connection; it is always safe to call.
type Session interface {
	Stage(ctx context.Context, dataset, table string, files []string) (StagedRef, error)
	LoadStaged(ctx context.Context, table string, ref StagedRef, opts LoadOptions) (LoadStats, error)
	Commit() error
	Close() error
}

// Opener hands out sessions. Each concurrent dataset task opens its own.
type Opener interface {
	OpenSession(ctx context.Context, runID string) (Session, error)
}

// LoadOptions controls how COPY treats the staged files.
type LoadOptions struct {
	FileFormat        string // PARQUET, CSV, JSON
	MatchByColumnName string // NONE, CASE_SENSITIVE, CASE_INSENSITIVE
	OnError           string // continue skips bad records; abort_statement fails the load
}

// LoadOptionsFromConfig converts warehouse configuration into load options.
func LoadOptionsFromConfig(cfg *config.WarehouseConfig) LoadOptions {
	return LoadOptions{
		FileFormat:        cfg.FileFormat,
		MatchByColumnName: cfg.MatchByColumnName,
		OnError:           cfg.OnError,
	}
}

// SkipsBadRecords reports whether malformed records are skipped rather than failing the load.
func (o LoadOptions) SkipsBadRecords() bool {
	return o.OnError == "" || strings.EqualFold(o.OnError, "continue")
}

// StagedRef identifies the files uploaded by Stage.
type StagedRef struct {
	Table      string
	Location   string   // e.g. @%customers/<run id>/
	Files      []string // staged file names
	LocalFiles []string // local paths, used for expected row counts
}

// Loader opens warehouse sessions from a connection pool.
type Loader struct {
	db      *sql.DB
	timeout time.Duration
	logger  *logger.Logger
}

// NewLoader creates a loader over an open warehouse pool.
func NewLoader(db *sql.DB, callTimeout time.Duration, log *logger.Logger) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("warehouse database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Loader{db: db, timeout: callTimeout, logger: log}, nil
}

// OpenSession reserves a pooled connection for one dataset's stage/load/commit sequence.
func (l *Loader) OpenSession(ctx context.Context, runID string) (Session, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, types.NewError(types.KindLoadFailed, fmt.Errorf("failed to acquire warehouse connection: %w", err))
	}
	return &sqlSession{
		conn:    conn,
		runID:   runID,
		timeout: l.timeout,
		logger:  l.logger.WithRun(runID),
	}, nil
}

// CheckTable verifies that table exists and is reachable with the configured role.
func (l *Loader) CheckTable(ctx context.Context, table string) error {
	id, err := sqlutil.TableIdentifier(table)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, "SELECT 1 FROM "+id+" LIMIT 0")
	if err != nil {
		return fmt.Errorf("table %s is not accessible: %w", table, err)
	}
	return rows.Close()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
