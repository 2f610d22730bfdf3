// Package ledger records cycle history in the optional MySQL state database.
//
// The ledger is write-mostly: the pipeline never reads it back to decide what
// to ingest. Source objects remaining at their original keys are the only
// cross-cycle state.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/types"
)

// CycleStatus is the recorded outcome of a whole cycle.
type CycleStatus string

const (
	CycleRunning     CycleStatus = "running"
	CycleSucceeded   CycleStatus = "succeeded"
	CycleFailed      CycleStatus = "failed"
	CycleInterrupted CycleStatus = "interrupted"
)

const createCycleTableSQL = `
CREATE TABLE IF NOT EXISTS ingest_cycle (
	run_id CHAR(36) PRIMARY KEY,
	cycle_name VARCHAR(255) NOT NULL,
	datasets INT NOT NULL DEFAULT 0,
	cycle_status VARCHAR(20) NOT NULL DEFAULT 'running',
	started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	finished_at TIMESTAMP NULL,
	INDEX idx_cycle_started (cycle_name, started_at),
	INDEX idx_status (cycle_status)
) ENGINE=InnoDB;
`

const createDatasetTableSQL = `
CREATE TABLE IF NOT EXISTS ingest_cycle_dataset (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_id CHAR(36) NOT NULL,
	dataset VARCHAR(255) NOT NULL,
	dest_table VARCHAR(255) NOT NULL,
	dataset_status VARCHAR(20) NOT NULL,
	error_kind VARCHAR(40) NOT NULL DEFAULT '',
	object_count INT NOT NULL DEFAULT 0,
	rows_loaded BIGINT NOT NULL DEFAULT 0,
	rows_skipped BIGINT NOT NULL DEFAULT 0,
	unarchived_keys TEXT,
	error_message TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uk_run_dataset (run_id, dataset),
	INDEX idx_dataset_status (dataset, dataset_status),
	FOREIGN KEY (run_id) REFERENCES ingest_cycle(run_id) ON DELETE CASCADE
) ENGINE=InnoDB;
`

// Cycle is one row of ingest_cycle.
type Cycle struct {
	RunID      string
	CycleName  string
	Datasets   int
	Status     CycleStatus
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Ledger writes cycle history. It implements pipeline.Recorder.
type Ledger struct {
	db        *sql.DB
	cycleName string
	logger    *logger.Logger
}

// New creates a ledger for the named cycle.
func New(db *sql.DB, cycleName string, log *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if cycleName == "" {
		cycleName = "default"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Ledger{db: db, cycleName: cycleName, logger: log}, nil
}

// InitializeTables creates the ledger tables if they don't exist.
// It is idempotent and safe to call on every startup.
func (l *Ledger) InitializeTables(ctx context.Context) error {
	l.logger.Debug("Initializing ledger tables")

	if _, err := l.db.ExecContext(ctx, createCycleTableSQL); err != nil {
		return fmt.Errorf("failed to create ingest_cycle table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createDatasetTableSQL); err != nil {
		return fmt.Errorf("failed to create ingest_cycle_dataset table: %w", err)
	}

	l.logger.Info("Ledger tables initialized")
	return nil
}

// MarkInterrupted flags cycles of this name still marked running, left behind
// by a process that died mid-cycle. Call it while holding the cycle lock.
func (l *Ledger) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"UPDATE ingest_cycle SET cycle_status = ?, finished_at = CURRENT_TIMESTAMP WHERE cycle_name = ? AND cycle_status = ?",
		CycleInterrupted, l.cycleName, CycleRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted cycles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		l.logger.Warnf("Marked %d interrupted cycles for %q", n, l.cycleName)
	}
	return n, nil
}

// CycleStarted inserts the cycle row.
func (l *Ledger) CycleStarted(ctx context.Context, runID string, datasets []types.Dataset) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO ingest_cycle (run_id, cycle_name, datasets, cycle_status) VALUES (?, ?, ?, ?)",
		runID, l.cycleName, len(datasets), CycleRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle start: %w", err)
	}
	return nil
}

// DatasetFinished upserts one dataset's result.
func (l *Ledger) DatasetFinished(ctx context.Context, r types.CycleResult) error {
	var unarchived sql.NullString
	if len(r.UnarchivedKeys) > 0 {
		b, err := json.Marshal(r.UnarchivedKeys)
		if err != nil {
			return fmt.Errorf("failed to encode unarchived keys: %w", err)
		}
		unarchived = sql.NullString{String: string(b), Valid: true}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ingest_cycle_dataset
			(run_id, dataset, dest_table, dataset_status, error_kind, object_count, rows_loaded, rows_skipped, unarchived_keys, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			dataset_status = VALUES(dataset_status), error_kind = VALUES(error_kind),
			object_count = VALUES(object_count), rows_loaded = VALUES(rows_loaded),
			rows_skipped = VALUES(rows_skipped), unarchived_keys = VALUES(unarchived_keys),
			error_message = VALUES(error_message), duration_ms = VALUES(duration_ms)`,
		r.RunID, r.Dataset, r.Table, string(r.Status), string(r.ErrorKind), r.ObjectCount,
		r.RowsLoaded, r.RowsSkipped, unarchived, r.Error, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record dataset %s: %w", r.Dataset, err)
	}
	return nil
}

// CycleFinished closes the cycle row.
func (l *Ledger) CycleFinished(ctx context.Context, runID string, results []types.CycleResult) error {
	status := CycleSucceeded
	if types.AnyFailed(results) {
		status = CycleFailed
	}

	_, err := l.db.ExecContext(ctx,
		"UPDATE ingest_cycle SET cycle_status = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?",
		status, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle finish: %w", err)
	}

	l.logger.Debugf("Cycle %s recorded as %s", runID, status)
	return nil
}

// RecentCycles returns the newest cycles for this cycle name.
func (l *Ledger) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx,
		"SELECT run_id, cycle_name, datasets, cycle_status, started_at, finished_at FROM ingest_cycle WHERE cycle_name = ? ORDER BY started_at DESC LIMIT ?",
		l.cycleName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.RunID, &c.CycleName, &c.Datasets, &c.Status, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}
	return cycles, nil
}

// PendingCleanup returns datasets whose most recent result left objects in
// both the source and archive locations, with the keys still at the source.
func (l *Ledger) PendingCleanup(ctx context.Context) (map[string][]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT d.dataset, d.error_kind, d.unarchived_keys FROM ingest_cycle_dataset d
		JOIN ingest_cycle c ON c.run_id = d.run_id
		WHERE c.cycle_name = ?
		ORDER BY d.id ASC`,
		l.cycleName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending cleanup: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	out := make(map[string][]string)
	for rows.Next() {
		var dataset, kind string
		var keys sql.NullString
		if err := rows.Scan(&dataset, &kind, &keys); err != nil {
			return nil, fmt.Errorf("failed to scan pending cleanup: %w", err)
		}
		if !types.ErrorKind(kind).NeedsCleanup() {
			delete(out, dataset)
			continue
		}
		var list []string
		if keys.Valid && keys.String != "" {
			if err := json.Unmarshal([]byte(keys.String), &list); err != nil {
				return nil, fmt.Errorf("failed to decode unarchived keys for %s: %w", dataset, err)
			}
		}
		out[dataset] = list
	}
	return out, rows.Err()
}
