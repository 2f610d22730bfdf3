package warehouse

import (
	"database/sql"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dbsmedya/goingest/internal/types"
)

// COPY INTO file statuses.
const (
	FileLoaded          = "LOADED"
	FilePartiallyLoaded = "PARTIALLY_LOADED"
	FileLoadFailed      = "LOAD_FAILED"
	FileLoadSkipped     = "LOAD_SKIPPED"
)

// FileResult is one row of the COPY INTO result set.
type FileResult struct {
	File       string
	Status     string
	RowsParsed int64
	RowsLoaded int64
	ErrorsSeen int64
	FirstError string
	Rejected   bool // every record failed under ON_ERROR=CONTINUE
}

// LoadStats summarizes a bulk load.
type LoadStats struct {
	FilesLoaded   int
	RowsParsed    int64
	RowsLoaded    int64
	RowsSkipped   int64
	FirstErrors   []string
	RejectedFiles []string
	Files         []FileResult
}

// FailedFiles returns the names of files that fail the load. Rejected files
// are not among them.
func (s *LoadStats) FailedFiles() []string {
	var failed []string
	for _, f := range s.Files {
		if f.Status == FileLoadFailed && !f.Rejected {
			failed = append(failed, f.File)
		}
	}
	return failed
}

// rejectBadFiles treats LOAD_FAILED files that reported record errors as
// skipped: all of their parsed rows count toward RowsSkipped and the file is
// listed in RejectedFiles. Such a file is archived with the rest of the batch.
func (s *LoadStats) rejectBadFiles() {
	for i := range s.Files {
		f := &s.Files[i]
		if f.Status != FileLoadFailed || f.ErrorsSeen == 0 {
			continue
		}
		f.Rejected = true
		s.RejectedFiles = append(s.RejectedFiles, f.File)
		// ErrorsSeen was already counted while parsing.
		if extra := f.RowsParsed - f.RowsLoaded - f.ErrorsSeen; extra > 0 {
			s.RowsSkipped += extra
		}
	}
}

// reportedFiles returns the local files that appear in the COPY result.
// Files the warehouse did not process (already loaded, or a zero-file result)
// say nothing about skipped records.
func (s *LoadStats) reportedFiles(local []string) []string {
	names := make(map[string]bool, len(s.Files))
	for _, f := range s.Files {
		names[path.Base(f.File)] = true
	}
	var out []string
	for _, l := range local {
		if names[filepath.Base(l)] {
			out = append(out, l)
		}
	}
	return out
}

// applyExpected raises RowsSkipped when the source files hold more rows than
// were parsed and loaded.
func (s *LoadStats) applyExpected(expected int64) {
	if missing := expected - s.RowsLoaded; missing > s.RowsSkipped {
		s.RowsSkipped = missing
	}
}

// parseCopyResult reads the COPY INTO result set. Columns are matched by name
// because the warehouse returns a single "status" column when nothing was processed.
func parseCopyResult(rows *sql.Rows) (LoadStats, error) {
	defer rows.Close()

	var stats LoadStats

	cols, err := rows.Columns()
	if err != nil {
		return stats, fmt.Errorf("failed to read COPY result columns: %w", err)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[strings.ToLower(c)] = i
	}

	get := func(vals []interface{}, name string) interface{} {
		if i, ok := index[name]; ok {
			return vals[i]
		}
		return nil
	}

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return stats, fmt.Errorf("failed to scan COPY result: %w", err)
		}

		if _, ok := index["file"]; !ok {
			// "Copy executed with 0 files processed."
			continue
		}

		fr := FileResult{
			File:       types.ToString(get(vals, "file")),
			Status:     strings.ToUpper(types.ToString(get(vals, "status"))),
			RowsParsed: types.ToInt64(get(vals, "rows_parsed")),
			RowsLoaded: types.ToInt64(get(vals, "rows_loaded")),
			ErrorsSeen: types.ToInt64(get(vals, "errors_seen")),
			FirstError: types.ToString(get(vals, "first_error")),
		}
		stats.Files = append(stats.Files, fr)

		if fr.Status == FileLoaded || fr.Status == FilePartiallyLoaded {
			stats.FilesLoaded++
		}
		stats.RowsParsed += fr.RowsParsed
		stats.RowsLoaded += fr.RowsLoaded
		stats.RowsSkipped += fr.ErrorsSeen
		if fr.FirstError != "" {
			stats.FirstErrors = append(stats.FirstErrors, fr.File+": "+fr.FirstError)
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to read COPY result: %w", err)
	}
	return stats, nil
}
