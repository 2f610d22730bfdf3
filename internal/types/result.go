package types

import "time"

// Status is the terminal outcome of one dataset in one cycle.
type Status string

const (
	StatusLoaded    Status = "Loaded"
	StatusNoObjects Status = "NoObjects"
	StatusFailed    Status = "Failed"
)

// CycleResult describes what happened to one dataset during one cycle.
//
// RowsSkipped counts records the warehouse dropped under the skip-bad-records
// policy. A Loaded result with RowsSkipped > 0 means the source files were
// archived even though some of their records did not load. RejectedFiles names
// the archived files none of whose records loaded.
type CycleResult struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	Dataset        string        `json:"dataset" yaml:"dataset"`
	Table          string        `json:"table" yaml:"table"`
	Status         Status        `json:"status" yaml:"status"`
	ObjectCount    int           `json:"object_count" yaml:"object_count"`
	RowsLoaded     int64         `json:"rows_loaded" yaml:"rows_loaded"`
	RowsSkipped    int64         `json:"rows_skipped" yaml:"rows_skipped"`
	RejectedFiles  []string      `json:"rejected_files,omitempty" yaml:"rejected_files,omitempty"`
	ArchivedKeys   []string      `json:"archived_keys,omitempty" yaml:"archived_keys,omitempty"`
	UnarchivedKeys []string      `json:"unarchived_keys,omitempty" yaml:"unarchived_keys,omitempty"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Err            error         `json:"-" yaml:"-"`
	Error          string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at" yaml:"started_at"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
}

// Fail marks the result Failed and records the error and its kind.
func (r *CycleResult) Fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.ErrorKind = KindOf(err)
	if err != nil {
		r.Error = err.Error()
	}
}

// Failed reports whether the dataset ended in the Failed state.
func (r *CycleResult) Failed() bool {
	return r.Status == StatusFailed
}

// AnyFailed reports whether any result in the slice failed.
func AnyFailed(results []CycleResult) bool {
	for i := range results {
		if results[i].Failed() {
			return true
		}
	}
	return false
}
