package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ingestion failures so callers can alert on them without
// parsing error strings.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindStoreUnavailable    ErrorKind = "StoreUnavailable"
	KindObjectNotFound      ErrorKind = "ObjectNotFound"
	KindStageUploadFailed   ErrorKind = "StageUploadFailed"
	KindLoadFailed          ErrorKind = "LoadFailed"
	KindArchiveCopyFailed   ErrorKind = "ArchiveCopyFailed"
	KindArchiveDeleteFailed ErrorKind = "ArchiveDeleteFailed"
	KindDiscoveryConflict   ErrorKind = "DiscoveryConflict"
	KindCancelled           ErrorKind = "Cancelled"
)

// Error is a classified ingestion failure.
type Error struct {
	Kind    ErrorKind
	Dataset string
	Key     string
	Err     error
}

// NewError wraps err with a kind. Dataset and key are optional context.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Dataset != "" {
		msg += " [" + e.Dataset + "]"
	}
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// WithKey returns a copy of the error annotated with an object key.
func (e *Error) WithKey(key string) *Error {
	cp := *e
	cp.Key = key
	return &cp
}

// WithDataset returns a copy of the error annotated with a dataset name.
func (e *Error) WithDataset(name string) *Error {
	cp := *e
	cp.Dataset = name
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain, or KindNone.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NeedsCleanup reports whether the kind leaves both an archived copy and the
// original object in place. Nothing is lost, but an operator should tidy up.
func (k ErrorKind) NeedsCleanup() bool {
	return k == KindArchiveDeleteFailed
}
