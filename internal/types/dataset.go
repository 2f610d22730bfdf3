// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"path"
	"strings"
)

// Dataset identifies one logical table and the object-store prefix its files arrive under.
// Datasets are built from configuration at startup and never mutated.
type Dataset struct {
	Name   string // logical name, also the staging sub-directory
	Prefix string // object key prefix, e.g. "customers/"
	Table  string // destination warehouse table
}

// NewDataset builds a Dataset, defaulting the prefix to "<name>/" and the table to name.
func NewDataset(name, prefix, table string) Dataset {
	if prefix == "" {
		prefix = name + "/"
	}
	if table == "" {
		table = name
	}
	return Dataset{Name: name, Prefix: prefix, Table: table}
}

// DiscoveredObject is a source key together with its locally materialized copy.
type DiscoveredObject struct {
	Key       string
	LocalPath string
	Size      int64
}

// Batch is the set of objects discovered for one dataset in one cycle.
type Batch struct {
	Dataset Dataset
	Objects []DiscoveredObject
}

// Keys returns the source keys of the batch in discovery order.
func (b *Batch) Keys() []string {
	keys := make([]string, len(b.Objects))
	for i, obj := range b.Objects {
		keys[i] = obj.Key
	}
	return keys
}

// LocalFiles returns the local paths of the batch in discovery order.
func (b *Batch) LocalFiles() []string {
	files := make([]string, len(b.Objects))
	for i, obj := range b.Objects {
		files[i] = obj.LocalPath
	}
	return files
}

// Len returns the number of objects in the batch.
func (b *Batch) Len() int {
	return len(b.Objects)
}

// BaseName returns the final element of an object key, used to name local copies.
// Example: "customers/2025/a.parquet" -> "a.parquet"
func BaseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}
