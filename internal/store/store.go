// Package store defines the persistence boundary the sync engine depends
// on, and provides a MySQL-backed implementation of it. Column catalogues
// for the mirrored domain tables are intentionally sparse here: the full
// schema for customers/products/movements belongs to the HTTP query layer
// this repository does not implement.
package store

import (
	"context"
	"time"
)

// ProcessingStatus is the file-state machine from PENDING through
// COMPLETED or ERROR.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusError      ProcessingStatus = "ERROR"
)

// FileState mirrors one row of dbf_file_state.
type FileState struct {
	FilePath      string
	ChecksumMap   map[int]uint32
	RecordCount   int
	LastModified  time.Time
	Status        ProcessingStatus
	ErrorMessage  string
	LastProcessed time.Time
}

// OperationType distinguishes a full bulk load from an incremental sync in
// sync_log.
type OperationType string

const (
	OpBulkLoad OperationType = "BULK_LOAD"
	OpUpdate   OperationType = "UPDATE"
)

// SyncLogEntry mirrors one row of sync_log: an audit record of a single
// sync attempt against one file.
type SyncLogEntry struct {
	FilePath         string
	OperationType    OperationType
	Success          bool
	RecordsProcessed int
	DurationMS       int64
	ErrorMessage     string
	CreatedAt        time.Time
}

// Store is the persistence boundary the sync engine depends on.
type Store interface {
	GetFileState(ctx context.Context, path string) (*FileState, error)
	SaveFileState(ctx context.Context, state FileState) error
	AppendSyncLog(ctx context.Context, entry SyncLogEntry) error
	WithTx(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the set of row-level operations the sync engine issues inside a
// single per-file transaction.
type Tx interface {
	// UpsertByKey inserts row into table, or updates the existing row
	// whose keyColumn equals key, in a single round trip.
	UpsertByKey(ctx context.Context, table, keyColumn, key string, row map[string]any) error
	// InsertAppendOnly inserts row into table unconditionally, used for
	// tables with no natural key (movements).
	InsertAppendOnly(ctx context.Context, table string, row map[string]any) error
}
