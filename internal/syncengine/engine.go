// Package syncengine implements the per-file synchronization algorithm:
// snapshot checksums, diff against the last known state, apply the delta as
// natural-key upserts (or append-only inserts) inside one transaction, and
// record the outcome in the file-state row and the sync-log journal.
package syncengine

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/epokhe/dbfsync/internal/dbf"
	"github.com/epokhe/dbfsync/internal/delta"
	"github.com/epokhe/dbfsync/internal/store"
)

// DefaultBulkBatchSize is the number of records committed per transaction
// during BulkLoad when Engine.BulkBatchSize is left unset. config.Load's
// DBF_BULK_BATCH_SIZE is wired into Engine.BulkBatchSize by cmd/dbfsync so
// it can be tuned per deployment without a recompile.
const DefaultBulkBatchSize = 1000

// tableSource is the slice of *dbf.Reader the engine depends on. It exists
// so tests can exercise the sync algorithm against a fake table without
// needing a real, embedded-decoder-parseable .DBF file on disk.
type tableSource interface {
	Header() dbf.Header
	ComputeChecksums() (dbf.ChecksumMap, error)
	Records() iter.Seq2[dbf.Record, error]
	Close() error
}

// Engine ties a store to the per-file sync algorithm. It holds no
// filesystem or watcher state of its own — ProcessFile is handed a path and
// does all of its own I/O.
type Engine struct {
	Store  store.Store
	Logger *logrus.Logger

	// BulkBatchSize overrides DefaultBulkBatchSize for BulkLoad's
	// commit-batching. Zero means "use the default".
	BulkBatchSize int

	openTable func(path string) (tableSource, error)
	statFile  func(path string) (os.FileInfo, error)
}

func New(st store.Store, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		Store:         st,
		Logger:        logger,
		BulkBatchSize: DefaultBulkBatchSize,
		openTable: func(path string) (tableSource, error) {
			return dbf.Open(path)
		},
		statFile: os.Stat,
	}
}

// NotWatchedError is returned when path's basename isn't one of the tables
// this engine knows how to sync.
type NotWatchedError struct{ Path string }

func (e *NotWatchedError) Error() string {
	return fmt.Sprintf("syncengine: %q is not a recognized table", e.Path)
}

// ProcessFile runs the full per-file algorithm against path: compute the
// current checksum snapshot, diff it against the last persisted one, apply
// the resulting deltas, and persist the new state. A sync-log entry is
// appended only when changes were applied or the attempt failed.
func (e *Engine) ProcessFile(ctx context.Context, path string) error {
	started := time.Now()

	spec, ok := ClassifyTable(filepath.Base(path))
	if !ok {
		return &NotWatchedError{Path: path}
	}

	prior, err := e.Store.GetFileState(ctx, path)
	if err != nil {
		return fmt.Errorf("load prior state for %q: %w", path, err)
	}
	if prior == nil {
		prior = &store.FileState{FilePath: path, Status: store.StatusPending, ChecksumMap: map[int]uint32{}}
	}

	prior.Status = store.StatusProcessing
	if err := e.Store.SaveFileState(ctx, *prior); err != nil {
		return fmt.Errorf("mark %q processing: %w", path, err)
	}

	recordsProcessed, hadChanges, procErr := e.processLocked(ctx, path, spec, prior)

	if procErr == nil && !hadChanges {
		// no changes detected: the original sync job only writes a
		// sync_log row when it actually applied something (or failed),
		// not on every idle poll of an unchanged file.
		return nil
	}

	duration := time.Since(started)
	entry := store.SyncLogEntry{
		FilePath:         path,
		OperationType:    store.OpUpdate,
		RecordsProcessed: recordsProcessed,
		DurationMS:       duration.Milliseconds(),
		CreatedAt:        started,
	}

	if procErr != nil {
		entry.Success = false
		entry.ErrorMessage = procErr.Error()

		prior.Status = store.StatusError
		prior.ErrorMessage = procErr.Error()
		if saveErr := e.Store.SaveFileState(ctx, *prior); saveErr != nil {
			e.Logger.WithError(saveErr).WithField("path", path).Error("save error state")
		}
	} else {
		entry.Success = true
	}

	if logErr := e.Store.AppendSyncLog(ctx, entry); logErr != nil {
		e.Logger.WithError(logErr).WithField("path", path).Error("append sync log")
	}

	return procErr
}

// processLocked does the actual checksum/diff/apply work once the file
// state row has already been flipped to PROCESSING. It recovers from
// panics in the per-record upsert path so a malformed record can't take
// down the caller's goroutine.
func (e *Engine) processLocked(ctx context.Context, path string, spec TableSpec, prior *store.FileState) (recordsProcessed int, hadChanges bool, rerr error) {
	defer func() {
		if p := recover(); p != nil {
			rerr = fmt.Errorf("panic processing %q: %v", path, p)
		}
	}()

	reader, err := e.openTable(path)
	if err != nil {
		return 0, false, err
	}
	defer reader.Close()

	current, err := reader.ComputeChecksums()
	if err != nil {
		return 0, false, err
	}

	deltas := delta.Compute(prior.ChecksumMap, current)
	hadChanges = deltas.HasChanges()

	if !hadChanges {
		prior.Status = store.StatusCompleted
		prior.LastProcessed = time.Now()
		if err := e.Store.SaveFileState(ctx, *prior); err != nil {
			return 0, hadChanges, fmt.Errorf("save completed state for %q: %w", path, err)
		}
		return 0, hadChanges, nil
	}

	records, err := collectRecords(reader)
	if err != nil {
		return 0, hadChanges, err
	}

	recordsProcessed, err = e.applyDeltas(ctx, spec, records, deltas)
	if err != nil {
		return recordsProcessed, hadChanges, err
	}

	info, err := e.statFile(path)
	if err != nil {
		return recordsProcessed, hadChanges, fmt.Errorf("stat %q: %w", path, err)
	}

	prior.ChecksumMap = current
	prior.RecordCount = len(current)
	prior.LastModified = info.ModTime()
	prior.Status = store.StatusCompleted
	prior.ErrorMessage = ""
	prior.LastProcessed = time.Now()

	if err := e.Store.SaveFileState(ctx, *prior); err != nil {
		return recordsProcessed, hadChanges, fmt.Errorf("save completed state for %q: %w", path, err)
	}

	return recordsProcessed, hadChanges, nil
}

// collectRecords drains every record in the table once, indexed by
// physical record position, so deltas (themselves index-keyed) can be
// resolved against them without a second pass over the file.
func collectRecords(reader tableSource) ([]dbf.Record, error) {
	var records []dbf.Record
	for rec, err := range reader.Records() {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// applyDeltas runs the delete-then-upsert sequence for one file's deltas
// inside a single transaction, matching the ordering guarantee that a
// file's changes commit atomically as one unit.
func (e *Engine) applyDeltas(ctx context.Context, spec TableSpec, records []dbf.Record, deltas delta.Deltas) (int, error) {
	processed := 0

	err := e.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, idx := range deltas.Deletes {
			// record-index instability means a physically-removed index
			// may just be a shifted survivor, not a real deletion; we log
			// and never issue a SQL DELETE based on index alone.
			e.Logger.WithFields(logrus.Fields{"table": spec.SQLTable, "index": idx}).
				Warn("record index no longer present; not deleting (index is not a stable identity)")
			processed++
		}

		for _, idx := range deltas.Inserts {
			if err := e.upsertIndex(ctx, tx, spec, records, idx); err != nil {
				return err
			}
			processed++
		}

		for _, idx := range deltas.Updates {
			if err := e.upsertIndex(ctx, tx, spec, records, idx); err != nil {
				return err
			}
			processed++
		}

		return nil
	})

	return processed, err
}

func (e *Engine) upsertIndex(ctx context.Context, tx store.Tx, spec TableSpec, records []dbf.Record, idx int) error {
	if idx < 0 || idx >= len(records) {
		// the checksum snapshot saw more records than were decoded (e.g.
		// the header's record count lags the full records physically on
		// disk, which the checksum pass counts); skip rather than fail the
		// whole file.
		e.Logger.WithField("index", idx).Warn("record index out of range of decoded records, skipping")
		return nil
	}

	rec := records[idx]
	if deleted, _ := rec[dbf.FieldDeleted].(bool); deleted {
		// the slot is still counted in the checksum map (xBase marks
		// deletion in place rather than removing the record), but there is
		// nothing to write — and record-index instability means we never
		// issue a SQL delete for it either (see the Deletes loop above).
		return nil
	}

	row := normalizeRow(spec, rec)

	if spec.KeyField == "" {
		return tx.InsertAppendOnly(ctx, spec.SQLTable, row)
	}

	key := naturalKey(spec, rec)
	if key == "" {
		e.Logger.WithFields(logrus.Fields{"table": spec.SQLTable, "index": idx}).
			Warn("empty natural key, skipping record")
		return nil
	}

	return tx.UpsertByKey(ctx, spec.SQLTable, spec.KeyField, key, row)
}
