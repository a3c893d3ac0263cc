package syncengine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/epokhe/dbfsync/internal/dbf"
	"github.com/epokhe/dbfsync/internal/store"
)

// BulkLoad reads every record in path and upserts/inserts it in batches of
// Engine.BulkBatchSize, committing once per batch so a crash partway
// through preserves the batches that already committed. It finishes by
// persisting the file's full checksum snapshot as COMPLETED and logging a
// BULK_LOAD sync-log entry. Unlike ProcessFile it is never called
// automatically — it's an explicit, manually-triggered full resync of one
// table (see cmd/dbfsync's -bulk-load flag).
func (e *Engine) BulkLoad(ctx context.Context, path string) error {
	started := time.Now()

	recordsProcessed, err := e.bulkLoadLocked(ctx, path)

	entry := store.SyncLogEntry{
		FilePath:         path,
		OperationType:    store.OpBulkLoad,
		RecordsProcessed: recordsProcessed,
		DurationMS:       time.Since(started).Milliseconds(),
		CreatedAt:        started,
		Success:          err == nil,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	if logErr := e.Store.AppendSyncLog(ctx, entry); logErr != nil {
		e.Logger.WithError(logErr).WithField("path", path).Error("append bulk load sync log")
	}

	return err
}

func (e *Engine) bulkLoadLocked(ctx context.Context, path string) (int, error) {
	spec, ok := ClassifyTable(filepath.Base(path))
	if !ok {
		return 0, &NotWatchedError{Path: path}
	}

	reader, err := e.openTable(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	checksums, err := reader.ComputeChecksums()
	if err != nil {
		return 0, err
	}

	batchSize := e.BulkBatchSize
	if batchSize <= 0 {
		batchSize = DefaultBulkBatchSize
	}

	processed := 0
	batch := make([]dbf.Record, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := e.Store.WithTx(ctx, func(tx store.Tx) error {
			for _, rec := range batch {
				row := normalizeRow(spec, rec)
				if spec.KeyField == "" {
					if err := tx.InsertAppendOnly(ctx, spec.SQLTable, row); err != nil {
						return err
					}
					continue
				}
				key := naturalKey(spec, rec)
				if key == "" {
					e.Logger.WithField("table", spec.SQLTable).Warn("empty natural key, skipping record")
					continue
				}
				if err := tx.UpsertByKey(ctx, spec.SQLTable, spec.KeyField, key, row); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		processed += len(batch)
		e.Logger.WithFields(map[string]any{"path": path, "processed": processed}).Info("bulk load progress")
		batch = batch[:0]
		return nil
	}

	for rec, err := range reader.Records() {
		if err != nil {
			return processed, err
		}
		if deleted, _ := rec[dbf.FieldDeleted].(bool); deleted {
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return processed, err
			}
		}
	}
	if err := flush(); err != nil {
		return processed, err
	}

	info, err := e.statFile(path)
	if err != nil {
		return processed, fmt.Errorf("stat %q: %w", path, err)
	}

	state := store.FileState{
		FilePath:      path,
		ChecksumMap:   checksums,
		RecordCount:   len(checksums),
		LastModified:  info.ModTime(),
		Status:        store.StatusCompleted,
		LastProcessed: time.Now(),
	}
	if err := e.Store.SaveFileState(ctx, state); err != nil {
		return processed, fmt.Errorf("save bulk-loaded state for %q: %w", path, err)
	}

	return processed, nil
}
