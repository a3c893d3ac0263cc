package syncengine

import (
	"context"
	"testing"

	"github.com/epokhe/dbfsync/internal/dbf"
	"github.com/epokhe/dbfsync/internal/store"
)

func TestBulkLoadCommitsInBatches(t *testing.T) {
	var records []dbf.Record
	checksums := dbf.ChecksumMap{}
	for i := 0; i < DefaultBulkBatchSize+10; i++ {
		records = append(records, dbf.Record{"NUMART": "A0001"})
		checksums[i] = uint32(i)
	}

	table := &fakeTable{
		header:    dbf.Header{NumRecords: uint32(len(records))},
		checksums: checksums,
		records:   records,
	}
	mem := store.NewMemoryStore()
	e := New(mem, nil)
	e.openTable = fakeOpener(table)
	e.statFile = fakeStatFile

	if err := e.BulkLoad(context.Background(), "/data/arts.dbf"); err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}

	logs := mem.SyncLogs()
	if len(logs) != 1 {
		t.Fatalf("expected one BULK_LOAD sync log entry, got %d", len(logs))
	}
	if logs[0].OperationType != store.OpBulkLoad {
		t.Errorf("operation type = %v, want BULK_LOAD", logs[0].OperationType)
	}
	if logs[0].RecordsProcessed != len(records) {
		t.Errorf("records processed = %d, want %d", logs[0].RecordsProcessed, len(records))
	}

	state, err := mem.GetFileState(context.Background(), "/data/arts.dbf")
	if err != nil {
		t.Fatalf("GetFileState: %v", err)
	}
	if state.Status != store.StatusCompleted {
		t.Errorf("status = %v, want COMPLETED", state.Status)
	}
}

func TestBulkLoadSkipsDeletedRecords(t *testing.T) {
	records := []dbf.Record{
		{"NUMART": "A0001"},
		{dbf.FieldDeleted: true},
		{"NUMART": "A0002"},
	}
	checksums := dbf.ChecksumMap{0: 1, 1: 2, 2: 3}

	table := &fakeTable{
		header:    dbf.Header{NumRecords: uint32(len(records))},
		checksums: checksums,
		records:   records,
	}
	mem := store.NewMemoryStore()
	e := New(mem, nil)
	e.openTable = fakeOpener(table)
	e.statFile = fakeStatFile

	if err := e.BulkLoad(context.Background(), "/data/arts.dbf"); err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}

	logs := mem.SyncLogs()
	if len(logs) != 1 {
		t.Fatalf("expected one BULK_LOAD sync log entry, got %d", len(logs))
	}
	if logs[0].RecordsProcessed != 2 {
		t.Errorf("records processed = %d, want 2 (deleted slot skipped)", logs[0].RecordsProcessed)
	}

	state, err := mem.GetFileState(context.Background(), "/data/arts.dbf")
	if err != nil {
		t.Fatalf("GetFileState: %v", err)
	}
	if state.RecordCount != len(checksums) {
		t.Errorf("record count = %d, want %d (len of checksum map)", state.RecordCount, len(checksums))
	}
}

func TestBulkLoadRejectsUnwatchedTable(t *testing.T) {
	mem := store.NewMemoryStore()
	e := New(mem, nil)
	e.openTable = fakeOpener(&fakeTable{})

	err := e.BulkLoad(context.Background(), "/data/unknown.dbf")
	if err == nil {
		t.Fatal("expected error for unwatched table")
	}
}
