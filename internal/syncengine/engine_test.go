package syncengine

import (
	"context"
	"testing"

	"github.com/epokhe/dbfsync/internal/dbf"
	"github.com/epokhe/dbfsync/internal/store"
)

func newTestEngine(t *testing.T, table *fakeTable) (*Engine, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	e := New(mem, nil)
	e.openTable = fakeOpener(table)
	e.statFile = fakeStatFile
	return e, mem
}

func TestProcessFileInsertsNewCustomer(t *testing.T) {
	table := &fakeTable{
		header:    dbf.Header{NumRecords: 1},
		checksums: dbf.ChecksumMap{0: 111},
		records:   []dbf.Record{{"NUMCLI": "  C001  ", "NOMCLI": "Acme"}},
	}
	e, mem := newTestEngine(t, table)

	if err := e.ProcessFile(context.Background(), "/data/clientes.dbf"); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	row, ok := mem.Tables["customers"]["C001"]
	if !ok {
		t.Fatalf("expected customer C001 to be upserted, tables = %+v", mem.Tables)
	}
	if row["nomcli"] != "Acme" {
		t.Errorf("nomcli = %v, want Acme", row["nomcli"])
	}

	state, err := mem.GetFileState(context.Background(), "/data/clientes.dbf")
	if err != nil {
		t.Fatalf("GetFileState: %v", err)
	}
	if state.Status != store.StatusCompleted {
		t.Errorf("status = %v, want COMPLETED", state.Status)
	}
	if state.ChecksumMap[0] != 111 {
		t.Errorf("checksum map not persisted: %+v", state.ChecksumMap)
	}
}

func TestProcessFileSkipsEmptyNaturalKey(t *testing.T) {
	table := &fakeTable{
		header:    dbf.Header{NumRecords: 1},
		checksums: dbf.ChecksumMap{0: 1},
		records:   []dbf.Record{{"NUMCLI": "   "}},
	}
	e, mem := newTestEngine(t, table)

	if err := e.ProcessFile(context.Background(), "/data/clientes.dbf"); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if len(mem.Tables["customers"]) != 0 {
		t.Errorf("expected blank-key record to be skipped, got %+v", mem.Tables["customers"])
	}
}

func TestProcessFileNoChangesSkipsApply(t *testing.T) {
	mem := store.NewMemoryStore()
	_ = mem.SaveFileState(context.Background(), store.FileState{
		FilePath:    "/data/clientes.dbf",
		ChecksumMap: map[int]uint32{0: 111},
		Status:      store.StatusCompleted,
	})

	table := &fakeTable{
		header:    dbf.Header{NumRecords: 1},
		checksums: dbf.ChecksumMap{0: 111},
		records:   []dbf.Record{{"NUMCLI": "C001"}},
	}
	e := New(mem, nil)
	e.openTable = fakeOpener(table)
	e.statFile = fakeStatFile

	if err := e.ProcessFile(context.Background(), "/data/clientes.dbf"); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if len(mem.Tables["customers"]) != 0 {
		t.Errorf("expected no writes when checksums are unchanged, got %+v", mem.Tables["customers"])
	}
	if len(mem.SyncLogs()) != 0 {
		t.Fatalf("expected zero sync log entries for a no-change poll, got %d", len(mem.SyncLogs()))
	}
}

func TestProcessFileDeletedSlotStaysIndexAligned(t *testing.T) {
	// index 1 is a deleted slot: it must still occupy position 1 in
	// Records() so that index 2's checksum delta resolves to the C002
	// record, not to whatever record would land at position 1 if deleted
	// slots were skipped instead of yielded.
	table := &fakeTable{
		header:    dbf.Header{NumRecords: 3},
		checksums: dbf.ChecksumMap{0: 1, 1: 2, 2: 3},
		records: []dbf.Record{
			{"NUMCLI": "C001", "NOMCLI": "Acme"},
			{dbf.FieldDeleted: true},
			{"NUMCLI": "C002", "NOMCLI": "Globex"},
		},
	}
	e, mem := newTestEngine(t, table)

	if err := e.ProcessFile(context.Background(), "/data/clientes.dbf"); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if row, ok := mem.Tables["customers"]["C001"]; !ok || row["nomcli"] != "Acme" {
		t.Errorf("expected C001 = Acme, got %+v (ok=%v)", row, ok)
	}
	if row, ok := mem.Tables["customers"]["C002"]; !ok || row["nomcli"] != "Globex" {
		t.Errorf("expected C002 = Globex (not shifted into C001's slot), got %+v (ok=%v)", row, ok)
	}
	if len(mem.Tables["customers"]) != 2 {
		t.Errorf("expected exactly 2 customer rows (deleted slot not upserted), got %+v", mem.Tables["customers"])
	}

	state, err := mem.GetFileState(context.Background(), "/data/clientes.dbf")
	if err != nil {
		t.Fatalf("GetFileState: %v", err)
	}
	if state.RecordCount != 3 {
		t.Errorf("record count = %d, want 3 (len of checksum map, deleted slot included)", state.RecordCount)
	}
}

func TestProcessFileMovementsAreAppendOnly(t *testing.T) {
	table := &fakeTable{
		header:    dbf.Header{NumRecords: 2},
		checksums: dbf.ChecksumMap{0: 1, 1: 2},
		records: []dbf.Record{
			{"TIPODOC": "FAC", "NUMDOC": "001"},
			{"TIPODOC": "FAC", "NUMDOC": "002"},
		},
	}
	e, mem := newTestEngine(t, table)

	if err := e.ProcessFile(context.Background(), "/data/movim.dbf"); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if len(mem.Appended["movements"]) != 2 {
		t.Errorf("expected 2 appended movement rows, got %d", len(mem.Appended["movements"]))
	}
}

func TestProcessFileDeleteLogsWarningWithoutDeleting(t *testing.T) {
	mem := store.NewMemoryStore()
	_ = mem.SaveFileState(context.Background(), store.FileState{
		FilePath:    "/data/clientes.dbf",
		ChecksumMap: map[int]uint32{0: 1, 1: 2},
		Status:      store.StatusCompleted,
	})
	_ = mem.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.UpsertByKey(context.Background(), "customers", "NUMCLI", "C001", map[string]any{"numcli": "C001"})
	})

	table := &fakeTable{
		header:    dbf.Header{NumRecords: 1},
		checksums: dbf.ChecksumMap{0: 1}, // index 1 vanished
		records:   []dbf.Record{{"NUMCLI": "C001"}},
	}
	e := New(mem, nil)
	e.openTable = fakeOpener(table)
	e.statFile = fakeStatFile

	if err := e.ProcessFile(context.Background(), "/data/clientes.dbf"); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if _, ok := mem.Tables["customers"]["C001"]; !ok {
		t.Errorf("expected existing row to survive a vanished index (no SQL delete issued)")
	}
}

func TestProcessFileRejectsUnwatchedTable(t *testing.T) {
	e, _ := newTestEngine(t, &fakeTable{})

	err := e.ProcessFile(context.Background(), "/data/other.dbf")
	var notWatched *NotWatchedError
	if err == nil {
		t.Fatal("expected error for unwatched table")
	}
	if !asNotWatched(err, &notWatched) {
		t.Errorf("expected NotWatchedError, got %v", err)
	}
}

func asNotWatched(err error, target **NotWatchedError) bool {
	nw, ok := err.(*NotWatchedError)
	if ok {
		*target = nw
	}
	return ok
}
