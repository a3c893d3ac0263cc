package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by syncengine tests so they don't
// need a live MySQL instance.
type MemoryStore struct {
	mu       sync.Mutex
	files    map[string]FileState
	logs     []SyncLogEntry
	Tables   map[string]map[string]map[string]any // table -> key -> row
	Appended map[string][]map[string]any           // table -> rows, for natural-key-less tables
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]FileState),
		Tables:   make(map[string]map[string]map[string]any),
		Appended: make(map[string][]map[string]any),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetFileState(_ context.Context, path string) (*FileState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fs, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return &fs, nil
}

func (m *MemoryStore) SaveFileState(_ context.Context, state FileState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[state.FilePath] = state
	return nil
}

func (m *MemoryStore) AppendSyncLog(_ context.Context, entry SyncLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs = append(m.logs, entry)
	return nil
}

func (m *MemoryStore) SyncLogs() []SyncLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SyncLogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *MemoryStore) WithTx(_ context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fn(&memoryTx{store: m})
}

type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) UpsertByKey(_ context.Context, table, keyColumn, key string, row map[string]any) error {
	if key == "" {
		return fmt.Errorf("empty natural key for table %s", table)
	}

	if t.store.Tables[table] == nil {
		t.store.Tables[table] = make(map[string]map[string]any)
	}
	t.store.Tables[table][key] = row
	return nil
}

func (t *memoryTx) InsertAppendOnly(_ context.Context, table string, row map[string]any) error {
	t.store.Appended[table] = append(t.store.Appended[table], row)
	return nil
}
