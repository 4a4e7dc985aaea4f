package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/mealsnap/mealsnap/internal/scan"
)

// MemoryLedger is an in-memory document store for development and tests.
// Its batch writes are applied under one lock, so they are atomic.
type MemoryLedger struct {
	mu          sync.RWMutex
	collections map[string]map[string]scan.ScanRecord
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		collections: make(map[string]map[string]scan.ScanRecord),
	}
}

// BatchWrite applies every write or none.
func (l *MemoryLedger) BatchWrite(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range writes {
		col, ok := l.collections[w.Path]
		if !ok {
			col = make(map[string]scan.ScanRecord)
			l.collections[w.Path] = col
		}
		col[w.Record.ID] = w.Record
	}
	return nil
}

// List returns the most recent records in the given collection.
func (l *MemoryLedger) List(ctx context.Context, path string, limit int) ([]scan.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	col := l.collections[path]
	records := make([]scan.ScanRecord, 0, len(col))
	for _, rec := range col {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Get returns one record from a collection, if present.
func (l *MemoryLedger) Get(path, id string) (scan.ScanRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.collections[path][id]
	return rec, ok
}

var _ Ledger = (*MemoryLedger)(nil)

// MemoryObjects is an in-memory object store for development and tests.
type MemoryObjects struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjects returns an empty in-memory object store.
func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

// Put stores data under key. The reference is "mem://" + key.
func (m *MemoryObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = buf
	return "mem://" + key, nil
}

// Delete removes the object under key.
func (m *MemoryObjects) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns the stored bytes for key.
func (m *MemoryObjects) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len reports the number of stored objects.
func (m *MemoryObjects) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ ObjectStorage = (*MemoryObjects)(nil)
