package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内的记录存储.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore 创建空的内存存储.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get 返回键对应的记录.
func (m *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]

	return rec, ok, nil
}

// Set 写入记录.
func (m *MemoryStore) Set(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.Key] = rec

	return nil
}

// Sweep 删除过期记录.
func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for k, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, k)
			n++
		}
	}

	return n, nil
}

// Len 返回当前记录数.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}
