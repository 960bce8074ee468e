package cache

import (
	"sync"
)

// Batch stages writes that commit atomically.
type Batch interface {
	Set(key string, value []byte)
	Delete(key string)
}

// KV is the injected persistence interface the cache runs on. Commit is
// all-or-nothing: either every staged write lands or none do, which is
// what keeps previously committed pages intact when a write fails.
type KV interface {
	Get(key string) (value []byte, found bool, err error)
	Commit(fn func(Batch) error) error
	Close() error
}

// MemoryKV is a map-backed KV for tests and ephemeral sessions.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

type memoryBatch struct {
	sets    map[string][]byte
	deletes map[string]struct{}
}

func (b *memoryBatch) Set(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	b.sets[key] = v
	delete(b.deletes, key)
}

func (b *memoryBatch) Delete(key string) {
	delete(b.sets, key)
	b.deletes[key] = struct{}{}
}

func (m *MemoryKV) Commit(fn func(Batch) error) error {
	batch := &memoryBatch{
		sets:    make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	if err := fn(batch); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range batch.sets {
		m.data[k] = v
	}
	for k := range batch.deletes {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
