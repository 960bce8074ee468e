package cache

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleKV is the durable KV backend for real devices.
type PebbleKV struct {
	db *pebble.DB
}

func OpenPebble(path string) (*PebbleKV, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Get(key string) ([]byte, bool, error) {
	value, closer, err := p.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("cache read close failed: %w", err)
	}
	return out, true, nil
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (pb *pebbleBatch) Set(key string, value []byte) {
	_ = pb.b.Set([]byte(key), value, nil)
}

func (pb *pebbleBatch) Delete(key string) {
	_ = pb.b.Delete([]byte(key), nil)
}

func (p *PebbleKV) Commit(fn func(Batch) error) error {
	batch := p.db.NewBatch()
	if err := fn(&pebbleBatch{b: batch}); err != nil {
		_ = batch.Close()
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("cache commit failed: %w", err)
	}
	return nil
}

func (p *PebbleKV) Close() error {
	return p.db.Close()
}
