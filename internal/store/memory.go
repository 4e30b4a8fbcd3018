package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local BulkStore. Entries live until the process exits
// unless a TTL is given.
type Memory struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemory creates an in-memory store. ttl <= 0 keeps entries forever.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		return &Memory{cache: cache.New(cache.NoExpiration, 0), ttl: cache.NoExpiration}
	}
	return &Memory{cache: cache.New(ttl, ttl*2), ttl: ttl}
}

func (m *Memory) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := m.cache.Get(k); ok {
			out[i] = copyBytes(v.([]byte))
		}
	}
	return out, nil
}

func (m *Memory) SetMany(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range entries {
		m.cache.Set(e.Key, copyBytes(e.Value), m.ttl)
	}
	return nil
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	return m.cache.ItemCount()
}

func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
