package batch

import (
	"bytes"
	"context"
	"time"

	"github.com/FairForge/metavault/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Getter is the read side of a Coalescer
type Getter interface {
	Get(ctx context.Context, key string, window time.Duration) ([]byte, error)
}

// Memoizer collapses concurrent reads of the same key into one underlying
// Get. Nothing is cached once a read settles, so a failed read is retried
// by the next caller.
type Memoizer struct {
	getter  Getter
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewMemoizer wraps g. m may be nil.
func NewMemoizer(g Getter, m *metrics.Metrics) *Memoizer {
	return &Memoizer{getter: g, metrics: m}
}

// Get joins an in-flight read of key or starts one. The shared read is not
// cancelled when one of its callers gives up; each caller only stops
// waiting.
func (m *Memoizer) Get(ctx context.Context, key string, window time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.getter.Get(shared, key, window)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		value, _ := res.Val.([]byte)
		if res.Shared {
			m.metrics.IncMemoShared()
			// every caller gets its own copy
			value = bytes.Clone(value)
			if value == nil {
				value = []byte{}
			}
		}
		return value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
