// internal/batch/coalescer.go - merges point reads/writes into bulk store calls
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/metavault/internal/metrics"
	"github.com/FairForge/metavault/internal/store"
	"go.uber.org/zap"
)

type getResult struct {
	value []byte
	err   error
}

type getRequest struct {
	key    string
	result chan getResult
}

type setRequest struct {
	entry  store.Entry
	result chan error
}

// pipeline is one pending buffer plus its armed timer.
type pipeline[T any] struct {
	mu      sync.Mutex
	pending []T
	timer   *time.Timer
}

// add appends req and reports whether it opened a new window. Callers
// hold p.mu.
func (p *pipeline[T]) add(req T) bool {
	p.pending = append(p.pending, req)
	return len(p.pending) == 1
}

// take swaps the pending buffer out.
func (p *pipeline[T]) take() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := p.pending
	p.pending = nil
	p.timer = nil
	return batch
}

// Coalescer batches Get and Set calls arriving within a window into one
// GetMany or SetMany call. The first call into an empty buffer arms the
// window timer; later calls join without extending it. Get and Set run
// independent pipelines.
type Coalescer struct {
	store     store.BulkStore
	logger    *zap.Logger
	metrics   *metrics.Metrics
	opTimeout time.Duration

	gets pipeline[*getRequest]
	sets pipeline[*setRequest]

	closeMu sync.RWMutex
	closed  bool
	flushes sync.WaitGroup
}

// Option configures a Coalescer
type Option func(*Coalescer)

// WithMetrics records batch sizes and flush results
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coalescer) { c.metrics = m }
}

// WithOpTimeout bounds each bulk store call. Zero means no bound.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Coalescer) { c.opTimeout = d }
}

// NewCoalescer creates a coalescer. It is the only component that should
// call s directly.
func NewCoalescer(s store.BulkStore, logger *zap.Logger, opts ...Option) *Coalescer {
	c := &Coalescer{store: s, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored value of key. A missing key fails with an error
// matching ErrNotFound. If ctx ends first Get returns ctx.Err(); the
// request keeps its slot in the batch and its result is discarded.
func (c *Coalescer) Get(ctx context.Context, key string, window time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := &getRequest{key: key, result: make(chan getResult, 1)}
	if err := enqueue(c, &c.gets, req, window, c.flushGets); err != nil {
		return nil, err
	}

	select {
	case r := <-req.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Set stores value under key. Every Set in a failed batch receives the same
// *BatchError.
func (c *Coalescer) Set(ctx context.Context, key string, value []byte, window time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := &setRequest{
		entry:  store.Entry{Key: key, Value: value},
		result: make(chan error, 1),
	}
	if err := enqueue(c, &c.sets, req, window, c.flushSets); err != nil {
		return err
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func enqueue[T any](c *Coalescer, p *pipeline[T], req T, window time.Duration, flush func()) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.add(req) {
		c.flushes.Add(1)
		p.timer = time.AfterFunc(window, flush)
	}
	return nil
}

func (c *Coalescer) opContext() (context.Context, context.CancelFunc) {
	if c.opTimeout > 0 {
		return context.WithTimeout(context.Background(), c.opTimeout)
	}
	return context.WithCancel(context.Background())
}

func (c *Coalescer) flushGets() {
	defer c.flushes.Done()

	batch := c.gets.take()
	if len(batch) == 0 {
		return
	}

	keys := make([]string, len(batch))
	for i, req := range batch {
		keys[i] = req.key
	}

	ctx, cancel := c.opContext()
	vals, err := c.store.GetMany(ctx, keys)
	cancel()
	if err == nil && len(vals) != len(keys) {
		err = fmt.Errorf("%w: %d values for %d keys", ErrShortBatch, len(vals), len(keys))
	}
	c.metrics.ObserveBatch("get", len(batch), err)

	if err != nil {
		c.logger.Warn("cache get batch failed", zap.Int("size", len(batch)), zap.Error(err))
		shared := &BatchError{Op: "get", Size: len(batch), Err: err}
		for _, req := range batch {
			req.result <- getResult{err: shared}
		}
		return
	}

	for i, req := range batch {
		if vals[i] == nil {
			req.result <- getResult{err: NotFoundError{Key: req.key}}
			continue
		}
		req.result <- getResult{value: vals[i]}
	}

	c.logger.Debug("cache get batch flushed", zap.Int("size", len(batch)))
}

func (c *Coalescer) flushSets() {
	defer c.flushes.Done()

	batch := c.sets.take()
	if len(batch) == 0 {
		return
	}

	entries := make([]store.Entry, len(batch))
	for i, req := range batch {
		entries[i] = req.entry
	}

	ctx, cancel := c.opContext()
	err := c.store.SetMany(ctx, entries)
	cancel()
	c.metrics.ObserveBatch("set", len(batch), err)

	var shared error
	if err != nil {
		c.logger.Warn("cache set batch failed", zap.Int("size", len(batch)), zap.Error(err))
		shared = &BatchError{Op: "set", Size: len(batch), Err: err}
	}
	for _, req := range batch {
		req.result <- shared
	}

	c.logger.Debug("cache set batch flushed", zap.Int("size", len(batch)))
}

// Close flushes any pending batches immediately and waits for in-flight
// flushes. Later calls fail with ErrClosed. It does not close the store.
func (c *Coalescer) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	expedite(&c.gets, c.flushGets)
	expedite(&c.sets, c.flushSets)

	c.flushes.Wait()
	return nil
}

// expedite fires an armed window now. If the timer already fired, its
// flush is running and accounted for in the wait group.
func expedite[T any](p *pipeline[T], flush func()) {
	p.mu.Lock()
	t := p.timer
	p.mu.Unlock()
	if t != nil && t.Stop() {
		flush()
	}
}
