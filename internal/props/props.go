// Package props serves derived per-asset properties and thumbnails through
// the batched cache, computing and writing back on a miss.
package props

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FairForge/metavault/internal/batch"
	"github.com/FairForge/metavault/internal/derive"
	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/sidecar"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cache kinds
const (
	KindProps = "props"
)

// ThumbKind names the thumbnail kind for a square size, e.g. thumb32.
func ThumbKind(size int) string {
	return fmt.Sprintf("thumb%d", size)
}

// CacheKey identifies a derived value. A changed file has a new
// lastModified or size and therefore a new key.
func CacheKey(e folder.Entry, kind string) string {
	return fmt.Sprintf("%s:%d:%d:%s", e.Name, e.LastModified, e.Size, kind)
}

// Properties are the cached derived properties of an asset
type Properties struct {
	Dimensions sidecar.Dimensions `json:"dimensions"`
}

// Reader is the memoized read path
type Reader interface {
	Get(ctx context.Context, key string, window time.Duration) ([]byte, error)
}

// Writer is the batched write path
type Writer interface {
	Set(ctx context.Context, key string, value []byte, window time.Duration) error
}

// Options tunes a Cache
type Options struct {
	GetWindow time.Duration
	SetWindow time.Duration
	ThumbSize int
}

func (o *Options) applyDefaults() {
	if o.GetWindow <= 0 {
		o.GetWindow = 200 * time.Millisecond
	}
	if o.SetWindow <= 0 {
		o.SetWindow = 100 * time.Millisecond
	}
	if o.ThumbSize <= 0 {
		o.ThumbSize = 32
	}
}

// Cache is owned by one session; it holds no global state.
type Cache struct {
	folder folder.Folder
	reader Reader
	writer Writer
	opts   Options
	logger *zap.Logger
}

// New creates a property cache reading through r and writing back via w
func New(f folder.Folder, r Reader, w Writer, opts Options, logger *zap.Logger) *Cache {
	opts.applyDefaults()
	return &Cache{folder: f, reader: r, writer: w, opts: opts, logger: logger}
}

// NewFromCoalescer wires a memoizer in front of c for reads and uses c for
// write-back.
func NewFromCoalescer(f folder.Folder, c *batch.Coalescer, memo *batch.Memoizer, opts Options, logger *zap.Logger) *Cache {
	return New(f, memo, c, opts, logger)
}

// Properties returns the derived properties of e.
func (c *Cache) Properties(ctx context.Context, e folder.Entry) (Properties, error) {
	var p Properties
	data, _, err := c.lookup(ctx, e, KindProps)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode properties of %s: %w", e.Name, err)
	}
	return p, nil
}

// Thumbnail returns an encoded square thumbnail of e. JPEG assets yield
// JPEG thumbnails, everything else PNG.
func (c *Cache) Thumbnail(ctx context.Context, e folder.Entry) ([]byte, error) {
	data, _, err := c.lookup(ctx, e, ThumbKind(c.opts.ThumbSize))
	return data, err
}

func (c *Cache) compute(e folder.Entry, kind string, asset []byte) ([]byte, error) {
	if kind == KindProps {
		dims, err := derive.Dimensions(asset, e.Type)
		if err != nil {
			return nil, err
		}
		return json.Marshal(Properties{Dimensions: dims})
	}
	size := c.opts.ThumbSize
	out, _, err := derive.ResizeAndCrop(asset, size, size, e.Type)
	return out, err
}

// lookup reads key through the cache; on a miss it reads the asset,
// computes the value and writes it back. hit reports a cache hit.
func (c *Cache) lookup(ctx context.Context, e folder.Entry, kind string) ([]byte, bool, error) {
	key := CacheKey(e, kind)

	data, err := c.reader.Get(ctx, key, c.opts.GetWindow)
	switch {
	case err == nil:
		return data, true, nil
	case ctx.Err() != nil:
		return nil, false, ctx.Err()
	case !errors.Is(err, batch.ErrNotFound):
		c.logger.Warn("cache read failed, recomputing",
			zap.String("key", key),
			zap.Error(err))
	}

	asset, err := c.folder.ReadAsset(ctx, e.Name)
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	value, err := c.compute(e, kind, asset)
	if err != nil {
		return nil, false, fmt.Errorf("derive %s of %s: %w", kind, e.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if err := c.writer.Set(ctx, key, value, c.opts.SetWindow); err != nil && ctx.Err() == nil {
		c.logger.Warn("cache write-back failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return value, false, nil
}

// WarmStats summarizes a Warm run
type WarmStats struct {
	Hits     int64
	Computed int64
	Failed   int64
	Skipped  int64
}

// Warm fills the cache with properties and thumbnails of every supported
// entry, running up to concurrency lookups at once. Per-entry failures are
// counted, not returned; only cancellation stops the run.
func (c *Cache) Warm(ctx context.Context, entries []folder.Entry, concurrency int) (WarmStats, error) {
	var stats WarmStats
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, e := range entries {
		if e.IsDir || !derive.Supported(e.Type) {
			atomic.AddInt64(&stats.Skipped, 1)
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, kind := range []string{KindProps, ThumbKind(c.opts.ThumbSize)} {
				_, hit, err := c.lookup(gctx, e, kind)
				switch {
				case gctx.Err() != nil:
					return gctx.Err()
				case err != nil:
					atomic.AddInt64(&stats.Failed, 1)
					c.logger.Debug("warm failed",
						zap.String("asset", e.Name),
						zap.String("kind", kind),
						zap.Error(err))
				case hit:
					atomic.AddInt64(&stats.Hits, 1)
				default:
					atomic.AddInt64(&stats.Computed, 1)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}
