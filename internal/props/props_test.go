package props

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FairForge/metavault/internal/batch"
	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/FairForge/metavault/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

type fixture struct {
	dir    string
	folder *folder.Local
	store  *store.Memory
	cache  *Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f, err := folder.NewLocal(dir, zap.NewNop())
	require.NoError(t, err)

	s := store.NewMemory(0)
	c := batch.NewCoalescer(s, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	memo := batch.NewMemoizer(c, nil)

	cache := NewFromCoalescer(f, c, memo, Options{
		GetWindow: 10 * time.Millisecond,
		SetWindow: 10 * time.Millisecond,
	}, zap.NewNop())

	return &fixture{dir: dir, folder: f, store: s, cache: cache}
}

func (fx *fixture) entry(t *testing.T, name string) folder.Entry {
	t.Helper()
	entries, err := fx.folder.Entries(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("entry %s not found", name)
	return folder.Entry{}
}

func TestCacheKey(t *testing.T) {
	e := folder.Entry{Name: "a.jpg", LastModified: 1700000000000, Size: 42}
	assert.Equal(t, "a.jpg:1700000000000:42:props", CacheKey(e, KindProps))
	assert.Equal(t, "a.jpg:1700000000000:42:thumb32", CacheKey(e, ThumbKind(32)))
}

func TestProperties_MissThenHit(t *testing.T) {
	fx := newFixture(t)
	writePNG(t, filepath.Join(fx.dir, "a.png"), 8, 6)
	e := fx.entry(t, "a.png")

	p, err := fx.cache.Properties(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, sidecar.Dimensions{Width: 8, Height: 6}, p.Dimensions)
	assert.Equal(t, 1, fx.store.Len(), "value written back")

	// the asset is no longer needed once cached
	require.NoError(t, os.Remove(filepath.Join(fx.dir, "a.png")))
	p, err = fx.cache.Properties(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Dimensions.Width)
}

func TestProperties_ChangedFileGetsNewKey(t *testing.T) {
	fx := newFixture(t)
	writePNG(t, filepath.Join(fx.dir, "a.png"), 8, 6)
	e := fx.entry(t, "a.png")

	_, err := fx.cache.Properties(context.Background(), e)
	require.NoError(t, err)

	writePNG(t, filepath.Join(fx.dir, "a.png"), 16, 4)
	changed := e
	changed.Size += 1
	changed.LastModified += 1000

	p, err := fx.cache.Properties(context.Background(), changed)
	require.NoError(t, err)
	assert.Equal(t, sidecar.Dimensions{Width: 16, Height: 4}, p.Dimensions)
	assert.Equal(t, 2, fx.store.Len())
}

func TestThumbnail(t *testing.T) {
	fx := newFixture(t)
	writePNG(t, filepath.Join(fx.dir, "a.png"), 100, 50)
	e := fx.entry(t, "a.png")

	data, err := fx.cache.Thumbnail(context.Background(), e)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestProperties_UnsupportedType(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(fx.dir, "notes.txt"), []byte("hi"), 0644))
	e := fx.entry(t, "notes.txt")

	_, err := fx.cache.Properties(context.Background(), e)
	assert.Error(t, err)
	assert.Equal(t, 0, fx.store.Len())
}

func TestProperties_Cancelled(t *testing.T) {
	fx := newFixture(t)
	writePNG(t, filepath.Join(fx.dir, "a.png"), 2, 2)
	e := fx.entry(t, "a.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.cache.Properties(ctx, e)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fx.store.Len(), "no side effects after cancellation")
}

type failingReader struct{}

func (failingReader) Get(ctx context.Context, key string, window time.Duration) ([]byte, error) {
	return nil, errors.New("store offline")
}

type recordingWriter struct {
	keys []string
}

func (w *recordingWriter) Set(ctx context.Context, key string, value []byte, window time.Duration) error {
	w.keys = append(w.keys, key)
	return errors.New("still offline")
}

func TestProperties_StoreFailureFallsBackToCompute(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 3, 5)
	f, err := folder.NewLocal(dir, zap.NewNop())
	require.NoError(t, err)

	w := &recordingWriter{}
	cache := New(f, failingReader{}, w, Options{}, zap.NewNop())

	entries, err := f.Entries(context.Background())
	require.NoError(t, err)

	p, err := cache.Properties(context.Background(), entries[0])
	require.NoError(t, err)
	assert.Equal(t, sidecar.Dimensions{Width: 3, Height: 5}, p.Dimensions)
	assert.Len(t, w.keys, 1)
}

func TestWarm(t *testing.T) {
	fx := newFixture(t)
	writePNG(t, filepath.Join(fx.dir, "a.png"), 4, 4)
	writePNG(t, filepath.Join(fx.dir, "b.png"), 8, 2)
	require.NoError(t, os.WriteFile(filepath.Join(fx.dir, "c.txt"), []byte("x"), 0644))

	entries, err := fx.folder.Entries(context.Background())
	require.NoError(t, err)

	stats, err := fx.cache.Warm(context.Background(), entries, 4)
	require.NoError(t, err)
	assert.Equal(t, WarmStats{Computed: 4, Skipped: 1}, stats)
	assert.Equal(t, 4, fx.store.Len())

	stats, err = fx.cache.Warm(context.Background(), entries, 4)
	require.NoError(t, err)
	assert.Equal(t, WarmStats{Hits: 4, Skipped: 1}, stats)
}
