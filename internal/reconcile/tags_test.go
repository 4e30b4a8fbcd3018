package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTags(t *testing.T) {
	f := newMemFolder()
	f.assets["a.png"] = pngBytes(t, 2, 2)
	f.assets["b.png"] = pngBytes(t, 2, 2)
	f.sidecars["a.png"] = `{"name":"a.png","tags":["cat","pet"],"size":10}`

	r := newReconciler(t, f, nil)
	res, err := r.AddTags(context.Background(), []string{"a.png", "b.png"}, []string{"pet", " dog ", "dog", ""})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Written)
	assert.Empty(t, res.Failed)

	a := f.record(t, "a.png")
	assert.Equal(t, []string{"cat", "pet", "dog"}, a.Tags())
	size, ok := a.Int64("size")
	require.True(t, ok)
	assert.Equal(t, int64(10), size, "other fields survive")

	assert.Equal(t, []string{"pet", "dog"}, f.record(t, "b.png").Tags(), "missing sidecar is created")
}

func TestAddTags_Unchanged(t *testing.T) {
	f := newMemFolder()
	f.assets["a.png"] = pngBytes(t, 2, 2)
	f.sidecars["a.png"] = `{"tags":["cat"]}`

	r := newReconciler(t, f, nil)
	res, err := r.AddTags(context.Background(), []string{"a.png"}, []string{"cat"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 0, f.writeCount("a.png"))
}

func TestAddTags_LegacySidecar(t *testing.T) {
	f := newMemFolder()
	f.assets["a.png"] = pngBytes(t, 2, 2)
	f.sidecars["a.png"] = `old notes`

	r := newReconciler(t, f, nil)
	_, err := r.AddTags(context.Background(), []string{"a.png"}, []string{"cat"})
	require.NoError(t, err)

	rec := f.record(t, "a.png")
	assert.Equal(t, "old notes", rec.String(sidecar.FieldOldContent))
	assert.Equal(t, []string{"cat"}, rec.Tags())
}

func TestAddTags_Errors(t *testing.T) {
	f := newMemFolder()
	f.assets["a.png"] = pngBytes(t, 2, 2)
	f.assets["b.png"] = pngBytes(t, 2, 2)
	f.writeErr["a.png"] = errors.New("disk full")
	r := newReconciler(t, f, nil)

	_, err := r.AddTags(context.Background(), []string{"a.png"}, []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoTags)

	res, err := r.AddTags(context.Background(), []string{"a.png", "b.png"}, []string{"cat"})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageWrite, res.Failed[0].Stage)
	assert.Equal(t, 1, res.Written, "a failure does not stop the others")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.AddTags(ctx, []string{"b.png"}, []string{"dog"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnionTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, unionTags([]string{"a", "b"}, []string{"b", "c", "a"}))
	assert.Empty(t, unionTags(nil, []string{" ", ""}))
}
