package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FairForge/metavault/internal/config"
	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/reconcile"
	"github.com/FairForge/metavault/internal/tagging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testConfig = `
log:
  level: error
tagging:
  provider: none
store:
  kind: memory
`

func setupFolder(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 2))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), buf.Bytes(), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), buf.Bytes(), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gone.jpg.metadata.json"), []byte(`{}`), 0600))

	cfgPath = filepath.Join(t.TempDir(), "metavault.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0600))
	return dir, cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	dir, cfg := setupFolder(t)

	out, err := execute(t, "classify", dir, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "assets: 2")
	assert.Contains(t, out, "missing sidecar: 2")
	assert.Contains(t, out, "orphan sidecars: 1")
	assert.Contains(t, out, "gone.jpg.metadata.json")
}

func TestReconcileCommand(t *testing.T) {
	dir, cfg := setupFolder(t)

	out, err := execute(t, "reconcile", dir, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2] * a.png")
	assert.Contains(t, out, "[2/2] * b.png")
	assert.Contains(t, out, "done: 2 assets, 2 sidecars written")
	assert.FileExists(t, filepath.Join(dir, "a.png.metadata.json"))

	out, err = execute(t, "reconcile", dir, "--config", cfg, "--skip-existing", "-q")
	require.NoError(t, err)
	assert.Equal(t, "nothing to do\n", out)
}

func TestReconcileCommand_TagsWithoutProviderFails(t *testing.T) {
	dir, cfg := setupFolder(t)

	out, err := execute(t, "reconcile", dir, "--config", cfg, "--fields", "tags")
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrNoTagger)
	assert.Contains(t, out, "FATAL")

	out, err = execute(t, "reconcile", dir, "--config", cfg, "--fields", "tags", "--continue-on-error", "-q")
	require.Error(t, err)
	assert.Contains(t, out, "done with failures")
	assert.Contains(t, out, "2 failed")
}

func TestReconcileCommand_BadFields(t *testing.T) {
	dir, cfg := setupFolder(t)
	_, err := execute(t, "reconcile", dir, "--config", cfg, "--fields", "colour")
	assert.Error(t, err)
}

func TestVerifyCommand(t *testing.T) {
	dir, cfg := setupFolder(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png.metadata.json"), []byte("free text"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png.metadata.json"), []byte(`{"size":"big"}`), 0600))

	out, err := execute(t, "verify", dir, "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, out, "legacy   a.png")
	assert.Contains(t, out, "invalid  b.png")
	assert.Contains(t, out, "orphan   gone.jpg.metadata.json")
	assert.Contains(t, err.Error(), "3 problems")
}

func TestThumbsCommand(t *testing.T) {
	dir, cfg := setupFolder(t)

	out, err := execute(t, "thumbs", dir, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "computed: 4")
	assert.Contains(t, out, "failed: 0")
}

func TestTagsAddCommand(t *testing.T) {
	dir, cfg := setupFolder(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png.metadata.json"), []byte(`{"tags":["cat"]}`), 0600))

	out, err := execute(t, "tags", "add", dir, "a.png", "b.png", "--config", cfg, "--tag", "cat,pet", "-t", "pet")
	require.NoError(t, err)
	assert.Contains(t, out, "tagged: 2 written, 0 unchanged, 0 failed")

	data, err := os.ReadFile(filepath.Join(dir, "a.png.metadata.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"tags\": [\n        \"cat\",\n        \"pet\"\n    ]\n}", string(data))
	assert.FileExists(t, filepath.Join(dir, "b.png.metadata.json"))

	_, err = execute(t, "tags", "add", dir, "a.png", "--config", cfg)
	assert.ErrorIs(t, err, reconcile.ErrNoTags)
}

func TestNewTagger(t *testing.T) {
	cfg := config.Default().Tagging

	cfg.Provider = config.ProviderNone
	s, err := newTagger(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.Provider = config.ProviderRemote
	s, err = newTagger(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, s)

	cfg.Provider = config.ProviderGoogle
	_, err = newTagger(cfg, nil)
	assert.ErrorIs(t, err, tagging.ErrNoCredentials)

	cfg.Provider = config.ProviderDummy
	s, err = newTagger(cfg, nil)
	require.NoError(t, err)
	labels, err := s.Tag(context.Background(), []byte("x"), "image/png")
	require.NoError(t, err)
	assert.NotEmpty(t, labels)
}

func TestServerProviders(t *testing.T) {
	cfg := config.Default().Tagging
	cfg.GoogleAPIKey = "key"

	primary, imagga := serverProviders(cfg, zap.NewNop())
	assert.IsType(t, &tagging.Limited{}, primary)
	assert.Nil(t, imagga)

	cfg.ImaggaAPIKey, cfg.ImaggaAPISecret = "k", "s"
	cfg.RatePerSecond = 0
	primary, imagga = serverProviders(cfg, zap.NewNop())
	assert.IsType(t, &tagging.GoogleVision{}, primary)
	assert.IsType(t, &tagging.Imagga{}, imagga)
}

func TestWatchLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan folder.WatchEvent, 4)
	errs := make(chan error)
	passes := make(chan struct{}, 4)

	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, events, errs, 20*time.Millisecond, func() { passes <- struct{}{} }, zap.NewNop())
	}()

	events <- folder.WatchEvent{Type: folder.WatchEventModify, Name: "a.png.metadata.json"}
	events <- folder.WatchEvent{Type: folder.WatchEventDelete, Name: "b.png"}
	select {
	case <-passes:
		t.Fatal("sidecar writes and deletions must not trigger a pass")
	case <-time.After(60 * time.Millisecond):
	}

	events <- folder.WatchEvent{Type: folder.WatchEventCreate, Name: "c.png"}
	events <- folder.WatchEvent{Type: folder.WatchEventModify, Name: "c.png"}
	select {
	case <-passes:
	case <-time.After(time.Second):
		t.Fatal("expected a pass after the debounce")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, passes, "events inside one window produce one pass")
}
