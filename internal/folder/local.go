// internal/folder/local.go - folder backed by a directory on disk
package folder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FairForge/metavault/internal/sidecar"
	"go.uber.org/zap"
)

const tempSuffix = ".metavault-tmp"

// Local implements Folder for a local directory
type Local struct {
	root   string
	locks  *PathLocks
	logger *zap.Logger
}

// NewLocal opens root as a folder. root must be an existing directory.
func NewLocal(root string, logger *zap.Logger) (*Local, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open folder: %s is not a directory", root)
	}
	return &Local{
		root:   root,
		locks:  NewPathLocks(),
		logger: logger,
	}, nil
}

// Root returns the directory path
func (f *Local) Root() string {
	return f.root
}

// Entries lists the directory, skipping in-progress temp files
func (f *Local) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasSuffix(de.Name(), tempSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // removed between ReadDir and Info
			}
			return nil, fmt.Errorf("stat %s: %w", de.Name(), err)
		}
		entries = append(entries, Entry{
			Name:         de.Name(),
			Size:         info.Size(),
			LastModified: Millis(info.ModTime()),
			Type:         TypeByName(de.Name()),
			IsDir:        de.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	f.logger.Debug("Local.Entries",
		zap.String("root", f.root),
		zap.Int("count", len(entries)))

	return entries, nil
}

// ReadAsset reads an asset file
func (f *Local) ReadAsset(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, errInvalidName(name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNotFound(f.root, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", name, err)
	}
	return data, nil
}

// ReadSidecar reads <assetName>.metadata.json
func (f *Local) ReadSidecar(ctx context.Context, assetName string) (string, error) {
	if !validName(assetName) {
		return "", errInvalidName(assetName)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := sidecar.Name(assetName)
	data, err := os.ReadFile(filepath.Join(f.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", errNotFound(f.root, name)
	}
	if err != nil {
		return "", fmt.Errorf("read sidecar %s: %w", name, err)
	}
	return string(data), nil
}

// WriteSidecar replaces the sidecar via temp file and rename, holding the
// path lock for the whole write.
func (f *Local) WriteSidecar(ctx context.Context, assetName, content string) error {
	if !validName(assetName) {
		return errInvalidName(assetName)
	}
	name := sidecar.Name(assetName)
	fullPath := filepath.Join(f.root, name)

	unlock := f.locks.Lock(fullPath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, name+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write sidecar %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync sidecar %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close sidecar %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod sidecar %s: %w", name, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("commit sidecar %s: %w", name, err)
	}

	f.logger.Debug("Local.WriteSidecar",
		zap.String("sidecar", name),
		zap.Int("bytes", len(content)))

	return nil
}
