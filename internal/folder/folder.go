package folder

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"
)

// Entry is one directory entry as seen by the catalog.
type Entry struct {
	Name         string
	Size         int64
	LastModified int64 // milliseconds since the Unix epoch
	Type         string
	IsDir        bool
}

// Folder is a flat directory of assets and their sidecars.
type Folder interface {
	// Entries lists the folder non-recursively.
	Entries(ctx context.Context) ([]Entry, error)
	// ReadAsset returns the full content of an asset.
	ReadAsset(ctx context.Context, name string) ([]byte, error)
	// ReadSidecar returns the sidecar content of an asset, or an error
	// matching ErrNotFound when there is none.
	ReadSidecar(ctx context.Context, assetName string) (string, error)
	// WriteSidecar replaces the sidecar content of an asset.
	WriteSidecar(ctx context.Context, assetName, content string) error
}

var knownTypes = map[string]string{
	".gif":  "image/gif",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".json": "application/json",
}

// TypeByName guesses a MIME type from a file name. Unknown extensions yield "".
func TypeByName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// Millis converts a modification time to the entry timestamp unit.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
