package folder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchEventType represents the type of file system event
type WatchEventType int

const (
	WatchEventCreate WatchEventType = iota
	WatchEventModify
	WatchEventDelete
	WatchEventRename
)

func (t WatchEventType) String() string {
	switch t {
	case WatchEventCreate:
		return "create"
	case WatchEventModify:
		return "modify"
	case WatchEventDelete:
		return "delete"
	case WatchEventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// WatchEvent represents a file system change event
type WatchEvent struct {
	Type WatchEventType
	Name string // base name inside the watched folder
}

// Watcher is implemented by folders that can report changes
type Watcher interface {
	Watch(ctx context.Context) (<-chan WatchEvent, <-chan error, error)
}

// Watch reports changes in the folder until ctx is done. Both channels are
// closed on return.
func (f *Local) Watch(ctx context.Context) (<-chan WatchEvent, <-chan error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(f.root); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", f.root, err)
	}

	events := make(chan WatchEvent, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer func() { _ = w.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(ev.Name)
				if strings.HasSuffix(name, tempSuffix) {
					continue
				}
				typ, ok := eventType(ev.Op)
				if !ok {
					continue
				}
				select {
				case events <- WatchEvent{Type: typ, Name: name}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("folder watch error", zap.String("root", f.root), zap.Error(err))
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return events, errs, nil
}

func eventType(op fsnotify.Op) (WatchEventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return WatchEventCreate, true
	case op.Has(fsnotify.Write):
		return WatchEventModify, true
	case op.Has(fsnotify.Remove):
		return WatchEventDelete, true
	case op.Has(fsnotify.Rename):
		return WatchEventRename, true
	default:
		return 0, false
	}
}
