// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

// DefaultExtensions are the knowledge-base formats the loader understands.
var DefaultExtensions = []string{".json", ".yaml", ".yml", ".txt"}

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
// Bursts of events for one file within the debounce window collapse into a single event,
// so an editor's truncate-then-write is ingested once.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	logger     *zap.Logger
}

// NewFSNotifyWatcher creates a new file watcher. A zero debounce emits events as they arrive.
func NewFSNotifyWatcher(extensions []string, debounce time.Duration, logger *zap.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSNotifyWatcher{
		watcher:    w,
		extensions: extensions,
		debounce:   debounce,
		logger:     logger,
	}, nil
}

// Watch starts monitoring the directory and emits events until ctx is done.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)
	go w.loop(ctx, events)
	return events, nil
}

func (w *FSNotifyWatcher) loop(ctx context.Context, events chan<- ports.FileEvent) {
	defer close(events)

	pending := make(map[string]ports.FileOperation)
	var order []string
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	emit := func(ev ports.FileEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isWatchedExtension(event.Name) {
				continue
			}
			op, ok := translate(event.Op)
			if !ok {
				continue
			}
			if w.debounce <= 0 {
				if !emit(ports.FileEvent{Path: event.Name, Operation: op}) {
					return
				}
				continue
			}
			if prev, seen := pending[event.Name]; seen {
				op = coalesce(prev, op)
			} else {
				order = append(order, event.Name)
			}
			pending[event.Name] = op
			timer.Reset(w.debounce)

		case <-timer.C:
			for _, path := range order {
				if !emit(ports.FileEvent{Path: path, Operation: pending[path]}) {
					return
				}
			}
			clear(pending)
			order = order[:0]

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// translate maps fsnotify operations; a rename away from the watched name counts as deletion.
func translate(op fsnotify.Op) (ports.FileOperation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return ports.FileCreated, true
	case op.Has(fsnotify.Write):
		return ports.FileModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ports.FileDeleted, true
	}
	return 0, false
}

// coalesce folds a new operation into one already pending for the same path.
func coalesce(prev, next ports.FileOperation) ports.FileOperation {
	switch {
	case next == ports.FileDeleted:
		return ports.FileDeleted
	case prev == ports.FileCreated:
		return ports.FileCreated
	case prev == ports.FileDeleted:
		// Replaced in place.
		return ports.FileModified
	}
	return next
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
