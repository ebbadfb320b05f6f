// Package watcher monitors a Calibre library's metadata.db and refreshes
// the in-memory snapshot when Calibre writes a new catalog.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long writes must be quiet before a refresh
// fires. Calibre writes metadata.db in several bursts during an edit.
const DefaultSettleDelay = 2 * time.Second

// RefreshFunc is called after catalog writes settle.
type RefreshFunc func(ctx context.Context) error

// Watcher debounces catalog writes into refresh calls.
type Watcher struct {
	fsw         *fsnotify.Watcher
	refresh     RefreshFunc
	logger      *slog.Logger
	target      string
	settleDelay time.Duration
}

// New creates a watcher for the given catalog file. refresh runs on the
// watcher goroutine after writes settle.
func New(catalogPath string, refresh RefreshFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, not the file: sqlite replaces the database
	// file on checkpoint, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(catalogPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(catalogPath), err)
	}

	return &Watcher{
		fsw:         fsw,
		refresh:     refresh,
		logger:      logger,
		target:      filepath.Base(catalogPath),
		settleDelay: DefaultSettleDelay,
	}, nil
}

// Start processes events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()

	var settle *time.Timer
	var settleC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("catalog changed, waiting for writes to settle",
				"op", event.Op.String())
			if settle == nil {
				settle = time.NewTimer(w.settleDelay)
				settleC = settle.C
			} else {
				if !settle.Stop() {
					<-settle.C
				}
				settle.Reset(w.settleDelay)
			}

		case <-settleC:
			settle = nil
			settleC = nil
			if err := w.refresh(ctx); err != nil {
				w.logger.Warn("catalog refresh failed", "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}
