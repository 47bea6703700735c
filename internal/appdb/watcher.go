package appdb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before rescanning.
const DefaultDebounce = 100 * time.Millisecond

// Watcher rescans a DB when another process changes its files, and reports
// the database unavailable when its file is removed or renamed away.
// It uses fsnotify on the directory holding the database, since SQLite in
// WAL mode writes to sidecar files.
type Watcher struct {
	db       *DB
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	failed   bool
}

// NewWatcher creates a watcher for db. The watcher must be started with
// Start before it reacts to changes. A debounce of 0 uses DefaultDebounce.
func NewWatcher(db *DB, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		db:       db,
		watcher:  fw,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the database directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.db.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	var rescan <-chan time.Time
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch w.classify(event) {
			case fileChanged:
				rescan = time.After(w.debounce)
			case fileGone:
				rescan = nil
				w.fail("database file removed", event.Name)
			}

		case <-rescan:
			rescan = nil
			w.rescan()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("database watcher error", "path", w.db.Path(), "error", err)
		}
	}
}

type fileChange int

const (
	fileIgnored fileChange = iota
	fileChanged
	fileGone
)

// classify maps an fsnotify event to what it means for the database.
// Only the database file and its -wal and -journal sidecars count.
func (w *Watcher) classify(event fsnotify.Event) fileChange {
	base := filepath.Base(w.db.Path())
	name := filepath.Base(event.Name)

	switch name {
	case base:
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			return fileGone
		}
	case base + "-wal", base + "-journal":
	default:
		return fileIgnored
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		return fileChanged
	}
	return fileIgnored
}

func (w *Watcher) rescan() {
	w.mu.Lock()
	failed := w.failed
	w.mu.Unlock()
	if failed {
		return
	}

	n, err := w.db.Rescan(context.Background())
	if err != nil {
		w.fail("rescan failed", err.Error())
		return
	}
	if n > 0 {
		slog.Debug("external database change applied", "path", w.db.Path(), "events", n)
	}
}

// fail reports the database unavailable once.
func (w *Watcher) fail(reason, detail string) {
	w.mu.Lock()
	if w.failed {
		w.mu.Unlock()
		return
	}
	w.failed = true
	w.mu.Unlock()

	slog.Error("application database unavailable", "path", w.db.Path(), "reason", reason, "detail", detail)
	w.db.Fail()
}
