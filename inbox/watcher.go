package inbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const eventChannelBuffer = 100

// Watcher reports exam files that appear or change in a directory, once
// their content has settled for the debounce delay.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]time.Time

	hashes map[string]string

	events  chan string
	dropped atomic.Int64
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]time.Time),
		hashes:   make(map[string]string),
		events:   make(chan string, eventChannelBuffer),
	}, nil
}

// Events delivers the paths of settled files. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Start creates the directory if needed and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.loop(ctx)
	w.logger.Info("Watching for exam files", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Dropped returns how many events were lost to a full channel.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !IsExamFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	w.pendingMu.Lock()
	w.pending[event.Name] = time.Now()
	w.pendingMu.Unlock()
	w.logger.Debug("Exam file change detected", "path", event.Name, "op", event.Op.String())
}

// flush emits the files untouched for the debounce delay whose content changed.
func (w *Watcher) flush(now time.Time) {
	var ready []string
	w.pendingMu.Lock()
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("Read changed file", "path", path, "error", err)
			continue
		}
		sum := sha256.Sum256(content)
		hash := hex.EncodeToString(sum[:])
		if w.hashes[path] == hash {
			continue
		}
		w.hashes[path] = hash

		select {
		case w.events <- path:
		default:
			n := w.dropped.Add(1)
			w.logger.Warn("Event channel full, dropping file", "path", path, "total_dropped", n)
		}
	}
}
