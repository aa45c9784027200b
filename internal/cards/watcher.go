package cards

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is pushed to SSE subscribers when the card document changes on
// disk behind the server's back (an editor, a git pull, a restored
// backup). Writes made through Store.Replace are suppressed.
type Event struct {
	Type      string `json:"type"` // always "changed"
	Timestamp string `json:"timestamp"`
}

// Watcher monitors the card document for external modifications and
// fans change events out to subscribers.
type Watcher struct {
	store  *Store
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	fsw    *fsnotify.Watcher
	stopCh chan struct{}
}

// NewWatcher creates a Watcher over the store's document.
func NewWatcher(store *Store, logger *slog.Logger) *Watcher {
	return &Watcher{
		store:  store,
		logger: logger,
		subs:   make(map[chan Event]struct{}),
		stopCh: make(chan struct{}),
	}
}

// Start begins watching. The containing directory is watched rather
// than the file itself: editors and our own Replace swap the file by
// rename, which would silently detach a file-level watch.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fsw = fsw

	w.logger.Info("card document watcher started", "path", w.store.Path())
	go w.loop()
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.fsw != nil {
		w.fsw.Close()
	}
}

// Subscribe registers an event channel. The returned cancel func must
// be called when the subscriber goes away.
func (w *Watcher) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
		w.mu.Unlock()
	}
	return ch, cancel
}

func (w *Watcher) broadcast(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full — skip rather than block.
		}
	}
}

func (w *Watcher) loop() {
	// Debounce: editors fire several events per save.
	var pending <-chan time.Time
	target := filepath.Base(w.store.Path())

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(300 * time.Millisecond)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("card watcher error", "error", err)

		case <-pending:
			pending = nil
			if w.store.recentlyReplaced(2 * time.Second) {
				continue
			}
			w.logger.Info("card document changed on disk", "path", w.store.Path())
			w.broadcast(Event{Type: "changed", Timestamp: time.Now().Format(time.RFC3339)})
		}
	}
}
