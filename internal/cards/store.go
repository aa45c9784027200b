// Package cards persists the dashboard's link cards as a single JSON
// document.
//
// The document is always read and rewritten whole. There is no locking
// between editors: concurrent replacements race and the last writer
// wins, which is fine for the intended single-operator deployment. The
// one hardening over plain truncate-and-write is that Replace goes
// through a same-directory temp file and rename, so a crash mid-write
// cannot leave a torn document behind.
package cards

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Card is one link tile on the dashboard. IDs are caller-assigned and
// unique within the document; slice order is display order.
type Card struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Color string `json:"color"`
}

// Store reads and writes the card document at a fixed path.
type Store struct {
	path   string
	logger *slog.Logger

	mu          sync.Mutex
	lastReplace time.Time
}

// NewStore creates a Store for the document at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the document location on disk.
func (s *Store) Path() string { return s.path }

// Load returns the current card sequence. A missing, unreadable, or
// malformed document yields an empty (non-nil) slice — read failures
// are swallowed so the dashboard stays usable and the next save simply
// rewrites the document.
func (s *Store) Load() []Card {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("card document unreadable, serving empty list", "path", s.path, "error", err)
		}
		return []Card{}
	}
	var cards []Card
	if err := json.Unmarshal(data, &cards); err != nil {
		s.logger.Warn("card document malformed, serving empty list", "path", s.path, "error", err)
		return []Card{}
	}
	if cards == nil {
		cards = []Card{}
	}
	return cards
}

// Replace overwrites the whole document with the given sequence,
// pretty-printed. Last writer wins; no conflict detection.
func (s *Store) Replace(cards []Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cards == nil {
		cards = []Card{}
	}
	data, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cards-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace document: %w", err)
	}

	s.lastReplace = time.Now()
	return nil
}

// recentlyReplaced reports whether Replace ran within the window. The
// watcher uses it to tell our own writes apart from external edits.
func (s *Store) recentlyReplaced(window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastReplace.IsZero() && time.Since(s.lastReplace) < window
}

// NextID returns the id a newly added card should get: one past the
// highest existing id, so gaps are preserved ({1,3} yields 4, never 3).
func NextID(cards []Card) int {
	max := 0
	for _, c := range cards {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}
