// Package history keeps a bounded, newest-first record of accepted clipboard
// entries. Duplicates and echoes never reach it — the engine only reports
// captures that survived fingerprint dedup.
package history

import (
	"strings"
	"sync"
	"time"

	"go.klb.dev/copier/internal/content"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 50

// Entry is one accepted clipboard capture.
type Entry struct {
	Content content.Content
	At      time.Time
}

// Store is a bounded newest-first history, safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	limit   int
	entries []Entry
}

// New returns a Store keeping at most limit entries. limit <= 0 uses
// DefaultLimit.
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{limit: limit}
}

// Add prepends an entry, evicting the oldest when over the limit.
func (s *Store) Add(c content.Content, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]Entry{{Content: c, At: at}}, s.entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
}

// Entries returns a snapshot of the history, newest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Search returns entries matching the query, newest first. Text entries match
// on a case-insensitive substring; image entries match the query "image".
// An empty query matches everything.
func (s *Store) Search(query string) []Entry {
	if query == "" {
		return s.Entries()
	}
	q := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		switch e.Content.Kind {
		case content.KindText:
			if strings.Contains(strings.ToLower(e.Content.Text), q) {
				out = append(out, e)
			}
		case content.KindImage:
			if q == "image" {
				out = append(out, e)
			}
		}
	}
	return out
}
