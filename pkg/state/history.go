// Package state keeps local memberctl state that is not configuration,
// such as the journal of session lifecycle events.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
)

const (
	// DefaultMaxHistoryEntries is the default maximum number of history entries.
	DefaultMaxHistoryEntries = 500

	// HistoryVersion is the current history file format version.
	HistoryVersion = "1.0"

	lockTimeout = time.Second
)

// HistoryEntry is one recorded session event.
type HistoryEntry struct {
	ID        int       `json:"id" yaml:"id"`
	Event     string    `json:"event" yaml:"event"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Member    string    `json:"member,omitempty" yaml:"member,omitempty"`
	Attempt   int       `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// HistoryData represents the structure of the history file.
type HistoryData struct {
	History    []*HistoryEntry `json:"history"`
	MaxEntries int             `json:"max_entries"`
	Version    string          `json:"version,omitempty"`
}

// History is a bounded journal of session events persisted as JSON. Every
// write re-reads the file under a cross-process lock, so a keepalive loop
// and one-shot commands can record into the same journal.
type History struct {
	path       string
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries []*HistoryEntry
}

// NewHistory opens the journal under $XDG_STATE_HOME/<cliName>.
func NewHistory(cliName string, maxEntries int) (*History, error) {
	return NewHistoryAt(filepath.Join(xdg.StateHome, cliName, "history.json"), maxEntries)
}

// NewHistoryAt opens the journal stored at path.
func NewHistoryAt(path string, maxEntries int) (*History, error) {
	if path == "" {
		return nil, errors.New("history path is required")
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxHistoryEntries
	}

	h := &History{
		path:       path,
		maxEntries: maxEntries,
		now:        time.Now,
	}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

// Record appends entry, trimming the oldest entries past the limit.
func (h *History) Record(ctx context.Context, entry *HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	unlock, err := h.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := h.load(); err != nil {
		return err
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.now()
	}
	e := *entry
	e.ID = 1
	if n := len(h.entries); n > 0 {
		e.ID = h.entries[n-1].ID + 1
	}
	h.entries = append(h.entries, &e)
	entry.ID = e.ID

	if len(h.entries) > h.maxEntries {
		h.entries = h.entries[len(h.entries)-h.maxEntries:]
		renumber(h.entries)
		entry.ID = e.ID
	}

	return h.save()
}

// Recent returns the most recent n entries, oldest first. n <= 0 returns
// all of them.
func (h *History) Recent(n int) []*HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.load(); err != nil {
		return nil
	}
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	return cloneEntries(h.entries[len(h.entries)-n:])
}

// Filter returns the entries fn accepts.
func (h *History) Filter(fn func(*HistoryEntry) bool) []*HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	matches := make([]*HistoryEntry, 0)
	if err := h.load(); err != nil {
		return matches
	}
	for _, entry := range h.entries {
		if fn(entry) {
			c := *entry
			matches = append(matches, &c)
		}
	}
	return matches
}

// GetSince returns entries recorded after since.
func (h *History) GetSince(since time.Time) []*HistoryEntry {
	return h.Filter(func(e *HistoryEntry) bool {
		return e.Timestamp.After(since)
	})
}

// Clear removes every entry and the journal file.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	unlock, err := h.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	h.entries = nil
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}
	return nil
}

// Count returns the number of entries.
func (h *History) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.load(); err != nil {
		return 0
	}
	return len(h.entries)
}

// GetPath returns the path to the history file.
func (h *History) GetPath() string {
	return h.path
}

// load replaces the in-memory entries with the file contents. A missing
// file is an empty journal. The caller holds h.mu.
func (h *History) load() error {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		h.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var historyData HistoryData
	if err := json.Unmarshal(data, &historyData); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}
	h.entries = historyData.History
	return nil
}

// save writes the entries with an atomic rename. The caller holds h.mu.
func (h *History) save() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(HistoryData{
		History:    h.entries,
		MaxEntries: h.maxEntries,
		Version:    HistoryVersion,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save history file: %w", err)
	}
	return nil
}

// lock takes the cross-process lock. It fails open on timeout.
func (h *History) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	fl := flock.New(h.path + ".lock")

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return func() {}, nil
		}
		return nil, fmt.Errorf("failed to lock history file: %w", err)
	}
	if !locked {
		return func() {}, nil
	}
	return func() { _ = fl.Unlock() }, nil
}

func renumber(entries []*HistoryEntry) {
	for i, e := range entries {
		e.ID = i + 1
	}
}

func cloneEntries(entries []*HistoryEntry) []*HistoryEntry {
	out := make([]*HistoryEntry, len(entries))
	for i, e := range entries {
		c := *e
		out[i] = &c
	}
	return out
}
