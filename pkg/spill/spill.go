// Package spill persists sync tasks that did not finish before shutdown so
// the next process can replay them.
package spill

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
)

// FileName is the spill log name inside the strata directory.
const FileName = "spill.jsonl"

// Entry is one unfinished write, carrying the full item so replay does not
// depend on volatile tiers that may be gone.
type Entry struct {
	Item      *memory.Item `json:"item"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	SpilledAt time.Time    `json:"spilled_at"`
}

// Log is a JSON Lines spill file.
type Log struct {
	mu   sync.Mutex
	path string
}

// New returns a Log at path. The file is created on first Write.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log location.
func (l *Log) Path() string {
	return l.path
}

// Write appends entries and fsyncs.
func (l *Log) Write(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating spill dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening spill log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding spill entry %s: %w", e.Item.Key, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing spill log: %w", err)
	}

	return f.Sync()
}

// Load reads all spilled entries. A missing file yields none. When the same
// key was spilled more than once, only the highest version is kept.
func (l *Log) Load() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening spill log: %w", err)
	}
	defer f.Close()

	var (
		order  []string
		latest = make(map[string]Entry)
	)

	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decoding spill log: %w", err)
		}
		if e.Item == nil {
			continue
		}

		key := e.Item.Key.String()
		prev, seen := latest[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || e.Item.Version > prev.Item.Version {
			latest[key] = e
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, k := range order {
		entries = append(entries, latest[k])
	}

	return entries, nil
}

// Clear removes the spill file after a successful replay.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing spill log: %w", err)
	}
	return nil
}
