// Package deadletter records sync tasks that exhausted their retry budget.
// Entries are appended as JSON Lines and fsynced so an operator can replay
// them; nothing is ever removed by strata itself.
package deadletter

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// FileName is the dead-letter log name inside the strata directory.
const FileName = "dead_letter.jsonl"

// Entry is one dead-lettered write.
type Entry struct {
	// ID is a ULID, so entries sort by time.
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	Namespace     string    `json:"namespace"`
	TargetVersion uint64    `json:"target_version"`
	PayloadDigest string    `json:"payload_digest"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink accepts dead-letter entries.
type Sink interface {
	Append(e Entry) error
}

// Log is a file-backed Sink.
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entropy io.Reader
}

// Open opens (creating if needed) the dead-letter log at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating dead-letter dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening dead-letter log: %w", err)
	}

	return &Log{
		path:    path,
		file:    f,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Path returns the log location.
func (l *Log) Path() string {
	return l.path
}

// Append writes e durably. Missing ID and Timestamp are filled in.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ID == "" {
		id, err := ulid.New(ulid.Timestamp(e.Timestamp), l.entropy)
		if err != nil {
			return fmt.Errorf("generating entry id: %w", err)
		}
		e.ID = id.String()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding dead-letter entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("writing dead-letter entry: %w", err)
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// List reads every entry in the log at path. A missing file yields no entries.
func List(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening dead-letter log: %w", err)
	}
	defer f.Close()

	return decode(f)
}

func decode(r io.Reader) ([]Entry, error) {
	var entries []Entry

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return entries, fmt.Errorf("dead-letter line %d: %w", line, err)
		}
		entries = append(entries, e)
	}

	return entries, sc.Err()
}

// Memory is an in-process Sink for tests and for running without a data
// directory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
