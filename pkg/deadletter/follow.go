package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every entry appended to the log at path after Follow
// starts, until ctx is done or fn returns an error.
func Follow(ctx context.Context, path string, fn func(Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dead-letter log: %w", err)
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating log watcher: %w", err)
	}
	defer watcher.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek dead-letter log: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	var pending []byte
	buf := make([]byte, 4096)
	readAvailable := func() error {
		for {
			n, err := file.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				for {
					i := bytes.IndexByte(pending, '\n')
					if i < 0 {
						break
					}
					line := bytes.TrimSpace(pending[:i])
					pending = pending[i+1:]
					if len(line) == 0 {
						continue
					}

					var e Entry
					if err := json.Unmarshal(line, &e); err != nil {
						return fmt.Errorf("decoding dead-letter entry: %w", err)
					}
					if err := fn(e); err != nil {
						return err
					}
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := readAvailable(); err != nil {
				return err
			}
		case err := <-watcher.Errors:
			return fmt.Errorf("log watcher error: %w", err)
		}
	}
}
