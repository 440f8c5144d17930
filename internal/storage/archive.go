// Package storage persists closed-session metrics as an append-only
// archive of zstd-compressed JSON lines.
package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// ArchiveFile is the archive's file name inside its directory
const ArchiveFile = "session_metrics.jsonl.zst"

// Logger interface
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// Archive appends one compressed frame per record. Appends are serialized;
// each record is durable once Append returns.
type Archive struct {
	path   string
	logger Logger

	mu      sync.Mutex
	records int64
}

// OpenArchive opens (creating if needed) the archive in dir
func OpenArchive(dir string, logger Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	a := &Archive{
		path:   filepath.Join(dir, ArchiveFile),
		logger: logger,
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	f.Close()

	if logger != nil {
		logger.Printf("Session metrics archive: %s", a.path)
	}

	return a, nil
}

// Path returns the archive file path
func (a *Archive) Path() string {
	return a.path
}

// Appended returns the number of records appended by this process
func (a *Archive) Appended() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records
}

// Append serializes record as one JSON line and appends it as its own frame
func (a *Archive) Append(record interface{}) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	line = append(line, '\n')
	frame := CompressFrame(line)

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	if _, err := f.Write(frame); err != nil {
		f.Close()
		return fmt.Errorf("failed to append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	a.records++
	return nil
}

// Each streams every archived line, in append order, to fn
func (a *Archive) Each(fn func(line []byte) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return EachLine(a.path, fn)
}

// EachLine streams the lines of an archive file without opening it for
// writing. The slice passed to fn is only valid during the call.
func EachLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		return nil
	}

	reader := NewStreamingReader(f)
	defer reader.Release()

	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	return nil
}

// ReadAll returns the whole decompressed archive as JSON lines
func ReadAll(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if len(compressed) == 0 {
		return nil, nil
	}
	return DecompressAll(compressed)
}

// Load decodes every archived record into a T
func Load[T any](path string) ([]T, error) {
	var out []T
	err := EachLine(path, func(line []byte) error {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return fmt.Errorf("failed to parse line: %w", err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
