// Package jsonl provides the canonical append-only JSONL persistence
// backend. Memories are stored in the perception ingestion format (one
// record per line); experiences are stored as one Experience JSON
// object per line.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/scrypster/reverie/internal/ingest"
	"github.com/scrypster/reverie/internal/storage"
	"github.com/scrypster/reverie/pkg/types"
)

// MemoryLog implements storage.MemoryLog over a JSONL file.
type MemoryLog struct {
	path string
	mu   sync.Mutex
}

// NewMemoryLog creates a memory log at the given path, creating parent
// directories as needed.
func NewMemoryLog(path string) (*MemoryLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("jsonl: failed to create data directory: %w", err)
	}
	return &MemoryLog{path: path}, nil
}

// Load reads every record in the log. Blank lines are skipped; invalid
// lines are logged and skipped rather than failing the load, so one
// corrupt record never takes the whole store down.
func (l *MemoryLog) Load() ([]types.Memory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jsonl: failed to open %s: %w", l.path, err)
	}
	defer f.Close()

	var memories []types.Memory
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		m, err := ingest.DecodeLine(line)
		if err != nil {
			log.Printf("jsonl: skipping line %d of %s: %v", lineNo, l.path, err)
			continue
		}
		memories = append(memories, m)
	}
	if err := scanner.Err(); err != nil {
		return memories, fmt.Errorf("jsonl: failed to read %s: %w", l.path, err)
	}

	return memories, nil
}

// Append writes one record to the end of the log.
func (l *MemoryLog) Append(m types.Memory) error {
	line, err := ingest.EncodeLine(m)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, line)
}

// Snapshot rewrites the whole log atomically (write temp, then rename).
func (l *MemoryLog) Snapshot(memories []types.Memory) error {
	lines := make([][]byte, 0, len(memories))
	for _, m := range memories {
		line, err := ingest.EncodeLine(m)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return writeAtomic(l.path, lines)
}

// Close is a no-op for the file-per-operation log.
func (l *MemoryLog) Close() error { return nil }

// ExperienceLog implements storage.ExperienceLog over a JSONL file.
type ExperienceLog struct {
	path string
	mu   sync.Mutex
}

// NewExperienceLog creates an experience log at the given path.
func NewExperienceLog(path string) (*ExperienceLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("jsonl: failed to create data directory: %w", err)
	}
	return &ExperienceLog{path: path}, nil
}

// Load reads every experience in the log, skipping invalid lines.
func (l *ExperienceLog) Load() ([]types.Experience, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jsonl: failed to open %s: %w", l.path, err)
	}
	defer f.Close()

	var experiences []types.Experience
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e types.Experience
		if err := json.Unmarshal(line, &e); err != nil {
			log.Printf("jsonl: skipping line %d of %s: %v", lineNo, l.path, err)
			continue
		}
		experiences = append(experiences, e)
	}
	if err := scanner.Err(); err != nil {
		return experiences, fmt.Errorf("jsonl: failed to read %s: %w", l.path, err)
	}

	return experiences, nil
}

// Append writes one experience to the end of the log.
func (l *ExperienceLog) Append(e types.Experience) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("jsonl: failed to encode experience: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, line)
}

// Snapshot rewrites the whole log atomically.
func (l *ExperienceLog) Snapshot(experiences []types.Experience) error {
	lines := make([][]byte, 0, len(experiences))
	for _, e := range experiences {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("jsonl: failed to encode experience: %w", err)
		}
		lines = append(lines, line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return writeAtomic(l.path, lines)
}

// Close is a no-op for the file-per-operation log.
func (l *ExperienceLog) Close() error { return nil }

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("jsonl: failed to open %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("jsonl: failed to append to %s: %w", path, err)
	}
	return nil
}

func writeAtomic(path string, lines [][]byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("jsonl: failed to create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("jsonl: failed to write %s: %w", tmp, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("jsonl: failed to flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("jsonl: failed to close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("jsonl: failed to replace %s: %w", path, err)
	}
	return nil
}

// Compile-time assertions against the storage interfaces.
var _ storage.MemoryLog = (*MemoryLog)(nil)
var _ storage.ExperienceLog = (*ExperienceLog)(nil)
