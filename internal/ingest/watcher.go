package ingest

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/reverie/pkg/types"
)

// Watcher tails the perception agent's append-only JSONL log and hands
// each newly appended memory to a callback. It remembers its byte
// offset so only appended data is read on each write event; a
// truncation (log rotation) resets the offset to zero.
type Watcher struct {
	path     string
	callback func(types.Memory)
	watcher  *fsnotify.Watcher
	done     chan struct{}

	mu      sync.Mutex
	offset  int64
	partial []byte // incomplete trailing line carried between reads
}

// NewWatcher creates a watcher for the given JSONL file.
func NewWatcher(path string, callback func(types.Memory)) *Watcher {
	return &Watcher{
		path:     path,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins tailing. Records already in the file are skipped: the
// store loads those through its log at startup, the watcher only feeds
// lines appended after Start. Call Stop() to clean up.
func (w *Watcher) Start() error {
	if info, err := os.Stat(w.path); err == nil {
		w.offset = info.Size()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: rotations replace the inode.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("ingest: tailing %s for perception events", w.path)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Name != w.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.readAppended()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ingest: watcher error: %v", err)
		}
	}
}

// readAppended reads from the remembered offset to EOF, decodes the
// complete lines, and dispatches each decoded memory.
func (w *Watcher) readAppended() {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	if info.Size() < w.offset {
		// Truncated or rotated: start over from the beginning.
		w.offset = 0
		w.partial = nil
	}
	if info.Size() == w.offset {
		return
	}

	if _, err := f.Seek(w.offset, 0); err != nil {
		return
	}

	data := make([]byte, info.Size()-w.offset)
	n, err := f.Read(data)
	if err != nil && n == 0 {
		return
	}
	w.offset += int64(n)

	buf := append(w.partial, data[:n]...)
	lines := bytes.Split(buf, []byte("\n"))

	// The final element is either empty (buffer ended on a newline) or
	// an incomplete line to carry into the next read.
	w.partial = append([]byte(nil), lines[len(lines)-1]...)

	for _, line := range lines[:len(lines)-1] {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		m, err := DecodeLine(line)
		if err != nil {
			log.Printf("ingest: skipping invalid record: %v", err)
			continue
		}
		if w.callback != nil {
			w.callback(m)
		}
	}
}
