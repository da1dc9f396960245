package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/reverie/pkg/types"
)

// collector gathers memories from watcher callbacks.
type collector struct {
	mu   sync.Mutex
	seen []types.Memory
}

func (c *collector) add(m types.Memory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, m)
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.seen))
	for i, m := range c.seen {
		ids[i] = m.ID
	}
	return ids
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherDeliversAppendedRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")

	// Pre-existing content must be skipped; the store loads it separately.
	if err := os.WriteFile(path, []byte(`{"embedding_id":"old","source":"text"}`+"\n"), 0o600); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	c := &collector{}
	w := NewWatcher(path, c.add)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open log for append: %v", err)
	}
	f.WriteString(`{"embedding_id":"new-1","source":"vision","content":"a dog"}` + "\n")
	f.WriteString(`{"embedding_id":"new-2","source":"speech","content":"hello"}` + "\n")
	f.Close()

	waitFor(t, 2*time.Second, func() bool { return len(c.ids()) == 2 })

	ids := c.ids()
	if ids[0] != "new-1" || ids[1] != "new-2" {
		t.Errorf("ids = %v, want [new-1 new-2]", ids)
	}
	for _, id := range ids {
		if id == "old" {
			t.Error("watcher must not replay pre-existing records")
		}
	}
}

func TestWatcherHandlesPartialLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("create log: %v", err)
	}

	c := &collector{}
	w := NewWatcher(path, c.add)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open log for append: %v", err)
	}
	defer f.Close()

	// Write half a record, then the rest. The watcher must not deliver
	// anything until the newline lands.
	f.WriteString(`{"embedding_id":"split",`)
	time.Sleep(100 * time.Millisecond)
	if len(c.ids()) != 0 {
		t.Fatal("partial line must not be delivered")
	}

	f.WriteString(`"source":"text","content":"done"}` + "\n")
	waitFor(t, 2*time.Second, func() bool { return len(c.ids()) == 1 })

	if c.ids()[0] != "split" {
		t.Errorf("id = %q, want split", c.ids()[0])
	}
}

func TestWatcherResetsOnTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")
	if err := os.WriteFile(path, []byte(`{"embedding_id":"a"}`+"\n"+`{"embedding_id":"b"}`+"\n"), 0o600); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	c := &collector{}
	w := NewWatcher(path, c.add)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Truncate and rewrite: the shorter file forces an offset reset, so
	// the new content is read from the beginning.
	if err := os.WriteFile(path, []byte(`{"embedding_id":"c"}`+"\n"), 0o600); err != nil {
		t.Fatalf("truncate log: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, id := range c.ids() {
			if id == "c" {
				return true
			}
		}
		return false
	})
}
