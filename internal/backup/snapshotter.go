// Package backup keeps persisted state durable: a ticker service
// periodically snapshots the store to its log backend, and file
// helpers back the manual backup CLI.
package backup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultInterval is used when no snapshot interval is configured.
const DefaultInterval = 30 * time.Second

// Target is the store-side surface the snapshotter drives.
type Target interface {
	SnapshotMemories() error
	SnapshotExperiences() error
}

// Snapshotter periodically flushes the store to durable storage.
// Snapshot failures are logged and the loop keeps going; the appended
// log still holds every record, so a missed snapshot costs compaction,
// not data.
type Snapshotter struct {
	target   Target
	interval time.Duration

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	lastSnapshot time.Time
}

// NewSnapshotter creates a snapshotter. A non-positive interval falls
// back to DefaultInterval.
func NewSnapshotter(target Target, interval time.Duration) *Snapshotter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Snapshotter{
		target:   target,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the snapshot loop until the context is cancelled or Stop
// is called. A final snapshot is taken on the way out so shutdown never
// loses compaction progress.
func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("snapshotter is already running")
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("backup: snapshotter started, interval=%v", s.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("backup: snapshotter stopping (context cancelled)")
			s.SnapshotNow()
			return ctx.Err()

		case <-s.stopCh:
			log.Println("backup: snapshotter stopping (stop requested)")
			s.SnapshotNow()
			return nil

		case <-ticker.C:
			s.SnapshotNow()
		}
	}
}

// Stop stops the snapshot loop gracefully.
func (s *Snapshotter) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("snapshotter is not running")
	}
	close(s.stopCh)
	s.running = false
	return nil
}

// SnapshotNow flushes both stores immediately. Failures are logged,
// never returned; the caller cannot do anything useful with them.
func (s *Snapshotter) SnapshotNow() {
	if err := s.target.SnapshotMemories(); err != nil {
		log.Printf("backup: memory snapshot failed: %v", err)
	}
	if err := s.target.SnapshotExperiences(); err != nil {
		log.Printf("backup: experience snapshot failed: %v", err)
	}

	s.mu.Lock()
	s.lastSnapshot = time.Now()
	s.mu.Unlock()
}

// LastSnapshot returns when the last snapshot attempt completed.
func (s *Snapshotter) LastSnapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnapshot
}
