// Package memory implements the in-memory store that owns the
// canonical Memory and Experience records, plus the relevance selector
// used to pick a bounded, diverse subset for reflection.
package memory

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/scrypster/reverie/internal/storage"
	"github.com/scrypster/reverie/pkg/types"
)

// Store is the single shared mutable resource of the service: a
// reader/writer-locked map of memories and experiences. Constructed
// once at startup and passed by handle to every component.
//
// Getters copy out clones under RLock and release before returning, so
// no caller ever holds the lock across a network call. Mutators take
// the write lock for the in-memory change only; persistence runs after
// the lock is released. A persistence failure is logged and the
// mutation still reports success — availability over durability.
type Store struct {
	mu          sync.RWMutex
	memories    map[string]*types.Memory
	experiences map[string]*types.Experience

	memLog storage.MemoryLog     // may be nil (ephemeral store in tests)
	expLog storage.ExperienceLog // may be nil
}

// Stats summarizes store-wide consolidation progress.
type Stats struct {
	TotalMemories     int     `json:"total_memories"`
	TotalExperiences  int     `json:"total_experiences"`
	ConsolidatedCount int     `json:"consolidated_count"`
	ConsolidationRate float64 `json:"consolidation_rate"`
}

// NewStore creates a store backed by the given logs. Either log may be
// nil for a purely in-memory store.
func NewStore(memLog storage.MemoryLog, expLog storage.ExperienceLog) *Store {
	return &Store{
		memories:    make(map[string]*types.Memory),
		experiences: make(map[string]*types.Experience),
		memLog:      memLog,
		expLog:      expLog,
	}
}

// Load hydrates the store from its logs. Called once at startup,
// before the store is shared.
func (s *Store) Load() error {
	if s.memLog != nil {
		memories, err := s.memLog.Load()
		if err != nil {
			return fmt.Errorf("memory: failed to load memories: %w", err)
		}
		s.mu.Lock()
		for i := range memories {
			m := memories[i]
			s.memories[m.ID] = &m
		}
		s.mu.Unlock()
	}

	if s.expLog != nil {
		experiences, err := s.expLog.Load()
		if err != nil {
			return fmt.Errorf("memory: failed to load experiences: %w", err)
		}
		s.mu.Lock()
		for i := range experiences {
			e := experiences[i]
			s.experiences[e.ID] = &e
		}
		s.mu.Unlock()
	}

	return nil
}

// AddMemory inserts or replaces a memory and appends it to the log.
func (s *Store) AddMemory(m *types.Memory) {
	clone := m.Clone()

	s.mu.Lock()
	s.memories[clone.ID] = clone
	s.mu.Unlock()

	if s.memLog != nil {
		if err := s.memLog.Append(*clone.Clone()); err != nil {
			log.Printf("memory: failed to persist memory %s: %v", clone.ID, err)
		}
	}
}

// GetMemory returns a clone of the memory with the given id.
func (s *Store) GetMemory(id string) (*types.Memory, error) {
	s.mu.RLock()
	m, ok := s.memories[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", id, storage.ErrNotFound)
	}
	return m.Clone(), nil
}

// AllMemories returns clones of every memory. Ordering is unspecified
// (map iteration); callers needing an order must sort.
func (s *Store) AllMemories() []types.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, *m.Clone())
	}
	return out
}

// QueryMemories filters by modality and since, sorts newest-first, and
// truncates to the limit.
func (s *Store) QueryMemories(q types.MemoryQuery) []types.Memory {
	s.mu.RLock()
	out := make([]types.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		if q.Modality != "" && m.Modality != q.Modality {
			continue
		}
		if q.Since != nil && m.Timestamp.Before(*q.Since) {
			continue
		}
		out = append(out, *m.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// MarkConsolidated flags the given memories as consolidated into the
// experience, then appends the updated records to the log.
func (s *Store) MarkConsolidated(ids []string, experienceID string) {
	updated := make([]*types.Memory, 0, len(ids))

	s.mu.Lock()
	for _, id := range ids {
		m, ok := s.memories[id]
		if !ok {
			continue
		}
		m.SetFacet(types.FacetConsolidated, true)
		m.SetFacet(types.FacetConceptID, experienceID)
		updated = append(updated, m.Clone())
	}
	s.mu.Unlock()

	if s.memLog != nil {
		for _, m := range updated {
			if err := s.memLog.Append(*m); err != nil {
				log.Printf("memory: failed to persist consolidation mark for %s: %v", m.ID, err)
			}
		}
	}
}

// ClearMemories removes every memory and snapshots the empty state.
func (s *Store) ClearMemories() {
	s.mu.Lock()
	s.memories = make(map[string]*types.Memory)
	s.mu.Unlock()

	if s.memLog != nil {
		if err := s.memLog.Snapshot(nil); err != nil {
			log.Printf("memory: failed to persist memory clear: %v", err)
		}
	}
}

// AddExperience inserts an experience and appends it to the log.
func (s *Store) AddExperience(e *types.Experience) {
	clone := e.Clone()

	s.mu.Lock()
	s.experiences[clone.ID] = clone
	s.mu.Unlock()

	if s.expLog != nil {
		if err := s.expLog.Append(*clone.Clone()); err != nil {
			log.Printf("memory: failed to persist experience %s: %v", clone.ID, err)
		}
	}
}

// GetExperience returns a clone of the experience with the given id.
func (s *Store) GetExperience(id string) (*types.Experience, error) {
	s.mu.RLock()
	e, ok := s.experiences[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("experience %s: %w", id, storage.ErrNotFound)
	}
	return e.Clone(), nil
}

// Experiences returns clones of every experience, newest-first by
// creation time, truncated to limit when limit > 0.
func (s *Store) Experiences(limit int) []types.Experience {
	s.mu.RLock()
	out := make([]types.Experience, 0, len(s.experiences))
	for _, e := range s.experiences {
		out = append(out, *e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClearExperiences removes every experience and snapshots the empty state.
func (s *Store) ClearExperiences() {
	s.mu.Lock()
	s.experiences = make(map[string]*types.Experience)
	s.mu.Unlock()

	if s.expLog != nil {
		if err := s.expLog.Snapshot(nil); err != nil {
			log.Printf("memory: failed to persist experience clear: %v", err)
		}
	}
}

// SnapshotMemories writes the full memory set to the log.
func (s *Store) SnapshotMemories() error {
	if s.memLog == nil {
		return nil
	}
	return s.memLog.Snapshot(s.AllMemories())
}

// SnapshotExperiences writes the full experience set to the log.
func (s *Store) SnapshotExperiences() error {
	if s.expLog == nil {
		return nil
	}
	return s.expLog.Snapshot(s.Experiences(0))
}

// Stats computes store-wide counters under a single read lock.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalMemories:    len(s.memories),
		TotalExperiences: len(s.experiences),
	}
	for _, m := range s.memories {
		if m.FacetBool(types.FacetConsolidated) {
			st.ConsolidatedCount++
		}
	}
	if st.TotalMemories > 0 {
		st.ConsolidationRate = float64(st.ConsolidatedCount) / float64(st.TotalMemories)
	}
	return st
}
