// Package storage provides the pluggable persistence interfaces for
// Reverie. The in-memory store is the source of truth at runtime; logs
// are durability substrates behind small interfaces so the engines are
// testable without real file or database I/O.
package storage

import (
	"errors"

	"github.com/scrypster/reverie/pkg/types"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("storage: not found")

// MemoryLog persists memories. Append adds one record to the log;
// Snapshot rewrites the whole log atomically (used by the periodic
// snapshotter and by clear operations).
type MemoryLog interface {
	Load() ([]types.Memory, error)
	Append(m types.Memory) error
	Snapshot(memories []types.Memory) error
	Close() error
}

// ExperienceLog persists experiences with the same contract as MemoryLog.
type ExperienceLog interface {
	Load() ([]types.Experience, error)
	Append(e types.Experience) error
	Snapshot(experiences []types.Experience) error
	Close() error
}
