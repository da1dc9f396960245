// Package ingest implements the perception-agent ingestion format: one
// JSON object per line of an append-only log, plus a live tailer that
// feeds newly appended records into the memory store.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/reverie/pkg/types"
)

// Record is the wire shape of one ingestion log line. Absent fields
// default to empty/zero equivalents rather than failing the parse:
// perception services evolve independently and older logs must load.
type Record struct {
	EmbeddingID string                 `json:"embedding_id"`
	TS          int64                  `json:"ts"` // unix seconds
	Source      string                 `json:"source"`
	Facets      map[string]interface{} `json:"facets,omitempty"`
	Content     string                 `json:"content"`
	Tags        []string               `json:"tags,omitempty"`
	Embedding   []float32              `json:"embedding,omitempty"`
}

// ToMemory converts a record into a Memory, filling defaults:
// a fresh UUID when embedding_id is absent, unix epoch when ts is zero,
// text modality for unknown sources.
func (r Record) ToMemory() types.Memory {
	id := r.EmbeddingID
	if id == "" {
		id = uuid.New().String()
	}
	return types.Memory{
		ID:        id,
		Timestamp: time.Unix(r.TS, 0).UTC(),
		Modality:  types.ParseModality(r.Source),
		Embedding: r.Embedding,
		Content:   r.Content,
		Facets:    r.Facets,
		Tags:      r.Tags,
	}
}

// FromMemory converts a Memory back into its log record shape.
// Timestamps are second-precision in the log.
func FromMemory(m types.Memory) Record {
	return Record{
		EmbeddingID: m.ID,
		TS:          m.Timestamp.Unix(),
		Source:      m.Modality.String(),
		Facets:      m.Facets,
		Content:     m.Content,
		Tags:        m.Tags,
		Embedding:   m.Embedding,
	}
}

// DecodeLine parses one ingestion log line into a Memory.
func DecodeLine(line []byte) (types.Memory, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return types.Memory{}, fmt.Errorf("ingest: invalid record: %w", err)
	}
	return r.ToMemory(), nil
}

// EncodeLine renders a Memory as one ingestion log line, without a
// trailing newline.
func EncodeLine(m types.Memory) ([]byte, error) {
	data, err := json.Marshal(FromMemory(m))
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to encode record: %w", err)
	}
	return data, nil
}
