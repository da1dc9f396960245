// Package postgres provides a PostgreSQL implementation of the Reverie
// persistence logs. Embeddings are stored in a pgvector column when the
// extension is available, and as little-endian float32 BYTEA otherwise.
package postgres

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/reverie/internal/storage"
	"github.com/scrypster/reverie/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	ts            BIGINT NOT NULL,
	modality      TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	embedding_raw BYTEA,
	facets        JSONB,
	tags          JSONB
);

CREATE INDEX IF NOT EXISTS idx_memories_ts ON memories(ts DESC);
CREATE INDEX IF NOT EXISTS idx_memories_modality ON memories(modality);

CREATE TABLE IF NOT EXISTS experiences (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	consolidated_from JSONB NOT NULL,
	created_at        BIGINT NOT NULL,
	consolidated_at   BIGINT NOT NULL,
	themes            JSONB,
	emotional_tone    DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	importance        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	context_hash      TEXT NOT NULL DEFAULT '',
	tags              JSONB
);

CREATE INDEX IF NOT EXISTS idx_experiences_created ON experiences(created_at DESC);
`

// vectorMigration adds the pgvector column. Applied only when the
// extension is present; the dimension is left unconstrained because
// perception services emit vectors of different sizes.
const vectorMigration = `ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector`

// Store owns the PostgreSQL connection and exposes both logs over it.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// Open connects to PostgreSQL and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	s := &Store{db: db}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	// Try to enable the pgvector extension. This may fail on servers
	// without pgvector installed — log a warning and fall back to the
	// BYTEA column.
	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available (BYTEA embeddings): %v", err)
	} else if _, err := db.Exec(vectorMigration); err != nil {
		log.Printf("postgres: failed to add vector column (BYTEA embeddings): %v", err)
	} else {
		s.pgvectorAvailable = true
	}

	return s, nil
}

// MemoryLog returns the memory log view of the store.
func (s *Store) MemoryLog() storage.MemoryLog {
	return &memoryLog{db: s.db, pgvector: s.pgvectorAvailable}
}

// ExperienceLog returns the experience log view of the store.
func (s *Store) ExperienceLog() storage.ExperienceLog { return &experienceLog{db: s.db} }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

type memoryLog struct {
	db       *sql.DB
	pgvector bool
}

func (l *memoryLog) Load() ([]types.Memory, error) {
	rows, err := l.db.Query(`SELECT id, ts, modality, content, embedding_raw, facets, tags FROM memories ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []types.Memory
	for rows.Next() {
		var (
			m        types.Memory
			ts       int64
			modality string
			raw      []byte
			facets   []byte
			tags     []byte
		)
		if err := rows.Scan(&m.ID, &ts, &modality, &m.Content, &raw, &facets, &tags); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		m.Modality = types.ParseModality(modality)
		m.Embedding = deserializeEmbedding(raw)
		if len(facets) > 0 {
			_ = json.Unmarshal(facets, &m.Facets)
		}
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &m.Tags)
		}
		memories = append(memories, m)
	}

	return memories, rows.Err()
}

func (l *memoryLog) Append(m types.Memory) error {
	facets, tags, err := encodeJSONColumns(m.Facets, m.Tags)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode memory %s: %w", m.ID, err)
	}
	raw := serializeEmbedding(m.Embedding)

	if l.pgvector && len(m.Embedding) > 0 {
		vec := pgvector.NewVector(m.Embedding)
		_, err = l.db.Exec(`
			INSERT INTO memories (id, ts, modality, content, embedding_raw, embedding_vec, facets, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT(id) DO UPDATE SET
				ts = excluded.ts,
				modality = excluded.modality,
				content = excluded.content,
				embedding_raw = excluded.embedding_raw,
				embedding_vec = excluded.embedding_vec,
				facets = excluded.facets,
				tags = excluded.tags
		`, m.ID, m.Timestamp.Unix(), m.Modality.String(), m.Content, raw, vec, facets, tags)
	} else {
		_, err = l.db.Exec(`
			INSERT INTO memories (id, ts, modality, content, embedding_raw, facets, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT(id) DO UPDATE SET
				ts = excluded.ts,
				modality = excluded.modality,
				content = excluded.content,
				embedding_raw = excluded.embedding_raw,
				facets = excluded.facets,
				tags = excluded.tags
		`, m.ID, m.Timestamp.Unix(), m.Modality.String(), m.Content, raw, facets, tags)
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert memory %s: %w", m.ID, err)
	}
	return nil
}

func (l *memoryLog) Snapshot(memories []types.Memory) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memories`); err != nil {
		return fmt.Errorf("postgres: failed to clear memories: %w", err)
	}

	for _, m := range memories {
		facets, tags, err := encodeJSONColumns(m.Facets, m.Tags)
		if err != nil {
			return fmt.Errorf("postgres: failed to encode memory %s: %w", m.ID, err)
		}
		raw := serializeEmbedding(m.Embedding)

		if l.pgvector && len(m.Embedding) > 0 {
			_, err = tx.Exec(`
				INSERT INTO memories (id, ts, modality, content, embedding_raw, embedding_vec, facets, tags)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, m.ID, m.Timestamp.Unix(), m.Modality.String(), m.Content, raw, pgvector.NewVector(m.Embedding), facets, tags)
		} else {
			_, err = tx.Exec(`
				INSERT INTO memories (id, ts, modality, content, embedding_raw, facets, tags)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, m.ID, m.Timestamp.Unix(), m.Modality.String(), m.Content, raw, facets, tags)
		}
		if err != nil {
			return fmt.Errorf("postgres: failed to insert memory %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

func (l *memoryLog) Close() error { return nil }

type experienceLog struct {
	db *sql.DB
}

func (l *experienceLog) Load() ([]types.Experience, error) {
	rows, err := l.db.Query(`
		SELECT id, title, summary, consolidated_from, created_at, consolidated_at,
		       themes, emotional_tone, importance, context_hash, tags
		FROM experiences ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query experiences: %w", err)
	}
	defer rows.Close()

	var experiences []types.Experience
	for rows.Next() {
		var (
			e            types.Experience
			from         []byte
			createdAt    int64
			consolidated int64
			themes       []byte
			tags         []byte
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &from, &createdAt, &consolidated,
			&themes, &e.EmotionalTone, &e.Importance, &e.ContextHash, &tags); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan experience: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		e.ConsolidatedAt = time.Unix(consolidated, 0).UTC()
		if err := json.Unmarshal(from, &e.ConsolidatedFrom); err != nil {
			return nil, fmt.Errorf("postgres: corrupt consolidated_from for %s: %w", e.ID, err)
		}
		if len(themes) > 0 {
			_ = json.Unmarshal(themes, &e.Themes)
		}
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &e.Tags)
		}
		experiences = append(experiences, e)
	}

	return experiences, rows.Err()
}

func (l *experienceLog) Append(e types.Experience) error {
	from, err := json.Marshal(e.ConsolidatedFrom)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode consolidated_from for %s: %w", e.ID, err)
	}
	themes, tags, err := encodeJSONColumns(e.Themes, e.Tags)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode experience %s: %w", e.ID, err)
	}

	_, err = l.db.Exec(`
		INSERT INTO experiences (id, title, summary, consolidated_from, created_at,
			consolidated_at, themes, emotional_tone, importance, context_hash, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			consolidated_from = excluded.consolidated_from,
			created_at = excluded.created_at,
			consolidated_at = excluded.consolidated_at,
			themes = excluded.themes,
			emotional_tone = excluded.emotional_tone,
			importance = excluded.importance,
			context_hash = excluded.context_hash,
			tags = excluded.tags
	`, e.ID, e.Title, e.Summary, from, e.CreatedAt.Unix(), e.ConsolidatedAt.Unix(),
		themes, e.EmotionalTone, e.Importance, e.ContextHash, tags)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert experience %s: %w", e.ID, err)
	}
	return nil
}

func (l *experienceLog) Snapshot(experiences []types.Experience) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM experiences`); err != nil {
		return fmt.Errorf("postgres: failed to clear experiences: %w", err)
	}

	for _, e := range experiences {
		from, err := json.Marshal(e.ConsolidatedFrom)
		if err != nil {
			return fmt.Errorf("postgres: failed to encode consolidated_from for %s: %w", e.ID, err)
		}
		themes, tags, err := encodeJSONColumns(e.Themes, e.Tags)
		if err != nil {
			return fmt.Errorf("postgres: failed to encode experience %s: %w", e.ID, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO experiences (id, title, summary, consolidated_from, created_at,
				consolidated_at, themes, emotional_tone, importance, context_hash, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, e.ID, e.Title, e.Summary, from, e.CreatedAt.Unix(), e.ConsolidatedAt.Unix(),
			themes, e.EmotionalTone, e.Importance, e.ContextHash, tags); err != nil {
			return fmt.Errorf("postgres: failed to insert experience %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (l *experienceLog) Close() error { return nil }

// encodeJSONColumns marshals two values to JSONB columns, passing nil
// through as SQL NULL.
func encodeJSONColumns(a, b interface{}) ([]byte, []byte, error) {
	var (
		aj, bj []byte
		err    error
	)
	if !isNil(a) {
		if aj, err = json.Marshal(a); err != nil {
			return nil, nil, err
		}
	}
	if !isNil(b) {
		if bj, err = json.Marshal(b); err != nil {
			return nil, nil, err
		}
	}
	return aj, bj, nil
}

func isNil(v interface{}) bool {
	switch x := v.(type) {
	case map[string]interface{}:
		return x == nil
	case []string:
		return x == nil
	case nil:
		return true
	}
	return false
}

// serializeEmbedding encodes a vector as little-endian float32 bytes.
func serializeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes little-endian float32 bytes back into a
// vector. Trailing partial values are discarded.
func deserializeEmbedding(raw []byte) []float32 {
	if len(raw) < 4 {
		return nil
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
