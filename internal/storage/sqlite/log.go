// Package sqlite provides a SQLite implementation of the Reverie
// persistence logs. Facets, tags, and embeddings are stored as JSON
// columns; the database runs in WAL mode with a single open connection
// to avoid writer contention.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/reverie/internal/storage"
	"github.com/scrypster/reverie/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id        TEXT PRIMARY KEY,
	ts        INTEGER NOT NULL,
	modality  TEXT NOT NULL,
	content   TEXT NOT NULL DEFAULT '',
	embedding TEXT,
	facets    TEXT,
	tags      TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_ts ON memories(ts DESC);
CREATE INDEX IF NOT EXISTS idx_memories_modality ON memories(modality);

CREATE TABLE IF NOT EXISTS experiences (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	consolidated_from TEXT NOT NULL,
	created_at        INTEGER NOT NULL,
	consolidated_at   INTEGER NOT NULL,
	themes            TEXT,
	emotional_tone    REAL NOT NULL DEFAULT 0.5,
	importance        REAL NOT NULL DEFAULT 0.5,
	context_hash      TEXT NOT NULL DEFAULT '',
	tags              TEXT
);

CREATE INDEX IF NOT EXISTS idx_experiences_created ON experiences(created_at DESC);
`

// Store owns the SQLite database and exposes both logs over it.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// One connection: modernc sqlite serializes writers anyway, and a
	// single conn sidesteps SQLITE_BUSY under concurrent snapshots.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// MemoryLog returns the memory log view of the store.
func (s *Store) MemoryLog() storage.MemoryLog { return &memoryLog{s.db} }

// ExperienceLog returns the experience log view of the store.
func (s *Store) ExperienceLog() storage.ExperienceLog { return &experienceLog{s.db} }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

type memoryLog struct {
	db *sql.DB
}

func (l *memoryLog) Load() ([]types.Memory, error) {
	rows, err := l.db.Query(`SELECT id, ts, modality, content, embedding, facets, tags FROM memories ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []types.Memory
	for rows.Next() {
		var (
			m         types.Memory
			ts        int64
			modality  string
			embedding sql.NullString
			facets    sql.NullString
			tags      sql.NullString
		)
		if err := rows.Scan(&m.ID, &ts, &modality, &m.Content, &embedding, &facets, &tags); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		m.Modality = types.ParseModality(modality)
		unmarshalJSON(embedding, &m.Embedding)
		unmarshalJSON(facets, &m.Facets)
		unmarshalJSON(tags, &m.Tags)
		memories = append(memories, m)
	}

	return memories, rows.Err()
}

func (l *memoryLog) Append(m types.Memory) error {
	embedding, facets, tags, err := encodeMemoryColumns(m)
	if err != nil {
		return err
	}

	_, err = l.db.Exec(`
		INSERT INTO memories (id, ts, modality, content, embedding, facets, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ts = excluded.ts,
			modality = excluded.modality,
			content = excluded.content,
			embedding = excluded.embedding,
			facets = excluded.facets,
			tags = excluded.tags
	`, m.ID, m.Timestamp.Unix(), m.Modality.String(), m.Content, embedding, facets, tags)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert memory %s: %w", m.ID, err)
	}
	return nil
}

func (l *memoryLog) Snapshot(memories []types.Memory) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memories`); err != nil {
		return fmt.Errorf("sqlite: failed to clear memories: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO memories (id, ts, modality, content, embedding, facets, tags) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range memories {
		embedding, facets, tags, err := encodeMemoryColumns(m)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(m.ID, m.Timestamp.Unix(), m.Modality.String(), m.Content, embedding, facets, tags); err != nil {
			return fmt.Errorf("sqlite: failed to insert memory %s: %w", m.ID, err)
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
		return nil, fmt.Errorf("sqlite: failed to query experiences: %w", err)
	}
	defer rows.Close()

	var experiences []types.Experience
	for rows.Next() {
		var (
			e            types.Experience
			from         string
			createdAt    int64
			consolidated int64
			themes       sql.NullString
			tags         sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &from, &createdAt, &consolidated,
			&themes, &e.EmotionalTone, &e.Importance, &e.ContextHash, &tags); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan experience: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		e.ConsolidatedAt = time.Unix(consolidated, 0).UTC()
		if err := json.Unmarshal([]byte(from), &e.ConsolidatedFrom); err != nil {
			return nil, fmt.Errorf("sqlite: corrupt consolidated_from for %s: %w", e.ID, err)
		}
		unmarshalJSON(themes, &e.Themes)
		unmarshalJSON(tags, &e.Tags)
		experiences = append(experiences, e)
	}

	return experiences, rows.Err()
}

func (l *experienceLog) Append(e types.Experience) error {
	from, themes, tags, err := encodeExperienceColumns(e)
	if err != nil {
		return err
	}

	_, err = l.db.Exec(`
		INSERT INTO experiences (id, title, summary, consolidated_from, created_at,
			consolidated_at, themes, emotional_tone, importance, context_hash, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		return fmt.Errorf("sqlite: failed to upsert experience %s: %w", e.ID, err)
	}
	return nil
}

func (l *experienceLog) Snapshot(experiences []types.Experience) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM experiences`); err != nil {
		return fmt.Errorf("sqlite: failed to clear experiences: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO experiences (id, title, summary, consolidated_from, created_at,
			consolidated_at, themes, emotional_tone, importance, context_hash, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range experiences {
		from, themes, tags, err := encodeExperienceColumns(e)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(e.ID, e.Title, e.Summary, from, e.CreatedAt.Unix(), e.ConsolidatedAt.Unix(),
			themes, e.EmotionalTone, e.Importance, e.ContextHash, tags); err != nil {
			return fmt.Errorf("sqlite: failed to insert experience %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (l *experienceLog) Close() error { return nil }

func encodeMemoryColumns(m types.Memory) (embedding, facets, tags sql.NullString, err error) {
	if embedding, err = marshalJSON(m.Embedding); err != nil {
		return embedding, facets, tags, fmt.Errorf("sqlite: failed to encode embedding for %s: %w", m.ID, err)
	}
	if facets, err = marshalJSON(m.Facets); err != nil {
		return embedding, facets, tags, fmt.Errorf("sqlite: failed to encode facets for %s: %w", m.ID, err)
	}
	if tags, err = marshalJSON(m.Tags); err != nil {
		return embedding, facets, tags, fmt.Errorf("sqlite: failed to encode tags for %s: %w", m.ID, err)
	}
	return embedding, facets, tags, nil
}

func encodeExperienceColumns(e types.Experience) (from string, themes, tags sql.NullString, err error) {
	fromBytes, err := json.Marshal(e.ConsolidatedFrom)
	if err != nil {
		return "", themes, tags, fmt.Errorf("sqlite: failed to encode consolidated_from for %s: %w", e.ID, err)
	}
	from = string(fromBytes)
	if themes, err = marshalJSON(e.Themes); err != nil {
		return from, themes, tags, fmt.Errorf("sqlite: failed to encode themes for %s: %w", e.ID, err)
	}
	if tags, err = marshalJSON(e.Tags); err != nil {
		return from, themes, tags, fmt.Errorf("sqlite: failed to encode tags for %s: %w", e.ID, err)
	}
	return from, themes, tags, nil
}

// marshalJSON encodes v to a nullable column, NULL for nil values.
func marshalJSON(v interface{}) (sql.NullString, error) {
	switch x := v.(type) {
	case []float32:
		if x == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if x == nil {
			return sql.NullString{}, nil
		}
	case map[string]interface{}:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalJSON decodes a nullable JSON column into dst, leaving dst
// untouched for NULL or corrupt values.
func unmarshalJSON(col sql.NullString, dst interface{}) {
	if !col.Valid || col.String == "" {
		return
	}
	_ = json.Unmarshal([]byte(col.String), dst)
}
