package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/reverie/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reverie.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryLogRoundTrip(t *testing.T) {
	s := openTestStore(t)
	l := s.MemoryLog()

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := types.Memory{
		ID:        "mem-1",
		Timestamp: ts,
		Modality:  types.ModalityVision,
		Embedding: []float32{0.5, 0.25},
		Content:   "a blue car",
		Facets:    map[string]interface{}{"vision.object": "car", "affect.valence": 0.4},
		Tags:      []string{"vision"},
	}
	if err := l.Append(m); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d memories, want 1", len(got))
	}
	g := got[0]
	if g.ID != m.ID || g.Content != m.Content || g.Modality != m.Modality {
		t.Errorf("loaded %+v, want %+v", g, m)
	}
	if !g.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", g.Timestamp, ts)
	}
	if len(g.Embedding) != 2 || g.Embedding[0] != 0.5 {
		t.Errorf("embedding = %v, want %v", g.Embedding, m.Embedding)
	}
	if obj, _ := g.FacetString("vision.object"); obj != "car" {
		t.Errorf("facet vision.object = %q, want car", obj)
	}
}

func TestMemoryLogAppendIsUpsert(t *testing.T) {
	s := openTestStore(t)
	l := s.MemoryLog()

	m := types.Memory{ID: "mem-1", Timestamp: time.Now(), Modality: types.ModalityText, Content: "first"}
	if err := l.Append(m); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	m.Content = "second"
	if err := l.Append(m); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	got, _ := l.Load()
	if len(got) != 1 {
		t.Fatalf("loaded %d memories, want 1 after upsert", len(got))
	}
	if got[0].Content != "second" {
		t.Errorf("content = %q, want second", got[0].Content)
	}
}

func TestMemoryLogSnapshot(t *testing.T) {
	s := openTestStore(t)
	l := s.MemoryLog()

	now := time.Now().UTC().Truncate(time.Second)
	l.Append(types.Memory{ID: "a", Timestamp: now, Modality: types.ModalityText})
	l.Append(types.Memory{ID: "b", Timestamp: now, Modality: types.ModalityText})

	err := l.Snapshot([]types.Memory{{ID: "c", Timestamp: now, Modality: types.ModalitySpeech}})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	got, _ := l.Load()
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("after snapshot got %v, want single c", got)
	}
}

func TestExperienceLogRoundTrip(t *testing.T) {
	s := openTestStore(t)
	l := s.ExperienceLog()

	e := types.Experience{
		ID:               "exp-1",
		Title:            "Experience: food",
		Summary:          "coffee and a chat",
		ConsolidatedFrom: []string{"m1", "m2", "m3"},
		CreatedAt:        time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC),
		ConsolidatedAt:   time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		Themes:           []string{"food", "conversation"},
		EmotionalTone:    0.65,
		Importance:       0.8,
		ContextHash:      "deadbeef",
		Tags:             []string{"consolidated", "experience"},
	}
	if err := l.Append(e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d experiences, want 1", len(got))
	}
	g := got[0]
	if g.ID != e.ID || g.Title != e.Title || g.EmotionalTone != e.EmotionalTone {
		t.Errorf("loaded %+v, want %+v", g, e)
	}
	if len(g.ConsolidatedFrom) != 3 {
		t.Errorf("consolidated_from = %v, want 3 entries", g.ConsolidatedFrom)
	}
	if !g.CreatedAt.Equal(e.CreatedAt) || !g.ConsolidatedAt.Equal(e.ConsolidatedAt) {
		t.Error("timestamps did not round-trip")
	}
}

func TestExperienceLogSnapshotClears(t *testing.T) {
	s := openTestStore(t)
	l := s.ExperienceLog()

	now := time.Now()
	l.Append(types.Experience{ID: "e1", Title: "t", ConsolidatedFrom: []string{"a", "b"}, CreatedAt: now, ConsolidatedAt: now})

	if err := l.Snapshot(nil); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	got, _ := l.Load()
	if len(got) != 0 {
		t.Errorf("after empty snapshot got %d experiences, want 0", len(got))
	}
}
