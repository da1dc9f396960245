package types

import "time"

// ThoughtMetrics are the four bounded [0,1] introspection scalars the
// reflection protocol asks the model to estimate.
type ThoughtMetrics struct {
	SelfAwareness           float64 `json:"self_awareness"`
	MemoryConsolidationNeed float64 `json:"memory_consolidation_need"`
	EmotionalStability      float64 `json:"emotional_stability"`
	CreativeInsight         float64 `json:"creative_insight"`
}

// Thought is an ephemeral reflective synthesis over a selected memory
// set. It is not a storage entity: callers convert it into a Memory via
// AsMemory before persisting.
type Thought struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Thought     string         `json:"thought"`
	Metrics     ThoughtMetrics `json:"metrics"`
	Consolidate []string       `json:"consolidate"`
	GeneratedAt time.Time      `json:"generated_at"`
	ContextHash string         `json:"context_hash"`
	Model       string         `json:"model"`
}

// MaxConsolidateSuggestions bounds the consolidate list a thought may
// carry; responses exceeding it are rejected as malformed.
const MaxConsolidateSuggestions = 5

// AsMemory converts the thought into a text-modality memory carrying
// the four metrics and the context hash as facets.
func (t *Thought) AsMemory(now time.Time) *Memory {
	return &Memory{
		ID:        t.ID,
		Timestamp: now,
		Modality:  ModalityText,
		Content:   t.Thought,
		Facets: map[string]interface{}{
			"self_awareness":       t.Metrics.SelfAwareness,
			FacetConsolidationNeed: t.Metrics.MemoryConsolidationNeed,
			"emotional_stability":  t.Metrics.EmotionalStability,
			"creative_insight":     t.Metrics.CreativeInsight,
			FacetContextHash:       t.ContextHash,
		},
		Tags: []string{"thought", "reflection"},
	}
}
