package types

import "time"

// Experience is a long-lived artifact synthesized from a group of
// related memories during consolidation. Experiences are immutable
// after creation; only bulk-clear removes them.
type Experience struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	ConsolidatedFrom []string  `json:"consolidated_from"` // source memory IDs, always >= 2
	CreatedAt        time.Time `json:"created_at"`        // earliest source timestamp
	ConsolidatedAt   time.Time `json:"consolidated_at"`
	Themes           []string  `json:"themes"`
	EmotionalTone    float64   `json:"emotional_tone"` // 0.0-1.0
	Importance       float64   `json:"importance"`     // 0.0-1.0
	ContextHash      string    `json:"context_hash"`
	Tags             []string  `json:"tags"`
}

// Clone returns a deep copy of the experience.
func (e *Experience) Clone() *Experience {
	c := *e
	if e.ConsolidatedFrom != nil {
		c.ConsolidatedFrom = make([]string, len(e.ConsolidatedFrom))
		copy(c.ConsolidatedFrom, e.ConsolidatedFrom)
	}
	if e.Themes != nil {
		c.Themes = make([]string, len(e.Themes))
		copy(c.Themes, e.Themes)
	}
	if e.Tags != nil {
		c.Tags = make([]string, len(e.Tags))
		copy(c.Tags, e.Tags)
	}
	return &c
}
