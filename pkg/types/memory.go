// Package types defines the core data model for Reverie: memories,
// thoughts, experiences, and the request/response DTOs exchanged with
// callers. All other packages depend on this one and never the reverse.
package types

import "time"

// Facet keys written and read by the engines. Facets are free-form, but
// these keys carry pipeline semantics and are worth centralizing.
const (
	FacetConsolidationNeed = "memory_consolidation_need"
	FacetValence           = "affect.valence"
	FacetArousal           = "affect.arousal"
	FacetConsolidated      = "consolidated"
	FacetConceptID         = "concept_id"
	FacetContextHash       = "context_hash"
)

// Memory is a single stored observation or synthesized thought.
type Memory struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Modality  Modality               `json:"modality"`
	Embedding []float32              `json:"embedding,omitempty"`
	Content   string                 `json:"content"`
	Facets    map[string]interface{} `json:"facets,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
}

// Clone returns a deep copy of the memory. The store hands out clones
// only, so callers can never mutate canonical state through a getter.
func (m *Memory) Clone() *Memory {
	c := *m
	if m.Embedding != nil {
		c.Embedding = make([]float32, len(m.Embedding))
		copy(c.Embedding, m.Embedding)
	}
	if m.Facets != nil {
		c.Facets = make(map[string]interface{}, len(m.Facets))
		for k, v := range m.Facets {
			c.Facets[k] = v
		}
	}
	if m.Tags != nil {
		c.Tags = make([]string, len(m.Tags))
		copy(c.Tags, m.Tags)
	}
	return &c
}

// FacetFloat returns the named facet as a float64.
// JSON decoding produces float64 for all numbers; int is accepted for
// facets set programmatically.
func (m *Memory) FacetFloat(key string) (float64, bool) {
	v, ok := m.Facets[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// FacetString returns the named facet as a string.
func (m *Memory) FacetString(key string) (string, bool) {
	v, ok := m.Facets[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// FacetBool returns the named facet as a bool, false when absent or
// not a bool.
func (m *Memory) FacetBool(key string) bool {
	v, ok := m.Facets[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SetFacet sets a facet value, allocating the map on first use.
func (m *Memory) SetFacet(key string, value interface{}) {
	if m.Facets == nil {
		m.Facets = make(map[string]interface{})
	}
	m.Facets[key] = value
}
