package types

import "time"

// ReflectionRequest asks for a thought over the caller-supplied
// memories merged with the store's contents. FocusEmbedding switches
// selection from recency to similarity ranking.
type ReflectionRequest struct {
	Memories       []Memory  `json:"memories"`
	UserQuery      string    `json:"user_query,omitempty"`
	FocusEmbedding []float32 `json:"focus_embedding,omitempty"`
}

// ConsolidationRequest drives a consolidation pass. Force bypasses the
// gate; MaxExperiences caps how many experiences one pass may create
// (0 means the default of 5).
type ConsolidationRequest struct {
	Force          bool `json:"force,omitempty"`
	MaxExperiences int  `json:"max_experiences,omitempty"`
}

// ConsolidationResult summarizes a consolidation pass.
type ConsolidationResult struct {
	ExperiencesCreated   int       `json:"experiences_created"`
	ThoughtsConsolidated int       `json:"thoughts_consolidated"`
	ConsolidationTime    time.Time `json:"consolidation_time"`
	ThemesIdentified     []string  `json:"themes_identified"`
}

// MemoryQuery filters and bounds a memory enumeration. Results are
// filtered first, then sorted newest-first, then truncated.
type MemoryQuery struct {
	Limit    int        `json:"limit,omitempty"`
	Modality Modality   `json:"modality,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
}

// APIResponse is the uniform success/error envelope every endpoint
// returns. Internal errors are reduced to a short message; raw backend
// error text never crosses this boundary.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse wraps data in a success envelope.
func SuccessResponse(data interface{}) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// ErrorResponse wraps a message in an error envelope.
func ErrorResponse(message string) APIResponse {
	return APIResponse{Success: false, Error: message}
}
