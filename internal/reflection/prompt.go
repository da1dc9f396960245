package reflection

import (
	"fmt"
	"strings"

	"github.com/scrypster/reverie/pkg/types"
)

// Facet keys the prompt surfaces as modality-specific detail.
const (
	facetVisionObject     = "vision.object"
	facetDominantColor    = "color.dominant"
	facetSpeechTranscript = "speech.transcript"
	facetSpeechSentiment  = "speech.sentiment"
)

const promptTemplate = `You are an AI system observing and reflecting on sensory events and interactions.

Given the memories below, generate a concrete, grounded thought based on the ACTUAL events observed.

CRITICAL: Base your thought ONLY on the specific events described in the memories. Do not make up or hallucinate details that aren't mentioned.

Instructions:
1) Write a specific thought (<= 120 words) about what you actually observed
2) Reference the specific people, objects, or speech mentioned in the memories
3) If someone introduced themselves, mention their name
4) If you saw an object, describe what you actually saw (color, type, etc.)
5) If someone spoke, reference what they actually said and their intent/sentiment
6) Consider the emotional context (valence/arousal) if available
7) Connect related events (e.g., "I see a person and they introduced themselves as...")
8) Estimate metrics 0..1: self_awareness, memory_consolidation_need, emotional_stability, creative_insight
9) Suggest up to 5 memory IDs that should be consolidated (if any)
10) Provide 1 short descriptive title

Return STRICT JSON only:
{
  "title": "string",
  "thought": "string",
  "metrics": {
    "self_awareness": 0.0,
    "memory_consolidation_need": 0.0,
    "emotional_stability": 0.0,
    "creative_insight": 0.0
  },
  "consolidate": ["mem-id-1", "..."]
}

No prose outside JSON.

MEMORIES:
%s%s`

// buildPrompt renders one line per memory inside the fixed instruction
// template, with the user query appended when present.
func buildPrompt(memories []types.Memory, userQuery string) string {
	lines := make([]string, len(memories))
	for i := range memories {
		lines[i] = memoryLine(i, &memories[i])
	}

	queryContext := ""
	if userQuery != "" {
		queryContext = "\n\nUSER QUERY: " + userQuery
	}

	return fmt.Sprintf(promptTemplate, strings.Join(lines, "\n"), queryContext)
}

func memoryLine(i int, m *types.Memory) string {
	details := "processed"
	switch m.Modality {
	case types.ModalityVision:
		object := facetStringOr(m, facetVisionObject, "unknown")
		color := facetStringOr(m, facetDominantColor, "unknown")
		details = fmt.Sprintf("object: %s, color: %s", object, color)
	case types.ModalitySpeech:
		transcript, ok := m.FacetString(facetSpeechTranscript)
		if !ok {
			transcript = m.Content
		}
		sentiment := facetStringOr(m, facetSpeechSentiment, "neutral")
		details = fmt.Sprintf("transcript: %q, sentiment: %s", transcript, sentiment)
	}

	var emotional []string
	if v, ok := m.FacetFloat(types.FacetValence); ok {
		emotional = append(emotional, fmt.Sprintf("valence: %.2f", v))
	}
	if a, ok := m.FacetFloat(types.FacetArousal); ok {
		emotional = append(emotional, fmt.Sprintf("arousal: %.2f", a))
	}
	suffix := ""
	if len(emotional) > 0 {
		suffix = " (" + strings.Join(emotional, ", ") + ")"
	}

	return fmt.Sprintf("[%d] %s: %s | %s | ID: %s%s", i+1, m.Modality, m.Content, details, m.ID, suffix)
}

func facetStringOr(m *types.Memory, key, fallback string) string {
	if v, ok := m.FacetString(key); ok {
		return v
	}
	return fallback
}
