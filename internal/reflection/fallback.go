package reflection

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/reverie/pkg/types"
)

// FallbackGenerate builds a thought from the memories alone, with no
// model in the loop. Apart from the generated ID and timestamp it is
// deterministic: same memories and query, same thought. Concept
// memories tally with text in the modality counts.
func FallbackGenerate(memories []types.Memory, userQuery string) *types.Thought {
	var visionCount, speechCount, textCount int
	var events []string

	for i := range memories {
		if i >= 5 {
			break
		}
		m := &memories[i]
		switch m.Modality {
		case types.ModalityVision:
			visionCount++
		case types.ModalitySpeech:
			speechCount++
		default:
			textCount++
		}
		if m.Content != "" {
			events = append(events, fmt.Sprintf("[%s] %s", m.Modality, m.Content))
		}
	}

	var content string
	switch {
	case userQuery != "":
		content = fmt.Sprintf("Processing query: '%s'. Recent events: %s. I observe %d vision, %d speech, and %d text events.",
			userQuery, strings.Join(events, "; "), visionCount, speechCount, textCount)
	case len(events) > 0:
		content = fmt.Sprintf("I observed: %s. This gives me %d vision, %d speech, and %d text memories to process.",
			strings.Join(events, "; "), visionCount, speechCount, textCount)
	default:
		content = fmt.Sprintf("I have %d vision, %d speech, and %d text memories, but no specific content to reflect on.",
			visionCount, speechCount, textCount)
	}

	total := len(memories)
	metrics := types.ThoughtMetrics{
		SelfAwareness:           0.3,
		MemoryConsolidationNeed: 0.4,
		EmotionalStability:      0.5,
		CreativeInsight:         0.3,
	}
	if total > 0 {
		metrics.SelfAwareness = 0.6
	}
	if total > 3 {
		metrics.MemoryConsolidationNeed = 0.7
	}
	if visionCount > 0 && speechCount > 0 {
		metrics.CreativeInsight = 0.6
	}

	var consolidate []string
	if total > 2 {
		for i := 0; i < 3; i++ {
			consolidate = append(consolidate, memories[i].ID)
		}
	}

	return &types.Thought{
		ID:          uuid.New().String(),
		Title:       "Fallback Reflection",
		Thought:     content,
		Metrics:     metrics,
		Consolidate: consolidate,
		GeneratedAt: time.Now().UTC(),
		ContextHash: fmt.Sprintf("fallback_%d", total),
		Model:       "fallback",
	}
}
