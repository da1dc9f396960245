// Package reflection turns a selected memory set into a single
// introspective Thought. Generation is two-tier: the model path builds
// a strict-JSON prompt and parses the reply, and a pure deterministic
// fallback covers every model failure so reflection never errors out
// to callers.
package reflection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/reverie/internal/llm"
	"github.com/scrypster/reverie/pkg/types"
)

// Engine drives reflection against a text generator. The health checker
// is optional and only feeds the Healthy probe.
type Engine struct {
	generator llm.TextGenerator
	health    llm.HealthChecker
}

func NewEngine(generator llm.TextGenerator, health llm.HealthChecker) *Engine {
	return &Engine{generator: generator, health: health}
}

// Generate asks the model for a thought over the memories. Any
// transport, parse, or validation failure is returned to the caller;
// use Reflect for the composed fallback behavior.
func (e *Engine) Generate(ctx context.Context, memories []types.Memory, userQuery string) (*types.Thought, error) {
	if e.generator == nil {
		return nil, errors.New("no text generator configured")
	}

	prompt := buildPrompt(memories, userQuery)
	response, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	parsed, err := parseResponse(response)
	if err != nil {
		return nil, err
	}

	model := e.generator.GetModel()
	return &types.Thought{
		ID:          uuid.New().String(),
		Title:       parsed.Title,
		Thought:     parsed.Thought,
		Metrics:     parsed.Metrics,
		Consolidate: parsed.Consolidate,
		GeneratedAt: time.Now().UTC(),
		ContextHash: contextHash(memories, model),
		Model:       model,
	}, nil
}

// Reflect composes the two tiers: model generation first, the
// deterministic fallback on any failure. It never returns an error.
func (e *Engine) Reflect(ctx context.Context, memories []types.Memory, userQuery string) *types.Thought {
	if e.generator != nil {
		thought, err := e.Generate(ctx, memories, userQuery)
		if err == nil {
			return thought
		}
		log.Printf("reflection: generation failed, using fallback with %d memories: %v", len(memories), err)
	}
	return FallbackGenerate(memories, userQuery)
}

// Healthy reports whether the generative backend is reachable. Probe
// errors are swallowed; an engine without a health checker is never
// healthy.
func (e *Engine) Healthy(ctx context.Context) bool {
	if e.health == nil {
		return false
	}
	return e.health.HealthCheck(ctx) == nil
}

type reflectionResponse struct {
	Title       string               `json:"title"`
	Thought     string               `json:"thought"`
	Metrics     types.ThoughtMetrics `json:"metrics"`
	Consolidate []string             `json:"consolidate"`
}

// parseResponse extracts the JSON object from the model reply. Models
// wrap the JSON in prose often enough that only the first-{ to last-}
// span is considered.
func parseResponse(response string) (*reflectionResponse, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, errors.New("no JSON object in model response")
	}

	var parsed reflectionResponse
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("malformed model response: %w", err)
	}

	if parsed.Title == "" || parsed.Thought == "" {
		return nil, errors.New("model response missing title or thought")
	}
	if len(parsed.Consolidate) > types.MaxConsolidateSuggestions {
		return nil, fmt.Errorf("model suggested %d consolidations, max is %d",
			len(parsed.Consolidate), types.MaxConsolidateSuggestions)
	}
	return &parsed, nil
}

// contextHash fingerprints the memory set the thought was generated
// from: ordered (id, content, modality) tuples plus the model name and
// count. Order-dependent; a debugging aid, not a stable dedupe key.
func contextHash(memories []types.Memory, model string) string {
	h := fnv.New64a()
	for i := range memories {
		h.Write([]byte(memories[i].ID))
		h.Write([]byte(memories[i].Content))
		h.Write([]byte(memories[i].Modality))
	}
	h.Write([]byte(model))
	fmt.Fprintf(h, "%d", len(memories))
	return fmt.Sprintf("%x", h.Sum64())
}
