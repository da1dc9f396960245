// Package consolidation groups related memories and folds each group
// into a single Experience. An optional text generator enriches the
// themes, title and summary; every LLM path has a deterministic
// heuristic fallback so consolidation works offline.
package consolidation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/reverie/internal/llm"
	"github.com/scrypster/reverie/pkg/types"
)

const (
	defaultMinMemories    = 3
	defaultNeedThreshold  = 0.6
	defaultMaxExperiences = 5

	// Two memories are related when they fall within this window of
	// each other and their token overlap clears the similarity floor.
	relatedWindow     = time.Hour
	relatedSimilarity = 0.3

	minGroupSize      = 2
	summaryExcerptLen = 97
)

// Engine decides when a set of memories is ready to consolidate,
// groups the related ones, and synthesizes an Experience per group.
type Engine struct {
	minMemories   int
	needThreshold float64
	generator     llm.TextGenerator
}

// NewEngine returns an engine that uses only the heuristic fallbacks.
func NewEngine() *Engine {
	return &Engine{
		minMemories:   defaultMinMemories,
		needThreshold: defaultNeedThreshold,
	}
}

// NewEngineWithLLM returns an engine that asks the generator for
// themes, titles and summaries, falling back to the heuristics when a
// call fails.
func NewEngineWithLLM(generator llm.TextGenerator) *Engine {
	e := NewEngine()
	e.generator = generator
	return e
}

// ShouldConsolidate reports whether the memories have accumulated
// enough consolidation pressure. The mean is taken over members that
// carry the need facet; with fewer than three memories, or none
// carrying the facet, there is no evidence of need.
func (e *Engine) ShouldConsolidate(memories []types.Memory) bool {
	if len(memories) < e.minMemories {
		return false
	}

	var sum float64
	var n int
	for i := range memories {
		if v, ok := memories[i].FacetFloat(types.FacetConsolidationNeed); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return false
	}
	return sum/float64(n) >= e.needThreshold
}

// GroupRelated partitions memories into non-overlapping groups with a
// single greedy pass: each unused memory seeds a group and claims
// every later unused memory related to the seed. Only groups of two or
// more survive; relatedness to the seed is what binds a group, not
// pairwise relatedness of all members.
func (e *Engine) GroupRelated(memories []types.Memory) [][]types.Memory {
	used := make([]bool, len(memories))
	var groups [][]types.Memory

	for i := range memories {
		if used[i] {
			continue
		}
		group := []types.Memory{memories[i]}
		used[i] = true

		for j := i + 1; j < len(memories); j++ {
			if used[j] {
				continue
			}
			if related(&memories[i], &memories[j]) {
				group = append(group, memories[j])
				used[j] = true
			}
		}

		if len(group) >= minGroupSize {
			groups = append(groups, group)
		}
	}
	return groups
}

func related(a, b *types.Memory) bool {
	d := a.Timestamp.Sub(b.Timestamp)
	if d < 0 {
		d = -d
	}
	if d > relatedWindow {
		return false
	}
	return tokenJaccard(a.Content, b.Content) >= relatedSimilarity
}

// tokenJaccard measures overlap between the whitespace-token sets of
// two lowercased strings. Two empty strings share no tokens and score
// zero.
func tokenJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)

	union := len(tb)
	intersection := 0
	for w := range ta {
		if _, ok := tb[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// CreateExperience synthesizes one Experience from a group of related
// memories. CreatedAt is the earliest member timestamp so the
// experience sorts where the underlying moment happened, not where
// consolidation ran.
func (e *Engine) CreateExperience(ctx context.Context, group []types.Memory) *types.Experience {
	now := time.Now().UTC()

	themes := e.themesFor(ctx, group)
	title := e.titleFor(ctx, group, themes)
	summary := e.summaryFor(ctx, group)

	ids := make([]string, len(group))
	earliest := now
	for i := range group {
		ids[i] = group[i].ID
		if i == 0 || group[i].Timestamp.Before(earliest) {
			earliest = group[i].Timestamp
		}
	}

	return &types.Experience{
		ID:               uuid.New().String(),
		Title:            title,
		Summary:          summary,
		ConsolidatedFrom: ids,
		CreatedAt:        earliest,
		ConsolidatedAt:   now,
		Themes:           themes,
		EmotionalTone:    meanFacet(group, types.FacetValence, 0.5),
		Importance:       meanFacet(group, types.FacetConsolidationNeed, 0.5),
		ContextHash:      contextHash(ids),
		Tags:             []string{"consolidated", "experience"},
	}
}

// Consolidate runs one full pass: gate, group, synthesize. It returns
// the pass summary and the experiences created; persisting them and
// marking members consolidated is the caller's job. Groups past the
// MaxExperiences cap are dropped and re-evaluated on the next pass.
func (e *Engine) Consolidate(ctx context.Context, memories []types.Memory, req types.ConsolidationRequest) (types.ConsolidationResult, []*types.Experience) {
	maxExperiences := req.MaxExperiences
	if maxExperiences <= 0 {
		maxExperiences = defaultMaxExperiences
	}

	result := types.ConsolidationResult{
		ConsolidationTime: time.Now().UTC(),
		ThemesIdentified:  []string{},
	}

	if !req.Force && !e.ShouldConsolidate(memories) {
		return result, nil
	}

	groups := e.GroupRelated(memories)
	if len(groups) > maxExperiences {
		log.Printf("consolidation: %d groups found, capping at %d this pass", len(groups), maxExperiences)
		groups = groups[:maxExperiences]
	}

	var experiences []*types.Experience
	seen := make(map[string]bool)
	for _, group := range groups {
		exp := e.CreateExperience(ctx, group)
		experiences = append(experiences, exp)
		result.ExperiencesCreated++
		result.ThoughtsConsolidated += len(group)
		for _, theme := range exp.Themes {
			if !seen[theme] {
				seen[theme] = true
				result.ThemesIdentified = append(result.ThemesIdentified, theme)
			}
		}
	}
	return result, experiences
}

func (e *Engine) themesFor(ctx context.Context, group []types.Memory) []string {
	if e.generator != nil {
		themes, err := e.themesWithLLM(ctx, group)
		if err == nil {
			return themes
		}
		log.Printf("consolidation: llm theme extraction failed, using keyword fallback: %v", err)
	}
	return extractThemes(group)
}

func (e *Engine) themesWithLLM(ctx context.Context, group []types.Memory) ([]string, error) {
	prompt := "Analyze the following thoughts and extract 3-5 key themes that represent the main topics or concepts discussed. Return only a comma-separated list of theme names, no explanations:\n\n" + joinContent(group)
	response, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var themes []string
	for _, part := range strings.Split(response, ",") {
		if theme := strings.ToLower(strings.TrimSpace(part)); theme != "" {
			themes = append(themes, theme)
		}
	}
	return themes, nil
}

func (e *Engine) titleFor(ctx context.Context, group []types.Memory, themes []string) string {
	if e.generator != nil {
		prompt := "Based on the following thoughts, generate a concise, meaningful title (3-8 words) that captures the essence of this experience. Return only the title, no explanations:\n\n" + joinContent(group)
		response, err := e.generator.Complete(ctx, prompt)
		if err == nil {
			if title := strings.TrimSpace(response); title != "" {
				return title
			}
		} else {
			log.Printf("consolidation: llm title generation failed, using fallback: %v", err)
		}
	}

	if len(themes) > 0 {
		return "Experience: " + strings.Join(themes, ", ")
	}
	return "Consolidated Experience"
}

func (e *Engine) summaryFor(ctx context.Context, group []types.Memory) string {
	if e.generator != nil {
		prompt := "Consolidate the following related thoughts into a coherent, meaningful summary that tells a story about this experience. Focus on the key insights and connections between the thoughts. Keep it concise but comprehensive (2-3 sentences):\n\n" + joinContent(group)
		response, err := e.generator.Complete(ctx, prompt)
		if err == nil {
			if summary := strings.TrimSpace(response); summary != "" {
				return summary
			}
		} else {
			log.Printf("consolidation: llm summary generation failed, using fallback: %v", err)
		}
	}
	return heuristicSummary(group)
}

// heuristicSummary joins up to three content excerpts and counts the
// rest.
func heuristicSummary(group []types.Memory) string {
	excerpts := make([]string, 0, len(group))
	for i := range group {
		content := group[i].Content
		if len(content) > 100 {
			content = content[:summaryExcerptLen] + "..."
		}
		excerpts = append(excerpts, content)
	}

	if len(excerpts) <= 3 {
		return strings.Join(excerpts, " | ")
	}
	return fmt.Sprintf("%s | ... and %d more thoughts", strings.Join(excerpts[:3], " | "), len(excerpts)-3)
}

func joinContent(group []types.Memory) string {
	parts := make([]string, len(group))
	for i := range group {
		parts[i] = group[i].Content
	}
	return strings.Join(parts, " ")
}

func meanFacet(group []types.Memory, key string, fallback float64) float64 {
	var sum float64
	var n int
	for i := range group {
		if v, ok := group[i].FacetFloat(key); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}

// contextHash fingerprints the member IDs in group order. It is a
// debugging aid for tracing which members produced an experience, not
// a stable dedupe key.
func contextHash(ids []string) string {
	h := fnv.New64a()
	for _, id := range ids {
		h.Write([]byte(id))
	}
	return fmt.Sprintf("%x", h.Sum64())
}
