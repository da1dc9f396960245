package consolidation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/reverie/pkg/types"
)

// fakeGenerator returns canned responses keyed by a prompt substring.
type fakeGenerator struct {
	themes  string
	title   string
	summary string
	err     error
	calls   int
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(prompt, "key themes"):
		return f.themes, nil
	case strings.Contains(prompt, "title"):
		return f.title, nil
	default:
		return f.summary, nil
	}
}

func (f *fakeGenerator) GetModel() string { return "fake" }

func mem(id, content string, ts time.Time, need float64) types.Memory {
	m := types.Memory{
		ID:        id,
		Timestamp: ts,
		Modality:  types.ModalityText,
		Content:   content,
		Facets:    map[string]interface{}{},
	}
	if need >= 0 {
		m.Facets[types.FacetConsolidationNeed] = need
	}
	return m
}

var baseTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestShouldConsolidate(t *testing.T) {
	e := NewEngine()

	// Two memories are never enough, whatever their need.
	two := []types.Memory{
		mem("a", "x", baseTime, 0.9),
		mem("b", "y", baseTime, 0.9),
	}
	if e.ShouldConsolidate(two) {
		t.Error("two memories should not pass the gate")
	}

	// Mean need exactly at the threshold passes.
	atThreshold := []types.Memory{
		mem("a", "x", baseTime, 0.5),
		mem("b", "y", baseTime, 0.6),
		mem("c", "z", baseTime, 0.7),
	}
	if !e.ShouldConsolidate(atThreshold) {
		t.Error("mean need of exactly 0.6 should pass the gate")
	}

	below := []types.Memory{
		mem("a", "x", baseTime, 0.5),
		mem("b", "y", baseTime, 0.5),
		mem("c", "z", baseTime, 0.5),
	}
	if e.ShouldConsolidate(below) {
		t.Error("mean need of 0.5 should not pass the gate")
	}

	// Members without the facet are excluded from the mean entirely.
	mixed := []types.Memory{
		mem("a", "x", baseTime, 0.7),
		mem("b", "y", baseTime, -1),
		mem("c", "z", baseTime, -1),
	}
	if !e.ShouldConsolidate(mixed) {
		t.Error("mean over facet-bearing members only: 0.7 should pass")
	}

	// No member carries the facet: no evidence of need.
	none := []types.Memory{
		mem("a", "x", baseTime, -1),
		mem("b", "y", baseTime, -1),
		mem("c", "z", baseTime, -1),
	}
	if e.ShouldConsolidate(none) {
		t.Error("no need facets anywhere should not pass the gate")
	}
}

func TestGroupRelated(t *testing.T) {
	e := NewEngine()

	// Identical content ten minutes apart groups.
	grouped := []types.Memory{
		mem("a", "coffee with sam at the cafe", baseTime, 0.7),
		mem("b", "coffee with sam at the cafe", baseTime.Add(10*time.Minute), 0.7),
	}
	groups := e.GroupRelated(grouped)
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("got %d groups, want one group of two", len(groups))
	}

	// Identical content two hours apart does not.
	apart := []types.Memory{
		mem("a", "coffee with sam at the cafe", baseTime, 0.7),
		mem("b", "coffee with sam at the cafe", baseTime.Add(2*time.Hour), 0.7),
	}
	if groups := e.GroupRelated(apart); len(groups) != 0 {
		t.Errorf("memories 2h apart should not group, got %d groups", len(groups))
	}

	// Disjoint content in the same minute does not group either.
	disjoint := []types.Memory{
		mem("a", "alpha beta gamma", baseTime, 0.7),
		mem("b", "delta epsilon zeta", baseTime, 0.7),
	}
	if groups := e.GroupRelated(disjoint); len(groups) != 0 {
		t.Errorf("dissimilar memories should not group, got %d groups", len(groups))
	}
}

func TestGroupRelatedIsGreedyAndNonOverlapping(t *testing.T) {
	e := NewEngine()
	memories := []types.Memory{
		mem("a", "one two three four", baseTime, 0.7),
		mem("b", "one two three five", baseTime.Add(time.Minute), 0.7),
		mem("c", "one two three six", baseTime.Add(2*time.Minute), 0.7),
		mem("d", "totally different words here", baseTime.Add(3*time.Minute), 0.7),
	}

	groups := e.GroupRelated(memories)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if len(groups[0]) != 3 {
		t.Errorf("seed a should claim b and c, got group of %d", len(groups[0]))
	}

	// Every member appears at most once across all groups.
	seen := map[string]int{}
	for _, g := range groups {
		for _, m := range g {
			seen[m.ID]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("memory %s appears in %d groups", id, n)
		}
	}
}

func TestTokenJaccard(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"hello world", "hello world", 1.0},
		{"hello world", "HELLO WORLD", 1.0},
		{"a b c d", "a b x y", 1.0 / 3.0},
		{"a b", "c d", 0},
		{"", "", 0},
		{"something", "", 0},
	}
	for _, tc := range cases {
		if got := tokenJaccard(tc.a, tc.b); got != tc.want {
			t.Errorf("tokenJaccard(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestExtractThemes(t *testing.T) {
	// "coffee" in two members triggers the food theme; "research" in
	// one member alone does not trigger research.
	group := []types.Memory{
		mem("a", "had coffee this morning", baseTime, 0.7),
		mem("b", "more coffee and some tea", baseTime, 0.7),
		mem("c", "reading a research paper", baseTime, 0.7),
	}
	themes := extractThemes(group)
	if len(themes) != 1 || themes[0] != "food" {
		t.Errorf("themes = %v, want [food]", themes)
	}

	// Multiple keyword hits in one member still count that member once.
	single := []types.Memory{
		mem("a", "coffee tea food meal", baseTime, 0.7),
		mem("b", "nothing relevant", baseTime, 0.7),
	}
	if themes := extractThemes(single); len(themes) != 0 {
		t.Errorf("one member should never satisfy a theme, got %v", themes)
	}
}

func TestCreateExperienceHeuristics(t *testing.T) {
	e := NewEngine()
	group := []types.Memory{
		mem("a", "talk about the climate conversation", baseTime.Add(time.Minute), 0.8),
		mem("b", "another conversation talk on climate", baseTime, 0.6),
	}
	group[0].Facets[types.FacetValence] = 0.9
	group[1].Facets[types.FacetValence] = 0.5

	exp := e.CreateExperience(context.Background(), group)

	if exp.ID == "" || exp.ContextHash == "" {
		t.Fatal("experience must carry an id and context hash")
	}
	if got, want := exp.ConsolidatedFrom, []string{"a", "b"}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("consolidated_from = %v, want %v", got, want)
	}
	if !exp.CreatedAt.Equal(baseTime) {
		t.Errorf("created_at = %v, want earliest member timestamp %v", exp.CreatedAt, baseTime)
	}
	if math.Abs(exp.EmotionalTone-0.7) > 1e-9 {
		t.Errorf("emotional tone = %v, want 0.7", exp.EmotionalTone)
	}
	if math.Abs(exp.Importance-0.7) > 1e-9 {
		t.Errorf("importance = %v, want 0.7", exp.Importance)
	}
	if len(exp.Themes) == 0 {
		t.Error("conversation/sustainability keywords should yield themes")
	}
	if !strings.HasPrefix(exp.Title, "Experience: ") {
		t.Errorf("title = %q, want the themed fallback form", exp.Title)
	}
	if len(exp.Tags) != 2 || exp.Tags[0] != "consolidated" || exp.Tags[1] != "experience" {
		t.Errorf("tags = %v", exp.Tags)
	}
}

func TestCreateExperienceDefaults(t *testing.T) {
	e := NewEngine()
	group := []types.Memory{
		mem("a", "unrelated words entirely", baseTime, -1),
		mem("b", "entirely words unrelated", baseTime, -1),
	}
	exp := e.CreateExperience(context.Background(), group)

	if exp.EmotionalTone != 0.5 {
		t.Errorf("tone without valence facets = %v, want 0.5", exp.EmotionalTone)
	}
	if exp.Importance != 0.5 {
		t.Errorf("importance without need facets = %v, want 0.5", exp.Importance)
	}
	if exp.Title != "Consolidated Experience" {
		t.Errorf("title without themes = %q", exp.Title)
	}
}

func TestHeuristicSummary(t *testing.T) {
	long := strings.Repeat("x", 150)
	group := []types.Memory{
		mem("a", "short one", baseTime, 0.7),
		mem("b", long, baseTime, 0.7),
	}
	summary := heuristicSummary(group)
	want := "short one | " + long[:97] + "..."
	if summary != want {
		t.Errorf("summary = %q, want %q", summary, want)
	}

	// More than three members: three excerpts plus a remainder count.
	var big []types.Memory
	for i := 0; i < 5; i++ {
		big = append(big, mem(fmt.Sprintf("m%d", i), fmt.Sprintf("thought %d", i), baseTime, 0.7))
	}
	summary = heuristicSummary(big)
	if !strings.HasSuffix(summary, "... and 2 more thoughts") {
		t.Errorf("summary = %q, want a 2-more-thoughts suffix", summary)
	}
	if strings.Count(summary, " | ") != 3 {
		t.Errorf("summary = %q, want exactly three excerpts before the remainder", summary)
	}
}

func TestContextHashDeterministic(t *testing.T) {
	if contextHash([]string{"a", "b"}) != contextHash([]string{"a", "b"}) {
		t.Error("same ids in same order must hash identically")
	}
	if contextHash([]string{"a", "b"}) == contextHash([]string{"b", "a"}) {
		t.Error("hash is over ids in order; reordering should change it")
	}
}

func TestConsolidateGateAndForce(t *testing.T) {
	e := NewEngine()
	low := []types.Memory{
		mem("a", "same words here", baseTime, 0.1),
		mem("b", "same words here", baseTime.Add(time.Minute), 0.1),
		mem("c", "same words here", baseTime.Add(2*time.Minute), 0.1),
	}

	result, exps := e.Consolidate(context.Background(), low, types.ConsolidationRequest{})
	if result.ExperiencesCreated != 0 || len(exps) != 0 {
		t.Error("low need without force should be a zero-effect pass")
	}

	result, exps = e.Consolidate(context.Background(), low, types.ConsolidationRequest{Force: true})
	if result.ExperiencesCreated != 1 || len(exps) != 1 {
		t.Fatalf("forced pass should consolidate, got %+v", result)
	}
	if result.ThoughtsConsolidated != 3 {
		t.Errorf("thoughts consolidated = %d, want 3", result.ThoughtsConsolidated)
	}
}

func TestConsolidateEndToEnd(t *testing.T) {
	e := NewEngine()
	memories := []types.Memory{
		mem("a", "talk with dana about climate research", baseTime, 0.7),
		mem("b", "more talk with dana about climate research", baseTime.Add(5*time.Minute), 0.7),
		mem("c", "climate research talk with dana continues", baseTime.Add(10*time.Minute), 0.7),
		mem("d", "dana and the climate research talk wrapped up", baseTime.Add(15*time.Minute), 0.7),
	}

	result, exps := e.Consolidate(context.Background(), memories, types.ConsolidationRequest{})
	if len(exps) != 1 {
		t.Fatalf("got %d experiences, want 1", len(exps))
	}
	if len(exps[0].ConsolidatedFrom) != 4 {
		t.Errorf("consolidated_from = %v, want all four ids", exps[0].ConsolidatedFrom)
	}
	if result.ThoughtsConsolidated != 4 {
		t.Errorf("thoughts consolidated = %d, want 4", result.ThoughtsConsolidated)
	}
	if result.ConsolidationTime.IsZero() {
		t.Error("result must carry the pass timestamp")
	}
}

func TestConsolidateCapsExperiences(t *testing.T) {
	e := NewEngine()
	var memories []types.Memory
	// Three pairs with disjoint vocabularies, each internally similar.
	for i := 0; i < 3; i++ {
		content := fmt.Sprintf("topic%d word%d again%d", i, i, i)
		memories = append(memories,
			mem(fmt.Sprintf("p%d-a", i), content, baseTime, 0.9),
			mem(fmt.Sprintf("p%d-b", i), content, baseTime.Add(time.Minute), 0.9),
		)
	}

	result, exps := e.Consolidate(context.Background(), memories, types.ConsolidationRequest{MaxExperiences: 2})
	if len(exps) != 2 || result.ExperiencesCreated != 2 {
		t.Errorf("cap of 2 produced %d experiences", len(exps))
	}
}

func TestConsolidateDeduplicatesThemes(t *testing.T) {
	e := NewEngine()
	var memories []types.Memory
	// Two separate coffee groups with disjoint non-keyword vocabulary
	// so they do not merge, but both yield the food theme.
	for i := 0; i < 2; i++ {
		content := fmt.Sprintf("coffee alpha%d beta%d gamma%d", i, i, i)
		memories = append(memories,
			mem(fmt.Sprintf("g%d-a", i), content, baseTime, 0.9),
			mem(fmt.Sprintf("g%d-b", i), content, baseTime.Add(time.Minute), 0.9),
		)
	}

	result, _ := e.Consolidate(context.Background(), memories, types.ConsolidationRequest{})
	count := 0
	for _, th := range result.ThemesIdentified {
		if th == "food" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("food appears %d times in themes_identified, want 1", count)
	}
}

func TestConsolidateEmptyInput(t *testing.T) {
	e := NewEngine()
	result, exps := e.Consolidate(context.Background(), nil, types.ConsolidationRequest{Force: true})
	if result.ExperiencesCreated != 0 || len(exps) != 0 {
		t.Error("empty input should be a zero-effect success")
	}
}

func TestCreateExperienceWithLLM(t *testing.T) {
	gen := &fakeGenerator{
		themes:  "Robotics, Learning",
		title:   "  A Morning of Robot Tinkering  ",
		summary: "We spent the morning debugging the robot arm.",
	}
	e := NewEngineWithLLM(gen)
	group := []types.Memory{
		mem("a", "fixing the robot arm", baseTime, 0.7),
		mem("b", "robot arm fixed at last", baseTime.Add(time.Minute), 0.7),
	}

	exp := e.CreateExperience(context.Background(), group)
	if len(exp.Themes) != 2 || exp.Themes[0] != "robotics" || exp.Themes[1] != "learning" {
		t.Errorf("themes = %v, want lowercased trimmed llm themes", exp.Themes)
	}
	if exp.Title != "A Morning of Robot Tinkering" {
		t.Errorf("title = %q, want trimmed llm title", exp.Title)
	}
	if exp.Summary != "We spent the morning debugging the robot arm." {
		t.Errorf("summary = %q", exp.Summary)
	}
}

func TestCreateExperienceLLMFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("backend down")}
	e := NewEngineWithLLM(gen)
	group := []types.Memory{
		mem("a", "coffee and tea tasting", baseTime, 0.7),
		mem("b", "tasting more coffee and tea", baseTime.Add(time.Minute), 0.7),
	}

	exp := e.CreateExperience(context.Background(), group)
	if len(exp.Themes) != 1 || exp.Themes[0] != "food" {
		t.Errorf("themes = %v, want keyword fallback [food]", exp.Themes)
	}
	if exp.Title != "Experience: food" {
		t.Errorf("title = %q, want themed fallback", exp.Title)
	}
	if !strings.Contains(exp.Summary, " | ") {
		t.Errorf("summary = %q, want excerpt fallback", exp.Summary)
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3 attempts before fallbacks", gen.calls)
	}
}
