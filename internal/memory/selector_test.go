package memory

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/scrypster/reverie/pkg/types"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got != 1.0 {
		t.Errorf("similarity([1,0],[1,0]) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityMismatchedLength(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0.0 {
		t.Errorf("similarity of mismatched lengths = %v, want exactly 0.0", got)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 2}); got != 0.0 {
		t.Errorf("similarity with zero vector = %v, want exactly 0.0", got)
	}
	if got := CosineSimilarity(nil, nil); got != 0.0 {
		t.Errorf("similarity of empty vectors = %v, want exactly 0.0", got)
	}
}

func TestCosineSimilaritySymmetricAndBounded(t *testing.T) {
	vecs := [][]float32{
		{1, 2, 3},
		{-1, 0.5, 2},
		{0.1, 0.1, 0.1},
		{5, -5, 5},
	}
	for i, a := range vecs {
		for j, b := range vecs {
			ab := CosineSimilarity(a, b)
			ba := CosineSimilarity(b, a)
			if math.Abs(ab-ba) > 1e-12 {
				t.Errorf("similarity not symmetric for %d,%d: %v vs %v", i, j, ab, ba)
			}
			if ab < -1.0-1e-9 || ab > 1.0+1e-9 {
				t.Errorf("similarity out of [-1,1] for %d,%d: %v", i, j, ab)
			}
		}
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(got-(-1.0)) > 1e-9 {
		t.Errorf("similarity of opposite vectors = %v, want -1.0", got)
	}
}

func makeMemory(id string, mod types.Modality, ts time.Time, embedding []float32) types.Memory {
	return types.Memory{
		ID:        id,
		Timestamp: ts,
		Modality:  mod,
		Embedding: embedding,
		Content:   "content " + id,
	}
}

func TestSelectRelevantMaxCount(t *testing.T) {
	base := time.Now()
	var memories []types.Memory
	for i := 0; i < 30; i++ {
		memories = append(memories, makeMemory(fmt.Sprintf("m%d", i), types.ModalityText, base.Add(time.Duration(i)*time.Minute), nil))
	}

	got := SelectRelevant(memories, nil, 5, DefaultQuotas)
	if len(got) > 5 {
		t.Errorf("selected %d memories, want <= 5", len(got))
	}
}

func TestSelectRelevantModalityCaps(t *testing.T) {
	base := time.Now()
	var memories []types.Memory
	for i := 0; i < 20; i++ {
		memories = append(memories, makeMemory(fmt.Sprintf("v%d", i), types.ModalityVision, base, nil))
	}
	for i := 0; i < 20; i++ {
		memories = append(memories, makeMemory(fmt.Sprintf("c%d", i), types.ModalityConcept, base, nil))
	}

	got := SelectRelevant(memories, nil, 100, DefaultQuotas)

	counts := map[types.Modality]int{}
	for _, m := range got {
		counts[m.Modality]++
	}
	if counts[types.ModalityVision] > DefaultQuotas.Vision {
		t.Errorf("vision count %d exceeds cap %d", counts[types.ModalityVision], DefaultQuotas.Vision)
	}
	if counts[types.ModalityConcept] > DefaultQuotas.Concept {
		t.Errorf("concept count %d exceeds cap %d", counts[types.ModalityConcept], DefaultQuotas.Concept)
	}
}

// TestSelectRelevantRecencyOrder verifies that without a focus
// embedding items are in non-increasing timestamp order within each
// modality bucket.
func TestSelectRelevantRecencyOrder(t *testing.T) {
	base := time.Now()
	var memories []types.Memory
	for i := 0; i < 6; i++ {
		memories = append(memories, makeMemory(fmt.Sprintf("t%d", i), types.ModalityText, base.Add(time.Duration(i)*time.Minute), nil))
	}
	for i := 0; i < 6; i++ {
		memories = append(memories, makeMemory(fmt.Sprintf("s%d", i), types.ModalitySpeech, base.Add(time.Duration(i)*time.Second), nil))
	}

	got := SelectRelevant(memories, nil, 100, DefaultQuotas)

	last := map[types.Modality]time.Time{}
	for _, m := range got {
		if prev, ok := last[m.Modality]; ok && m.Timestamp.After(prev) {
			t.Errorf("modality %s not in non-increasing timestamp order", m.Modality)
		}
		last[m.Modality] = m.Timestamp
	}
}

func TestSelectRelevantFocusRanking(t *testing.T) {
	base := time.Now()
	focus := []float32{1, 0}
	memories := []types.Memory{
		makeMemory("far", types.ModalityText, base, []float32{0, 1}),
		makeMemory("near", types.ModalityText, base.Add(-time.Hour), []float32{1, 0.01}),
		makeMemory("mid", types.ModalityText, base, []float32{1, 1}),
	}

	got := SelectRelevant(memories, focus, 3, DefaultQuotas)
	if len(got) != 3 {
		t.Fatalf("selected %d memories, want 3", len(got))
	}
	// Similarity ranking must beat recency: "near" is the oldest but
	// the closest to the focus.
	if got[0].ID != "near" {
		t.Errorf("first selected = %s, want near", got[0].ID)
	}
	if got[2].ID != "far" {
		t.Errorf("last selected = %s, want far", got[2].ID)
	}
}

// TestSelectRelevantPriorityOrder verifies the fixed modality priority:
// vision and speech survive truncation before concept.
func TestSelectRelevantPriorityOrder(t *testing.T) {
	base := time.Now()
	memories := []types.Memory{
		makeMemory("c1", types.ModalityConcept, base, nil),
		makeMemory("v1", types.ModalityVision, base, nil),
		makeMemory("s1", types.ModalitySpeech, base, nil),
	}

	got := SelectRelevant(memories, nil, 2, DefaultQuotas)
	if len(got) != 2 {
		t.Fatalf("selected %d memories, want 2", len(got))
	}
	if got[0].ID != "v1" || got[1].ID != "s1" {
		t.Errorf("selected %s, %s; want v1, s1 (priority order)", got[0].ID, got[1].ID)
	}
}

func TestSelectRelevantDeterministic(t *testing.T) {
	base := time.Now()
	var memories []types.Memory
	for i := 0; i < 10; i++ {
		memories = append(memories, makeMemory(fmt.Sprintf("m%d", i), types.ModalityText, base.Add(time.Duration(i)*time.Minute), []float32{float32(i), 1}))
	}

	a := SelectRelevant(memories, []float32{1, 1}, 5, DefaultQuotas)
	b := SelectRelevant(memories, []float32{1, 1}, 5, DefaultQuotas)
	if len(a) != len(b) {
		t.Fatalf("selection lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("selection not deterministic at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestSelectRelevantEmptyInput(t *testing.T) {
	if got := SelectRelevant(nil, nil, 5, DefaultQuotas); len(got) != 0 {
		t.Errorf("selection over empty input = %v, want empty", got)
	}
}

func TestAverageEmbedding(t *testing.T) {
	got := AverageEmbedding([][]float32{{1, 2}, {3, 4}})
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("AverageEmbedding = %v, want [2 3]", got)
	}

	if got := AverageEmbedding(nil); got != nil {
		t.Errorf("AverageEmbedding(nil) = %v, want nil", got)
	}

	// Longer vectors are truncated to the first vector's dimensionality.
	got = AverageEmbedding([][]float32{{2, 2}, {4, 4, 100}})
	if len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Errorf("AverageEmbedding with ragged input = %v, want [3 3]", got)
	}
}
