package memory

import (
	"math"
	"sort"

	"github.com/scrypster/reverie/pkg/types"
)

// Quotas caps how many memories of each modality the selector may
// return, keeping one loud channel from crowding out the others.
type Quotas struct {
	Vision  int
	Speech  int
	Text    int
	Concept int
}

// DefaultQuotas is the canonical diversity policy: vision, speech and
// text share one size, concept memories get a smaller slice.
var DefaultQuotas = Quotas{Vision: 8, Speech: 8, Text: 8, Concept: 4}

func (q Quotas) limit(m types.Modality) int {
	switch m {
	case types.ModalityVision:
		return q.Vision
	case types.ModalitySpeech:
		return q.Speech
	case types.ModalityText:
		return q.Text
	case types.ModalityConcept:
		return q.Concept
	}
	return 0
}

// CosineSimilarity returns the cosine similarity of two vectors.
// Mismatched lengths or a zero-norm input yield exactly 0.0, never NaN
// or an error, so the selector can rank heterogeneous memory sets.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SelectRelevant ranks memories by similarity to the focus embedding
// (or by recency when focus is nil), enforces the per-modality quotas
// in fixed priority order, and truncates to maxCount.
//
// Pure: the input slice is not reordered and the result holds copies of
// its elements. Tie order among equal scores is unspecified.
func SelectRelevant(memories []types.Memory, focus []float32, maxCount int, quotas Quotas) []types.Memory {
	ranked := make([]types.Memory, len(memories))
	copy(ranked, memories)

	if len(focus) > 0 {
		sort.SliceStable(ranked, func(i, j int) bool {
			return CosineSimilarity(ranked[i].Embedding, focus) > CosineSimilarity(ranked[j].Embedding, focus)
		})
	} else {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Timestamp.After(ranked[j].Timestamp)
		})
	}

	byModality := make(map[types.Modality][]types.Memory)
	for _, m := range ranked {
		byModality[m.Modality] = append(byModality[m.Modality], m)
	}

	result := make([]types.Memory, 0, maxCount)
	for _, modality := range types.AllModalities {
		bucket := byModality[modality]
		limit := quotas.limit(modality)
		if len(bucket) > limit {
			bucket = bucket[:limit]
		}
		result = append(result, bucket...)
	}

	if maxCount >= 0 && len(result) > maxCount {
		result = result[:maxCount]
	}
	return result
}

// AverageEmbedding returns the component-wise mean of the given
// vectors. Vectors longer than the first are truncated to its
// dimensionality; shorter ones contribute only the components they
// have. Returns nil for empty input.
func AverageEmbedding(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}

	dims := len(embeddings[0])
	if dims == 0 {
		return nil
	}

	result := make([]float32, dims)
	for _, embedding := range embeddings {
		for i, v := range embedding {
			if i < dims {
				result[i] += v
			}
		}
	}

	count := float32(len(embeddings))
	for i := range result {
		result[i] /= count
	}
	return result
}
