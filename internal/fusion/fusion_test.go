package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/pkg/types"
)

func candidate(id int64, distance float64, text string) types.Candidate {
	return types.Candidate{ChunkID: id, Distance: distance, HasDistance: true, Text: text}
}

func ids(results []types.ScoredResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func TestCosineFromDistance(t *testing.T) {
	tests := []struct {
		distance float64
		expected float64
	}{
		{0, 1},
		{math.Sqrt2, 0},
		{2, -1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, CosineFromDistance(tt.distance), 1e-9)
	}
}

func TestCosineFromDistance_Bounded(t *testing.T) {
	for d := 0.0; d <= 2.0; d += 0.01 {
		s := CosineFromDistance(d)
		assert.GreaterOrEqual(t, s, -1.0-1e-9)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestKeywordBonus(t *testing.T) {
	r := NewRanker(nil)

	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{"none", "tax appeal dismissed", 0},
		{"one", "گرفتاری illegal arrest habeas corpus", 0.1},
		{"two", "وارنٹ گرفتاری جاری", 0.2},
		{"repeat counts once", "وارنٹ وارنٹ وارنٹ", 0.1},
		{"substring", "حبسِ جسم کی درخواست", 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, r.KeywordBonus(tt.text), 1e-9)
		})
	}
}

func TestKeywordBonus_CustomWeight(t *testing.T) {
	r := NewRanker([]string{"bail"}, WithBonusWeight(0.5))

	assert.InDelta(t, 0.5, r.KeywordBonus("bail granted"), 1e-9)
	assert.Equal(t, 0.5, r.Weight())
}

func TestNewRanker_Keywords(t *testing.T) {
	assert.Equal(t, DefaultBonusKeywords, NewRanker(nil).Keywords())
	assert.Empty(t, NewRanker([]string{}).Keywords())
	assert.Equal(t, []string{"a"}, NewRanker([]string{" ", "a "}).Keywords())
}

func TestFuse_OrdersByScore(t *testing.T) {
	r := NewRanker([]string{"وارنٹ"})

	results := r.Fuse([]types.Candidate{
		candidate(1, 0.2, "plain"),
		candidate(2, 0.4, "وارنٹ"),
		candidate(3, 1.0, "plain"),
	}, 10)

	require.Len(t, results, 3)
	// 2: 0.92 + 0.1 beats 1: 0.98
	assert.Equal(t, []int64{2, 1, 3}, ids(results))
	assert.InDelta(t, 1.02, results[0].Score, 1e-9)
	assert.Equal(t, "وارنٹ", results[0].Text)
}

func TestFuse_TiesKeepVectorOrder(t *testing.T) {
	r := NewRanker([]string{})

	results := r.Fuse([]types.Candidate{
		candidate(9, 0.5, "a"),
		candidate(4, 0.5, "b"),
		candidate(7, 0.5, "c"),
	}, 3)

	assert.Equal(t, []int64{9, 4, 7}, ids(results))
}

func TestFuse_Truncates(t *testing.T) {
	r := NewRanker(nil)

	candidates := make([]types.Candidate, 10)
	for i := range candidates {
		candidates[i] = candidate(int64(i+1), float64(i)*0.1, "text")
	}

	assert.Len(t, r.Fuse(candidates, 4), 4)
	assert.Len(t, r.Fuse(candidates, 20), 10)
	assert.Empty(t, r.Fuse(candidates, 0))
	assert.NotNil(t, r.Fuse(nil, 4))
}

func TestFuse_SkipsCandidatesWithoutDistance(t *testing.T) {
	r := NewRanker(nil)

	results := r.Fuse([]types.Candidate{
		{ChunkID: 1, Text: "lexical only", LexicalRank: 1},
		candidate(2, 0.1, "vector"),
	}, 4)

	assert.Equal(t, []int64{2}, ids(results))
}

func TestFuse_BonusIsMonotonic(t *testing.T) {
	r := NewRanker(nil)

	base := candidate(1, 0.6, "plain passage")
	boosted := candidate(1, 0.6, "plain passage حراست")

	assert.Greater(t, r.Score(boosted), r.Score(base))
}

func TestFuse_ScenarioC(t *testing.T) {
	r := NewRanker(nil)

	// Identical vectors, keyword bonus decides the order
	candidates := make([]types.Candidate, 0, 10)
	for id := int64(1); id <= 10; id++ {
		text := "عدالت"
		if id == 3 || id == 7 {
			text += " وارنٹ"
		}
		candidates = append(candidates, candidate(id, 0.3, text))
	}

	results := r.Fuse(candidates, 4)
	assert.Equal(t, []int64{3, 7, 1, 2}, ids(results))
}

func BenchmarkFuse(b *testing.B) {
	r := NewRanker(nil)
	candidates := make([]types.Candidate, 500)
	for i := range candidates {
		text := "ہائی کورٹ میں آئینی درخواست"
		if i%7 == 0 {
			text += " وارنٹ گرفتاری"
		}
		candidates[i] = candidate(int64(i+1), float64(i%200)/100, text)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		input := make([]types.Candidate, len(candidates))
		copy(input, candidates)
		_ = r.Fuse(input, 4)
	}
}
