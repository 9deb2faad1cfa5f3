package fusion

import (
	"sort"
	"strings"

	"github.com/dshills/hybridrag/pkg/types"
)

// DefaultBonusWeight is the score added per bonus keyword found in a passage
const DefaultBonusWeight = 0.1

// DefaultBonusKeywords are the domain terms that boost a passage when present
var DefaultBonusKeywords = []string{
	"حبسِ جسم",
	"ہیبیس کارپس",
	"گرفتاری",
	"حراست",
	"وارنٹ",
}

// Ranker combines vector similarity with a keyword bonus
type Ranker struct {
	keywords []string
	weight   float64
}

// Option configures a Ranker
type Option func(*Ranker)

// WithBonusWeight overrides DefaultBonusWeight
func WithBonusWeight(weight float64) Option {
	return func(r *Ranker) {
		r.weight = weight
	}
}

// NewRanker creates a Ranker. A nil keyword list falls back to
// DefaultBonusKeywords.
func NewRanker(keywords []string, opts ...Option) *Ranker {
	if keywords == nil {
		keywords = DefaultBonusKeywords
	}

	r := &Ranker{weight: DefaultBonusWeight}
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			r.keywords = append(r.keywords, kw)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CosineFromDistance converts an L2 distance between unit vectors into
// cosine similarity: 0 maps to 1 and 2 maps to -1.
func CosineFromDistance(distance float64) float64 {
	return 1 - distance*distance/2
}

// KeywordBonus counts how many bonus keywords occur in text as substrings and
// scales the count by the ranker weight. Each keyword counts at most once.
func (r *Ranker) KeywordBonus(text string) float64 {
	matches := 0
	for _, kw := range r.keywords {
		if strings.Contains(text, kw) {
			matches++
		}
	}
	return r.weight * float64(matches)
}

// Score returns the fused score of a single candidate
func (r *Ranker) Score(c types.Candidate) float64 {
	return CosineFromDistance(c.Distance) + r.KeywordBonus(c.Text)
}

// Fuse scores candidates, orders them by descending score and keeps the
// first k. Candidates must arrive in vector-search order; equal scores keep
// that order. Candidates without a distance are skipped.
func (r *Ranker) Fuse(candidates []types.Candidate, k int) []types.ScoredResult {
	if k <= 0 {
		return []types.ScoredResult{}
	}

	results := make([]types.ScoredResult, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasDistance {
			continue
		}
		results = append(results, types.ScoredResult{
			ChunkID: c.ChunkID,
			Text:    c.Text,
			Score:   r.Score(c),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Keywords returns a copy of the bonus keyword list
func (r *Ranker) Keywords() []string {
	out := make([]string, len(r.keywords))
	copy(out, r.keywords)
	return out
}

// Weight returns the per-keyword bonus
func (r *Ranker) Weight() float64 {
	return r.weight
}
