package service

import (
	"math"
	"sort"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
)

// RelevanceScorer ranks signals against a query context by embedding
// similarity blended with decayed confidence. Stateless; downstream
// assemblers use it to pick the top-N signals for a situation.
type RelevanceScorer struct {
	// ConfidenceBlend sets how much decayed confidence contributes to the
	// final score relative to similarity.
	ConfidenceBlend float64
}

const DefaultConfidenceBlend = 0.35

func NewRelevanceScorer() *RelevanceScorer {
	return &RelevanceScorer{ConfidenceBlend: DefaultConfidenceBlend}
}

type RelevanceBreakdown struct {
	Similarity        float64 `json:"similarity"`
	DecayedConfidence float64 `json:"decayed_confidence"`
	FinalScore        float64 `json:"final_score"`
}

type ScoredSignal struct {
	Event     domain.SignalEvent  `json:"event"`
	Score     float64             `json:"score"`
	Breakdown *RelevanceBreakdown `json:"breakdown,omitempty"`
}

// Score computes one event's relevance to the query embedding. Events
// without an embedding fall back to decayed confidence alone when the query
// is empty, and score zero similarity otherwise.
func (s *RelevanceScorer) Score(ev domain.SignalEvent, queryEmbedding []float32, asOf time.Time) ScoredSignal {
	confidence := DecayedConfidence(&ev, asOf)

	var similarity float64
	if len(queryEmbedding) == 0 {
		similarity = 1.0
	} else {
		similarity = CosineSimilarity(ev.Embedding, queryEmbedding)
		if similarity < 0 {
			similarity = 0
		}
	}

	final := similarity*(1-s.ConfidenceBlend) + confidence*s.ConfidenceBlend

	return ScoredSignal{
		Event: ev,
		Score: final,
		Breakdown: &RelevanceBreakdown{
			Similarity:        similarity,
			DecayedConfidence: confidence,
			FinalScore:        final,
		},
	}
}

// Rank scores every event and returns them in descending relevance order,
// truncated to topN when topN > 0.
func (s *RelevanceScorer) Rank(events []domain.SignalEvent, queryEmbedding []float32, asOf time.Time, topN int) []ScoredSignal {
	scored := make([]ScoredSignal, 0, len(events))
	for _, ev := range events {
		scored = append(scored, s.Score(ev, queryEmbedding, asOf))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

// CosineSimilarity returns the cosine of the angle between two vectors, or
// 0 when either is empty or they differ in dimension.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
