// Package engine implements the memory engine: scoring, hybrid
// retrieval, context assembly, extraction, and consolidation on top of a
// storage.KnowledgeStore and the llm providers.
package engine

import (
	"math"
	"time"
)

// ScoreWeights are the relative contributions of the three scoring
// factors. They should sum to roughly 1; the result is clamped to [0,1]
// either way.
type ScoreWeights struct {
	Recency    float64
	Relevance  float64
	Importance float64
}

// DefaultScoreWeights mirror the configuration defaults.
var DefaultScoreWeights = ScoreWeights{Recency: 0.3, Relevance: 0.5, Importance: 0.2}

// Recency scores how fresh a memory is with exponential decay:
// 2^(-ageHours/halfLifeHours). Exactly 1.0 at zero age, 0.5 after one
// half-life. A non-positive half-life degenerates to 1.0 at zero age and
// 0.0 otherwise.
func Recency(lastAccessed, now time.Time, halfLifeDays float64) float64 {
	ageHours := now.Sub(lastAccessed).Hours()
	if ageHours <= 0 {
		return 1.0
	}
	halfLifeHours := halfLifeDays * 24
	if halfLifeHours <= 0 {
		return 0.0
	}
	return clamp01(math.Exp2(-ageHours / halfLifeHours))
}

// CombinedScore fuses recency, relevance, and importance into a single
// relevance score, clamped to [0,1].
func CombinedScore(recency, relevance, importance float64, w ScoreWeights) float64 {
	return clamp01(w.Recency*recency + w.Relevance*relevance + w.Importance*importance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
