package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyBoundaries(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 1.0, Recency(now, now, 30), "zero age scores exactly 1")

	oneHalfLife := now.Add(-30 * 24 * time.Hour)
	assert.InDelta(t, 0.5, Recency(oneHalfLife, now, 30), 1e-9, "one half-life halves the score")

	twoHalfLives := now.Add(-60 * 24 * time.Hour)
	assert.InDelta(t, 0.25, Recency(twoHalfLives, now, 30), 1e-9)

	future := now.Add(time.Hour)
	assert.Equal(t, 1.0, Recency(future, now, 30), "clock skew clamps to 1")
}

func TestRecencyDegenerateHalfLife(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 1.0, Recency(now, now, 0))
	assert.Equal(t, 0.0, Recency(now.Add(-time.Second), now, 0))
	assert.Equal(t, 0.0, Recency(now.Add(-time.Second), now, -5))
}

func TestRecencyMonotonicInAge(t *testing.T) {
	now := time.Now()
	prev := math.Inf(1)
	for _, days := range []int{0, 1, 7, 30, 90, 365} {
		score := Recency(now.Add(-time.Duration(days)*24*time.Hour), now, 30)
		assert.LessOrEqual(t, score, prev, "score must not increase with age (%d days)", days)
		prev = score
	}
}

func TestCombinedScoreClamped(t *testing.T) {
	w := DefaultScoreWeights
	assert.Equal(t, 1.0, CombinedScore(1, 1, 1, ScoreWeights{Recency: 1, Relevance: 1, Importance: 1}))
	assert.Equal(t, 0.0, CombinedScore(0, 0, 0, w))

	got := CombinedScore(0.5, 0.8, 0.4, w)
	assert.InDelta(t, 0.3*0.5+0.5*0.8+0.2*0.4, got, 1e-9)
}

func TestCombinedScoreMonotonicPerFactor(t *testing.T) {
	w := DefaultScoreWeights
	base := CombinedScore(0.4, 0.4, 0.4, w)
	assert.Greater(t, CombinedScore(0.6, 0.4, 0.4, w), base)
	assert.Greater(t, CombinedScore(0.4, 0.6, 0.4, w), base)
	assert.Greater(t, CombinedScore(0.4, 0.4, 0.6, w), base)
}
