package readiness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashirimi1019/market-ready/internal/db"
)

func TestLegacyScoreFullCompletion(t *testing.T) {
	items, proofs := fullChecklist()
	for i := range proofs {
		proofs[i].SubmittedAt = testNow.Add(-24 * time.Hour)
	}

	result := LegacyScore(items, proofs, testNow)

	assert.False(t, result.Capped)
	assert.Equal(t, 4, result.Completed)
	assert.Equal(t, 4, result.Total)
	// 0.6 + 0.3 + near-full recency bonus + deployed bonus, clamped at 1.
	assert.InDelta(t, 1.0, result.Score, 1e-9)
}

func TestLegacyScoreCapsAtThreeQuarters(t *testing.T) {
	items, proofs := fullChecklist()
	// Drop one non-negotiable proof but keep everything else fresh.
	proofs = proofs[1:]
	for i := range proofs {
		proofs[i].SubmittedAt = testNow.Add(-24 * time.Hour)
	}

	result := LegacyScore(items, proofs, testNow)

	// 0.6*0.5 + 0.3 + recency + deployed exceeds 0.75, so the cap engages.
	assert.True(t, result.Capped)
	assert.Equal(t, 0.75, result.Score)
	assert.Contains(t, result.CapReason, "typescript")
}

func TestLegacyRecencyBonusDecays(t *testing.T) {
	items, proofs := fullChecklist()
	// Non-deployment evidence only, to isolate recency.
	items = items[:2]
	proofs = proofs[:2]

	fresh := proofs
	for i := range fresh {
		fresh[i].SubmittedAt = testNow
	}
	withFresh := LegacyScore(items, fresh, testNow)

	stale := make([]db.Proof, len(proofs))
	copy(stale, proofs)
	for i := range stale {
		stale[i].SubmittedAt = testNow.Add(-200 * 24 * time.Hour)
	}
	withStale := LegacyScore(items, stale, testNow)

	assert.InDelta(t, 0.7, withFresh.Score, 1e-9)  // 0.6 + 0.1 recency
	assert.InDelta(t, 0.6, withStale.Score, 1e-9)  // bonus fully decayed
}

func TestLegacyCapFlagSetBelowThreshold(t *testing.T) {
	// A single unproven critical non-negotiable keeps the score well under
	// the cap, but the result still reports capped.
	items := []db.ChecklistItem{item("typescript", db.TierNonNegotiable, 1.0)}
	result := LegacyScore(items, nil, testNow)

	assert.True(t, result.Capped)
	assert.Contains(t, result.CapReason, "typescript")
	assert.Less(t, result.Score, legacyCap)
}

func TestLegacyCapIgnoresNonCriticalNonNegotiables(t *testing.T) {
	items, proofs := fullChecklist()
	items[0].IsCritical = false
	// Drop the proof for the non-critical non-negotiable; everything else
	// stays fresh so the score would clear the cap.
	proofs = proofs[1:]
	for i := range proofs {
		proofs[i].SubmittedAt = testNow.Add(-24 * time.Hour)
	}

	result := LegacyScore(items, proofs, testNow)

	assert.False(t, result.Capped)
	assert.Empty(t, result.MissingNon)
	assert.Greater(t, result.Score, legacyCap)
}

func TestLegacyNextActionsListGaps(t *testing.T) {
	items, proofs := fullChecklist()
	proofs = proofs[1:]

	result := LegacyScore(items, proofs, testNow)

	assert.Len(t, result.NextActions, 1)
	assert.Contains(t, result.NextActions[0], "typescript")
}

func TestLegacyScoreEmptyChecklist(t *testing.T) {
	result := LegacyScore(nil, nil, testNow)
	assert.Zero(t, result.Score)
	assert.Zero(t, result.Total)
	assert.False(t, result.Capped)
}
