package readiness

import (
	"math"
	"strings"
	"time"

	"github.com/ashirimi1019/market-ready/internal/db"
)

// LegacyResult is the completion-based readiness score that predates the
// MRI formula. Still served for dashboards that chart it historically.
type LegacyResult struct {
	Score       float64  `json:"score"` // 0..1
	Capped      bool     `json:"capped"`
	CapReason   string   `json:"cap_reason,omitempty"`
	Completed   int      `json:"completed"`
	Total       int      `json:"total"`
	MissingNon  []string `json:"missing_non_negotiables,omitempty"`
	NextActions []string `json:"next_actions,omitempty"`
}

const (
	legacyCap           = 0.75
	legacyRecencyWindow = 180 * 24 * time.Hour
	legacyRecencyMax    = 0.1
	legacyDeployedBonus = 0.1
)

// LegacyScore computes the pre-MRI completion score: 0.6 weight on
// non-negotiable completion, 0.3 on the rest, a recency bonus that decays
// linearly over 180 days, and a flat bonus for any deployed project proof.
// Unlike the MRI cap, which fires on any missing non-negotiable, the
// legacy cap only counts items flagged critical, matching how the old
// formula behaved.
func LegacyScore(items []db.ChecklistItem, proofs []db.Proof, now time.Time) LegacyResult {
	byItem := proofsByItem(proofs)

	var nnDone, nnTotal, restDone, restTotal int
	completed := 0
	for _, item := range items {
		done := hasAcceptedProof(byItem[item.ID])
		if done {
			completed++
		}
		if item.Tier == db.TierNonNegotiable {
			nnTotal++
			if done {
				nnDone++
			}
		} else {
			restTotal++
			if done {
				restDone++
			}
		}
	}

	score := 0.0
	if nnTotal > 0 {
		score += 0.6 * float64(nnDone) / float64(nnTotal)
	}
	if restTotal > 0 {
		score += 0.3 * float64(restDone) / float64(restTotal)
	}
	score += recencyBonus(proofs, now)
	if hasDeployedProof(proofs) {
		score += legacyDeployedBonus
	}
	score = math.Min(score, 1.0)

	missing := missingCriticalNonNegotiables(items, byItem)
	result := LegacyResult{
		Score:       score,
		Completed:   completed,
		Total:       len(items),
		MissingNon:  missing,
		NextActions: nextActions(topGaps(items, byItem, 5)),
	}
	if len(missing) > 0 {
		result.Capped = true
		result.CapReason = "Missing critical non-negotiable(s): " + strings.Join(missing, ", ")
		if score > legacyCap {
			result.Score = legacyCap
		}
	}
	return result
}

// recencyBonus rewards recent verified activity, fading to zero over the
// window.
func recencyBonus(proofs []db.Proof, now time.Time) float64 {
	var newest time.Time
	for _, p := range proofs {
		if p.Status != db.ProofVerified {
			continue
		}
		if p.SubmittedAt.After(newest) {
			newest = p.SubmittedAt
		}
	}
	if newest.IsZero() {
		return 0
	}
	age := now.Sub(newest)
	if age < 0 {
		age = 0
	}
	if age >= legacyRecencyWindow {
		return 0
	}
	return legacyRecencyMax * (1 - age.Hours()/legacyRecencyWindow.Hours())
}

func hasDeployedProof(proofs []db.Proof) bool {
	for _, p := range proofs {
		if p.Status != db.ProofVerified {
			continue
		}
		if strings.Contains(strings.ToLower(p.ProofType), "deploy") {
			return true
		}
		if deployed, ok := p.Metadata["deployed_url"].(string); ok && deployed != "" {
			return true
		}
	}
	return false
}
