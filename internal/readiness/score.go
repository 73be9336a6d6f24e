// Package readiness computes the Market Readiness Index from checklist
// items, proofs, and market signals. Scoring is pure: identical inputs and
// the same reference time always produce identical results.
package readiness

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/config"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/skills"
)

// ScoreInput carries everything the scorer needs. Now is supplied by the
// caller so recency decay is reproducible.
type ScoreInput struct {
	Items   []db.ChecklistItem
	Proofs  []db.Proof
	Signals []db.MarketSignal
	Config  config.ScoringConfig
	Now     time.Time
}

// Components are the weighted sub-scores, each 0..1.
type Components struct {
	SkillMatch      float64 `json:"skill_match"`
	MarketDemand    float64 `json:"market_demand"`
	EvidenceDensity float64 `json:"evidence_density"`
}

// Gap is an unproven checklist item surfaced to the user.
type Gap struct {
	ItemID uuid.UUID `json:"item_id"`
	Label  string    `json:"label"`
	Tier   string    `json:"tier"`
}

// Result is the full MRI outcome.
type Result struct {
	Score                 float64        `json:"score"` // 0..100
	Band                  string         `json:"band"`
	FormulaVersion        string         `json:"formula_version"`
	Components            Components     `json:"components"`
	Capped                bool           `json:"capped"`
	CapReason             string         `json:"cap_reason,omitempty"`
	MissingNonNegotiables []string       `json:"missing_non_negotiables,omitempty"`
	ProficiencyBreakdown  map[string]int `json:"proficiency_breakdown"`
	TopGaps               []Gap          `json:"top_gaps,omitempty"`
	NextActions           []string       `json:"next_actions,omitempty"`
	ComputedAt            time.Time      `json:"computed_at"`
}

// Score computes the MRI for one user snapshot.
func Score(in ScoreInput) Result {
	cfg := in.Config
	byItem := proofsByItem(in.Proofs)

	skillMatch := skillMatchComponent(in.Items, byItem, cfg)
	marketDemand := marketDemandComponent(in.Items, byItem, in.Signals, cfg, in.Now)
	evidence := evidenceComponent(in.Proofs, cfg)

	raw := cfg.SkillMatchWeight*skillMatch +
		cfg.MarketDemandWeight*marketDemand +
		cfg.EvidenceDensityWeight*evidence
	score := clamp01(raw) * 100

	// Any unproven non-negotiable flags the result as capped, regardless
	// of whether the raw score actually reached the ceiling. The clamp
	// itself only fires above the ceiling.
	missing := missingNonNegotiables(in.Items, byItem)
	capped := false
	capReason := ""
	if len(missing) > 0 {
		capped = true
		capReason = "Missing non-negotiable(s): " + strings.Join(missing, ", ")
		if score > cfg.CapCeiling {
			score = cfg.CapCeiling
		}
	}

	gaps := topGaps(in.Items, byItem, 5)
	return Result{
		Score:                 round1(score),
		Band:                  cfg.BandLabel(round1(score)),
		FormulaVersion:        cfg.FormulaVersion,
		Components:            Components{SkillMatch: skillMatch, MarketDemand: marketDemand, EvidenceDensity: evidence},
		Capped:                capped,
		CapReason:             capReason,
		MissingNonNegotiables: missing,
		ProficiencyBreakdown:  proficiencyBreakdown(in.Proofs),
		TopGaps:               gaps,
		NextActions:           nextActions(gaps),
		ComputedAt:            in.Now,
	}
}

func proofsByItem(proofs []db.Proof) map[uuid.UUID][]db.Proof {
	out := make(map[uuid.UUID][]db.Proof, len(proofs))
	for _, p := range proofs {
		out[p.ItemID] = append(out[p.ItemID], p)
	}
	return out
}

// itemCredit returns the best credit among an item's proofs. Verified
// proofs earn the proficiency multiplier; needs_more_evidence earns half
// of it. AI-verified certificate proofs on non-negotiable items get the
// configured bonus, capped at full credit.
func itemCredit(item db.ChecklistItem, proofs []db.Proof, cfg config.ScoringConfig) float64 {
	best := 0.0
	for _, p := range proofs {
		var credit float64
		switch p.Status {
		case db.ProofVerified:
			credit = cfg.ProficiencyCredit[p.ProficiencyLevel]
		case db.ProofNeedsMoreEvidence:
			credit = cfg.ProficiencyCredit[p.ProficiencyLevel] * 0.5
		default:
			continue
		}
		if item.Tier == db.TierNonNegotiable && isAIVerifiedCert(p) {
			credit = math.Min(credit*cfg.AICertBonus, 1.0)
		}
		if credit > best {
			best = credit
		}
	}
	return best
}

// isAIVerifiedCert reports whether a proof is a certificate that went
// through AI adjudication rather than self-attestation.
func isAIVerifiedCert(p db.Proof) bool {
	return p.Status == db.ProofVerified &&
		strings.Contains(strings.ToLower(p.ProofType), "cert") &&
		p.URL != db.SelfAttestedURL &&
		p.Verdict != nil
}

// skillMatchComponent weighs non-negotiable coverage at 0.70 and the rest
// of the checklist at 0.30, both weight-scaled.
func skillMatchComponent(items []db.ChecklistItem, byItem map[uuid.UUID][]db.Proof, cfg config.ScoringConfig) float64 {
	var nnEarned, nnTotal, restEarned, restTotal float64
	for _, item := range items {
		credit := itemCredit(item, byItem[item.ID], cfg)
		if item.Tier == db.TierNonNegotiable {
			nnEarned += credit * item.Weight
			nnTotal += item.Weight
		} else {
			restEarned += credit * item.Weight
			restTotal += item.Weight
		}
	}

	switch {
	case nnTotal == 0 && restTotal == 0:
		return 0
	case nnTotal == 0:
		return restEarned / restTotal
	case restTotal == 0:
		return nnEarned / nnTotal
	default:
		return 0.70*(nnEarned/nnTotal) + 0.30*(restEarned/restTotal)
	}
}

// marketDemandComponent measures demand-weighted coverage: each signal
// contributes its frequency, decayed by age, and counts as covered when
// the matching checklist item has any accepted proof. No signals yields a
// neutral 0.5 so new pathways do not zero out the index.
func marketDemandComponent(items []db.ChecklistItem, byItem map[uuid.UUID][]db.Proof, signals []db.MarketSignal, cfg config.ScoringConfig, now time.Time) float64 {
	if len(signals) == 0 {
		return 0.5
	}

	coveredSkills := make(map[string]bool)
	for _, item := range items {
		if itemCredit(item, byItem[item.ID], cfg) > 0 {
			coveredSkills[skills.Normalize(item.Label)] = true
		}
	}

	var weightedCovered, weightedTotal float64
	for _, s := range signals {
		if skills.Normalize(s.Skill) == "" {
			continue // role-family signals have no item to cover
		}
		age := now.Sub(s.ObservedAt)
		if age < 0 {
			age = 0
		}
		decay := math.Pow(0.5, age.Hours()/cfg.SignalHalfLife.Hours())
		w := s.Frequency * decay
		weightedTotal += w
		if coveredSkills[skills.Normalize(s.Skill)] {
			weightedCovered += w
		}
	}
	if weightedTotal == 0 {
		return 0.5
	}
	return weightedCovered / weightedTotal
}

// evidenceComponent blends proof-type diversity, average proficiency,
// an AI-certificate bonus, and a repository-verification bonus. This is
// deliberately not the verified/total ratio: two users with the same
// acceptance rate score differently when one's evidence is more diverse,
// higher-proficiency, or machine-verified.
func evidenceComponent(proofs []db.Proof, cfg config.ScoringConfig) float64 {
	var accepted []db.Proof
	for _, p := range proofs {
		if p.Status == db.ProofVerified || p.Status == db.ProofNeedsMoreEvidence {
			accepted = append(accepted, p)
		}
	}
	if len(accepted) == 0 {
		return 0
	}

	types := make(map[string]bool)
	var profSum float64
	var profCount float64
	certCount := 0
	repoVerified := false
	for _, p := range accepted {
		weight := 1.0
		if p.Status == db.ProofNeedsMoreEvidence {
			weight = 0.5
		}
		types[strings.ToLower(p.ProofType)] = true
		profSum += cfg.ProficiencyCredit[p.ProficiencyLevel] * weight
		profCount += weight
		if isAIVerifiedCert(p) {
			certCount++
		}
		if verified, ok := p.Metadata["repo_verified"].(bool); ok && verified && p.Status == db.ProofVerified {
			repoVerified = true
		}
	}

	diversity := math.Min(float64(len(types))/4.0, 1.0)
	avgProf := profSum / profCount
	certBonus := math.Min(float64(certCount)*0.05, 0.20) / 0.20
	repoBonus := 0.0
	if repoVerified {
		repoBonus = 1.0
	}

	return diversity*0.35 + avgProf*0.35 + certBonus*0.15 + repoBonus*0.15
}

// missingNonNegotiables lists every unproven non-negotiable. The MRI cap
// keys off all of them; the legacy score only caps on the critical ones.
func missingNonNegotiables(items []db.ChecklistItem, byItem map[uuid.UUID][]db.Proof) []string {
	var missing []string
	for _, item := range items {
		if item.Tier != db.TierNonNegotiable {
			continue
		}
		if !hasAcceptedProof(byItem[item.ID]) {
			missing = append(missing, item.Label)
		}
	}
	sort.Strings(missing)
	return missing
}

func missingCriticalNonNegotiables(items []db.ChecklistItem, byItem map[uuid.UUID][]db.Proof) []string {
	var missing []string
	for _, item := range items {
		if item.Tier != db.TierNonNegotiable || !item.IsCritical {
			continue
		}
		if !hasAcceptedProof(byItem[item.ID]) {
			missing = append(missing, item.Label)
		}
	}
	sort.Strings(missing)
	return missing
}

// hasAcceptedProof reports whether any proof is not rejected and not
// still pending adjudication.
func hasAcceptedProof(proofs []db.Proof) bool {
	for _, p := range proofs {
		if p.Status == db.ProofVerified || p.Status == db.ProofNeedsMoreEvidence {
			return true
		}
	}
	return false
}

func proficiencyBreakdown(proofs []db.Proof) map[string]int {
	out := map[string]int{
		db.ProficiencyBeginner:     0,
		db.ProficiencyIntermediate: 0,
		db.ProficiencyProfessional: 0,
	}
	for _, p := range proofs {
		if p.Status != db.ProofVerified {
			continue
		}
		out[p.ProficiencyLevel]++
	}
	return out
}

// topGaps returns up to max unproven items, non-negotiables first.
func topGaps(items []db.ChecklistItem, byItem map[uuid.UUID][]db.Proof, max int) []Gap {
	var gaps []Gap
	for _, item := range items {
		if hasAcceptedProof(byItem[item.ID]) {
			continue
		}
		gaps = append(gaps, Gap{ItemID: item.ID, Label: item.Label, Tier: item.Tier})
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		return tierRank(gaps[i].Tier) < tierRank(gaps[j].Tier)
	})
	if len(gaps) > max {
		gaps = gaps[:max]
	}
	return gaps
}

// nextActions turns the top gaps into user-facing guidance, ordered the
// same way the gaps are.
func nextActions(gaps []Gap) []string {
	actions := make([]string, 0, len(gaps))
	for _, g := range gaps {
		switch g.Tier {
		case db.TierNonNegotiable:
			actions = append(actions, fmt.Sprintf("Submit proof for %q; it is required and holds your score down while unproven", g.Label))
		case db.TierStrongSignal:
			actions = append(actions, fmt.Sprintf("Add evidence for %q to strengthen your skill match", g.Label))
		default:
			actions = append(actions, fmt.Sprintf("Consider adding evidence for %q", g.Label))
		}
	}
	return actions
}

func tierRank(tier string) int {
	switch tier {
	case db.TierNonNegotiable:
		return 0
	case db.TierStrongSignal:
		return 1
	default:
		return 2
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Describe renders a one-line summary for logs.
func Describe(r Result) string {
	return fmt.Sprintf("MRI %.1f (%s, formula %s)", r.Score, r.Band, r.FormulaVersion)
}
