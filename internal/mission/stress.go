package mission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/readiness"
)

// Resilience multipliers for the 2027 projection. Low-resilience profiles
// (few verified, durable skills) lose ground as hiring bars rise;
// high-resilience profiles compound.
const (
	lowResilienceMultiplier  = 0.5
	highResilienceMultiplier = 1.7
)

// Risk bands for the projected score.
const (
	riskHighBelow   = 60.0
	riskMediumBelow = 78.0
)

// StressResult is the market stress test output.
type StressResult struct {
	CurrentScore     float64 `json:"current_score"`
	Resilience       float64 `json:"resilience"` // 0..1
	Projected2027    float64 `json:"projected_2027"`
	Risk             string  `json:"risk"` // high, medium, low
	Assessment       string  `json:"assessment"`
	VerifiedDurable  int     `json:"verified_durable_skills"`
	TotalRequirement int     `json:"total_requirements"`
}

// StressTest projects the user's readiness into a tighter 2027 market.
// Resilience comes from the share of requirements backed by verified,
// professional-grade evidence; the projection interpolates between the
// low and high resilience multipliers.
func (o *Orchestrator) StressTest(ctx context.Context, userID uuid.UUID, now time.Time) (*StressResult, error) {
	snap, err := o.loadSnapshot(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	result := readiness.Score(readiness.ScoreInput{
		Items:   snap.items,
		Proofs:  snap.proofs,
		Signals: snap.signals,
		Config:  o.scoring,
		Now:     now,
	})

	durable := 0
	breakdown := result.ProficiencyBreakdown
	durable += breakdown["professional"]
	durable += breakdown["intermediate"] / 2

	resilience := 0.0
	if len(snap.items) > 0 {
		resilience = math.Min(float64(durable)/float64(len(snap.items)), 1.0)
	}

	multiplier := lowResilienceMultiplier + (highResilienceMultiplier-lowResilienceMultiplier)*resilience
	projected := math.Min(result.Score*multiplier, 100)

	risk := "low"
	switch {
	case projected < riskHighBelow:
		risk = "high"
	case projected < riskMediumBelow:
		risk = "medium"
	}

	return &StressResult{
		CurrentScore:     result.Score,
		Resilience:       resilience,
		Projected2027:    math.Round(projected*10) / 10,
		Risk:             risk,
		Assessment: fmt.Sprintf(
			"At current evidence depth your %s readiness projects to %.1f in a 2027 market (%s risk).",
			snap.pathway.Name, projected, risk),
		VerifiedDurable:  durable,
		TotalRequirement: len(snap.items),
	}, nil
}
