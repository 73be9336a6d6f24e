// Package mission turns readiness gaps and market demand into 90-day
// mission plans, including pivot recommendations when another pathway's
// demand clearly outpaces the user's current one.
package mission

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/config"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/llm"
	"github.com/ashirimi1019/market-ready/internal/logger"
	"github.com/ashirimi1019/market-ready/internal/readiness"
	intschemas "github.com/ashirimi1019/market-ready/internal/schemas"
	"github.com/ashirimi1019/market-ready/schemas"
)

// PivotThresholdDelta is how many index points a candidate pathway's
// demand must exceed the current one by before a pivot is recommended.
const PivotThresholdDelta = 15.0

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetPathway(ctx context.Context, id uuid.UUID) (*db.Pathway, error)
	ListPathways(ctx context.Context, activeOnly bool) ([]db.Pathway, error)
	GetUserPathway(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	PublishedVersion(ctx context.Context, pathwayID uuid.UUID) (*db.ChecklistVersion, error)
	ListItems(ctx context.Context, versionID uuid.UUID) ([]db.ChecklistItem, error)
	ListProofsForItems(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) ([]db.Proof, error)
	ListSignals(ctx context.Context, pathwayID uuid.UUID, since time.Time) ([]db.MarketSignal, error)
	InsertAuditLog(ctx context.Context, log *db.AIAuditLog) error
}

// Plan is the orchestrator's output.
type Plan struct {
	Day0To30         []string         `json:"day_0_30"`
	Day31To60        []string         `json:"day_31_60"`
	Day61To90        []string         `json:"day_61_90"`
	WeeklyCheckboxes []string         `json:"weekly_checkboxes"`
	PivotRecommended bool             `json:"pivot_recommended"`
	PivotTarget      string           `json:"pivot_target,omitempty"`
	PivotReason      string           `json:"pivot_reason"`
	Readiness        readiness.Result `json:"readiness"`
	GeneratedBy      string           `json:"generated_by"` // "ai" or "rules"
	GeneratedAt      time.Time        `json:"generated_at"`
}

// Orchestrator builds mission plans.
type Orchestrator struct {
	store   Store
	client  llm.Client // nil disables the AI planner
	scoring config.ScoringConfig
	log     *logger.Logger
}

// New builds an Orchestrator.
func New(store Store, client llm.Client, scoring config.ScoringConfig, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{store: store, client: client, scoring: scoring, log: log}
}

// PlanRequest asks for a mission plan. Now anchors all scoring and decay.
type PlanRequest struct {
	UserID    uuid.UUID
	PivotMode bool
	Now       time.Time
}

// BuildPlan assembles the user's snapshot, scores it, evaluates a pivot,
// and produces the 90-day plan. The AI planner is used when configured;
// its failure falls back to the deterministic rules plan.
func (o *Orchestrator) BuildPlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	snapshot, err := o.loadSnapshot(ctx, req.UserID, req.Now)
	if err != nil {
		return nil, err
	}

	result := readiness.Score(readiness.ScoreInput{
		Items:   snapshot.items,
		Proofs:  snapshot.proofs,
		Signals: snapshot.signals,
		Config:  o.scoring,
		Now:     req.Now,
	})

	plan := &Plan{
		Readiness:   result,
		GeneratedAt: req.Now,
		PivotReason: "Current pathway remains the strongest fit for your verified skills.",
	}

	if req.PivotMode {
		o.evaluatePivot(ctx, snapshot, plan, req.Now)
	}

	if o.client != nil {
		if aiErr := o.planWithAI(ctx, snapshot, result, plan, req.UserID); aiErr == nil {
			plan.GeneratedBy = "ai"
			return plan, nil
		} else {
			o.log.Warn("AI planner failed, using rules plan", "error", aiErr)
		}
	}

	o.rulesPlan(snapshot, result, plan)
	plan.GeneratedBy = "rules"
	return plan, nil
}

type snapshot struct {
	pathway *db.Pathway
	items   []db.ChecklistItem
	proofs  []db.Proof
	signals []db.MarketSignal
}

func (o *Orchestrator) loadSnapshot(ctx context.Context, userID uuid.UUID, now time.Time) (*snapshot, error) {
	pathwayID, err := o.store.GetUserPathway(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pathwayID == uuid.Nil {
		return nil, fmt.Errorf("user has no pathway selected: %w", apperrors.ErrInvalidState)
	}
	pathway, err := o.store.GetPathway(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if pathway == nil {
		return nil, fmt.Errorf("pathway %s: %w", pathwayID, apperrors.ErrNotFound)
	}

	published, err := o.store.PublishedVersion(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if published == nil {
		return nil, fmt.Errorf("pathway %q has no published checklist: %w", pathway.Name, apperrors.ErrInvalidState)
	}

	items, err := o.store.ListItems(ctx, published.ID)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]uuid.UUID, len(items))
	for i, item := range items {
		itemIDs[i] = item.ID
	}
	proofs, err := o.store.ListProofsForItems(ctx, userID, itemIDs)
	if err != nil {
		return nil, err
	}
	signals, err := o.store.ListSignals(ctx, pathwayID, now.Add(-180*24*time.Hour))
	if err != nil {
		return nil, err
	}
	return &snapshot{pathway: pathway, items: items, proofs: proofs, signals: signals}, nil
}

// evaluatePivot compares demand across active pathways and fills the
// pivot fields either way.
func (o *Orchestrator) evaluatePivot(ctx context.Context, snap *snapshot, plan *Plan, now time.Time) {
	candidates, err := o.store.ListPathways(ctx, true)
	if err != nil {
		o.log.Warn("pivot evaluation skipped", "error", err)
		return
	}

	current := demandIndex(snap.signals, now)
	bestName := ""
	bestIndex := current
	for _, candidate := range candidates {
		if candidate.ID == snap.pathway.ID {
			continue
		}
		signals, serr := o.store.ListSignals(ctx, candidate.ID, now.Add(-180*24*time.Hour))
		if serr != nil {
			continue
		}
		if idx := demandIndex(signals, now); idx > bestIndex {
			bestIndex = idx
			bestName = candidate.Name
		}
	}

	if bestName != "" && bestIndex-current >= PivotThresholdDelta {
		plan.PivotRecommended = true
		plan.PivotTarget = bestName
		plan.PivotReason = fmt.Sprintf(
			"Market demand for %s (%.0f) exceeds %s (%.0f) by %.0f points; consider pivoting.",
			bestName, bestIndex, snap.pathway.Name, current, bestIndex-current)
	} else {
		plan.PivotReason = fmt.Sprintf(
			"%s still shows the strongest demand for your profile (index %.0f); no pivot needed.",
			snap.pathway.Name, current)
	}
}

// demandIndex condenses a pathway's signals to a 0..100 demand figure,
// decaying observations over 90 days.
func demandIndex(signals []db.MarketSignal, now time.Time) float64 {
	if len(signals) == 0 {
		return 0
	}
	var weighted, total float64
	for _, s := range signals {
		age := now.Sub(s.ObservedAt)
		if age < 0 {
			age = 0
		}
		decay := math.Pow(0.5, age.Hours()/(90*24))
		weighted += s.Frequency * decay
		total += decay
	}
	if total == 0 {
		return 0
	}
	return weighted / total * 100
}

// rulesPlan builds the deterministic fallback plan from the top gaps.
func (o *Orchestrator) rulesPlan(snap *snapshot, result readiness.Result, plan *Plan) {
	gaps := result.TopGaps
	gapLabel := func(i int) string {
		if i < len(gaps) {
			return gaps[i].Label
		}
		return "your weakest checklist item"
	}

	plan.Day0To30 = []string{
		fmt.Sprintf("Day 3: Audit every %s checklist item and gather existing evidence, because unproven work scores zero.", snap.pathway.Name),
		fmt.Sprintf("Day 10: Start a focused study block on %s, because it is your highest-impact gap.", gapLabel(0)),
		fmt.Sprintf("Day 21: Submit proof for %s, because verified evidence moves the index immediately.", gapLabel(0)),
	}
	plan.Day31To60 = []string{
		fmt.Sprintf("Day 35: Build a small public project exercising %s, because repositories verify without certificates.", gapLabel(1)),
		"Day 45: Resubmit any proofs marked needs_more_evidence with stronger artifacts, because stalled proofs cap your score.",
		fmt.Sprintf("Day 55: Sit the strongest available certificate for %s, because AI-verified certificates carry a scoring bonus.", gapLabel(0)),
	}
	plan.Day61To90 = []string{
		fmt.Sprintf("Day 65: Close the remaining non-negotiable gaps (%d open), because missing ones cap the index below Market Ready.", len(result.MissingNonNegotiables)),
		"Day 75: Ask for one professional-level endorsement or reference on your best work, because proficiency weighting rewards depth.",
		fmt.Sprintf("Day 88: Re-run your readiness review and target the %s band, because the plan only counts if the number moves.", nextBand(result, o.scoring)),
	}
	plan.WeeklyCheckboxes = []string{
		"Ship or update one piece of verifiable evidence",
		"Review newly published checklist changes for your pathway",
		"Log at least two hours against your top gap",
	}
}

func nextBand(result readiness.Result, cfg config.ScoringConfig) string {
	for i := len(cfg.Bands) - 1; i >= 0; i-- {
		if cfg.Bands[i].Min > result.Score {
			return cfg.Bands[i].Label
		}
	}
	return cfg.Bands[0].Label
}

var planSchema = llm.ExtractionSchema{
	Name: "MissionPlan",
	Description: "You are a career mission strategist. Given a learner's readiness audit, " +
		"produce a 90-day plan in three time boxes. Every task must start with \"Day N:\" and " +
		"end with a short \"because ...\" justification tied to the audit. Be specific to the " +
		"gaps listed; never invent skills the pathway does not require.",
	Fields: []llm.SchemaField{
		{Name: "day_0_30", Type: "[]string", Description: "tasks for days 0-30", Required: true},
		{Name: "day_31_60", Type: "[]string", Description: "tasks for days 31-60", Required: true},
		{Name: "day_61_90", Type: "[]string", Description: "tasks for days 61-90", Required: true},
		{Name: "weekly_checkboxes", Type: "[]string", Description: "recurring weekly habits"},
	},
}

func (o *Orchestrator) planWithAI(ctx context.Context, snap *snapshot, result readiness.Result, plan *Plan, userID uuid.UUID) error {
	input := buildAuditInput(snap, result, plan)
	prompt := llm.BuildExtractionPrompt(planSchema, input)

	raw, err := o.client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return fmt.Errorf("planner call failed: %w", err)
	}
	cleaned := llm.CleanJSONBlock(raw)
	if err := intschemas.ValidateJSONString(schemas.MissionPlan, cleaned); err != nil {
		return fmt.Errorf("planner returned malformed plan: %w", err)
	}

	var payload struct {
		Day0To30         []string `json:"day_0_30"`
		Day31To60        []string `json:"day_31_60"`
		Day61To90        []string `json:"day_61_90"`
		WeeklyCheckboxes []string `json:"weekly_checkboxes"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return fmt.Errorf("failed to decode plan: %w", err)
	}
	plan.Day0To30 = payload.Day0To30
	plan.Day31To60 = payload.Day31To60
	plan.Day61To90 = payload.Day61To90
	plan.WeeklyCheckboxes = payload.WeeklyCheckboxes

	if err := o.store.InsertAuditLog(ctx, &db.AIAuditLog{
		UserID:      &userID,
		Feature:     "mission_orchestrator",
		Model:       o.client.GetModel(llm.TierAdvanced),
		PromptInput: input,
		ContextIDs:  []string{snap.pathway.ID.String()},
		Output:      cleaned,
	}); err != nil {
		o.log.Warn("failed to audit planner call", "error", err)
	}
	return nil
}

func buildAuditInput(snap *snapshot, result readiness.Result, plan *Plan) string {
	gaps := ""
	for _, g := range result.TopGaps {
		gaps += fmt.Sprintf("- %s (%s)\n", g.Label, g.Tier)
	}
	return fmt.Sprintf(
		"Pathway: %s\nMRI score: %.1f (%s)\nMissing non-negotiables: %v\nTop gaps:\n%sPivot: %s\n",
		snap.pathway.Name, result.Score, result.Band, result.MissingNonNegotiables, gaps, plan.PivotReason)
}
