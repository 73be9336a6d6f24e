package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/llm"
	intschemas "github.com/ashirimi1019/market-ready/internal/schemas"
	"github.com/ashirimi1019/market-ready/internal/skills"
	"github.com/ashirimi1019/market-ready/schemas"
)

// signalWindow is how far back proposal synthesis looks.
const signalWindow = 90 * 24 * time.Hour

// emergingThreshold is the minimum frequency for a signal skill to be
// proposed as a new checklist item.
const emergingThreshold = 0.25

// fadingThreshold is the frequency below which an existing nice-to-have is
// proposed for removal.
const fadingThreshold = 0.05

// ProposalCopilot synthesizes a proposal from signal evidence.
type ProposalCopilot interface {
	DraftProposal(ctx context.Context, pathwayName string, signalSummary string) (summary, rationale string, diff db.ProposalDiff, err error)
}

// CreateProposal records a manually authored proposal in draft.
func (s *Service) CreateProposal(ctx context.Context, pathwayID uuid.UUID, summary, rationale string, diff db.ProposalDiff, actor string) (*db.MarketProposal, error) {
	if diff.Empty() {
		return nil, fmt.Errorf("proposal diff is empty: %w", apperrors.ErrValidation)
	}
	for _, add := range diff.Add {
		if add.Label == "" {
			return nil, fmt.Errorf("added item label is required: %w", apperrors.ErrValidation)
		}
		if !db.ValidTier(add.Tier) {
			return nil, fmt.Errorf("unknown tier %q: %w", add.Tier, apperrors.ErrValidation)
		}
	}
	for _, rt := range diff.Retier {
		if !db.ValidTier(rt.Tier) {
			return nil, fmt.Errorf("unknown tier %q: %w", rt.Tier, apperrors.ErrValidation)
		}
	}

	pathway, err := s.store.GetPathway(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if pathway == nil {
		return nil, fmt.Errorf("pathway %s: %w", pathwayID, apperrors.ErrNotFound)
	}
	return s.store.InsertProposal(ctx, pathwayID, summary, rationale, diff, actor)
}

// GenerateProposal synthesizes a draft proposal from recent signals, via
// the copilot when configured and a frequency-rule fallback otherwise.
// Returns nil without error when the signals suggest no change.
func (s *Service) GenerateProposal(ctx context.Context, pathwayID uuid.UUID, actor string) (*db.MarketProposal, error) {
	pathway, err := s.store.GetPathway(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if pathway == nil {
		return nil, fmt.Errorf("pathway %s: %w", pathwayID, apperrors.ErrNotFound)
	}

	signals, err := s.store.ListSignals(ctx, pathwayID, time.Now().UTC().Add(-signalWindow))
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("no recent signals to synthesize from: %w", apperrors.ErrValidation)
	}

	items, err := s.publishedItems(ctx, pathwayID)
	if err != nil {
		return nil, err
	}

	summary, rationale, diff := s.synthesize(ctx, pathway, signals, items)
	if diff.Empty() {
		return nil, nil
	}
	return s.store.InsertProposal(ctx, pathwayID, summary, rationale, diff, actor)
}

func (s *Service) synthesize(ctx context.Context, pathway *db.Pathway, signals []db.MarketSignal, items []db.ChecklistItem) (string, string, db.ProposalDiff) {
	rulesSummary, rulesRationale, rulesDiff := ruleBasedDiff(signals, items)
	if s.copilot == nil {
		return rulesSummary, rulesRationale, rulesDiff
	}

	summary, rationale, diff, err := s.copilot.DraftProposal(ctx, pathway.Name, summarizeSignals(signals, items))
	if err != nil || diff.Empty() {
		if err != nil {
			s.log.Warn("proposal copilot failed, using rules", "pathway", pathway.Name, "error", err)
		}
		return rulesSummary, rulesRationale, rulesDiff
	}

	s.auditCopilot(ctx, pathway, summary)
	return summary, rationale, diff
}

func (s *Service) auditCopilot(ctx context.Context, pathway *db.Pathway, output string) {
	err := s.store.InsertAuditLog(ctx, &db.AIAuditLog{
		Feature:    "market_proposal_copilot",
		ContextIDs: []string{pathway.ID.String()},
		Output:     output,
	})
	if err != nil {
		s.log.Warn("failed to audit copilot call", "error", err)
	}
}

// ruleBasedDiff proposes adding high-frequency skills the checklist lacks
// and removing faded nice-to-haves.
func ruleBasedDiff(signals []db.MarketSignal, items []db.ChecklistItem) (string, string, db.ProposalDiff) {
	// Latest frequency per skill wins. Role-family-only signals carry no
	// skill to diff against, so they are skipped here.
	latest := make(map[string]db.MarketSignal)
	for _, sig := range signals {
		key := skills.Normalize(sig.Skill)
		if key == "" {
			continue
		}
		if prev, ok := latest[key]; !ok || sig.ObservedAt.After(prev.ObservedAt) {
			latest[key] = sig
		}
	}

	haveByLabel := make(map[string]db.ChecklistItem, len(items))
	for _, item := range items {
		haveByLabel[skills.Normalize(item.Label)] = item
	}

	var diff db.ProposalDiff
	var reasons []string

	var emerging []string
	for key := range latest {
		emerging = append(emerging, key)
	}
	sort.Strings(emerging) // deterministic proposals

	for _, key := range emerging {
		sig := latest[key]
		if _, have := haveByLabel[key]; !have && sig.Frequency >= emergingThreshold {
			diff.Add = append(diff.Add, db.ChecklistItemInput{
				Label:     sig.Skill,
				Rationale: fmt.Sprintf("appears in %.0f%% of sampled postings (%s)", sig.Frequency*100, sig.Source),
				Tier:      db.TierStrongSignal,
				Weight:    1.0,
			})
			reasons = append(reasons, fmt.Sprintf("%s demand at %.0f%%", sig.Skill, sig.Frequency*100))
		}
	}

	for key, item := range haveByLabel {
		sig, observed := latest[key]
		if observed && item.Tier == db.TierNiceToHave && sig.Frequency < fadingThreshold {
			diff.Remove = append(diff.Remove, item.Label)
			reasons = append(reasons, fmt.Sprintf("%s demand faded to %.0f%%", item.Label, sig.Frequency*100))
		}
	}
	sort.Strings(diff.Remove)

	if diff.Empty() {
		return "", "", diff
	}
	summary := fmt.Sprintf("Market-driven checklist update: %d addition(s), %d removal(s)", len(diff.Add), len(diff.Remove))
	return summary, strings.Join(reasons, "; "), diff
}

func summarizeSignals(signals []db.MarketSignal, items []db.ChecklistItem) string {
	var sb strings.Builder
	sb.WriteString("Current checklist items:\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s (%s)\n", item.Label, item.Tier)
	}
	sb.WriteString("\nRecent market signals (skill, frequency, source, observed):\n")
	for _, sig := range signals {
		name := sig.Skill
		if name == "" {
			name = sig.RoleFamily + " (role family)"
		}
		fmt.Fprintf(&sb, "- %s, %.2f, %s, %s\n", name, sig.Frequency, sig.Source, sig.ObservedAt.Format("2006-01-02"))
	}
	return sb.String()
}

// Approve moves a draft proposal to approved.
func (s *Service) Approve(ctx context.Context, proposalID uuid.UUID, actor string) (*db.MarketProposal, error) {
	return s.store.TransitionProposal(ctx, proposalID, db.ProposalDraft, db.ProposalApproved, actor)
}

// Reject declines a draft proposal.
func (s *Service) Reject(ctx context.Context, proposalID uuid.UUID, actor string) (*db.MarketProposal, error) {
	return s.store.TransitionProposal(ctx, proposalID, db.ProposalDraft, db.ProposalRejected, actor)
}

// Publish applies an approved proposal's diff to the published item set
// and opens a checklist draft with the result. The checklist itself still
// goes through its own publish step.
func (s *Service) Publish(ctx context.Context, proposalID uuid.UUID, actor string) (*db.MarketProposal, *db.ChecklistVersion, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	if proposal == nil {
		return nil, nil, fmt.Errorf("proposal %s: %w", proposalID, apperrors.ErrNotFound)
	}
	if proposal.Status != db.ProposalApproved {
		return nil, nil, fmt.Errorf("proposal is %s, only approved proposals publish: %w",
			proposal.Status, apperrors.ErrInvalidState)
	}

	items, err := s.publishedItems(ctx, proposal.PathwayID)
	if err != nil {
		return nil, nil, err
	}
	drafted := applyDiff(items, proposal.Diff)

	draft, err := s.store.CreateDraft(ctx, proposal.PathwayID, drafted,
		fmt.Sprintf("from market proposal %s: %s", proposal.ID, proposal.Summary), actor)
	if err != nil {
		return nil, nil, err
	}

	published, err := s.store.TransitionProposal(ctx, proposalID, db.ProposalApproved, db.ProposalPublished, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.SetProposalVersion(ctx, proposalID, draft.VersionNumber); err != nil {
		return nil, nil, err
	}
	published.ProposedVersionNumber = &draft.VersionNumber
	return published, draft, nil
}

func (s *Service) publishedItems(ctx context.Context, pathwayID uuid.UUID) ([]db.ChecklistItem, error) {
	published, err := s.store.PublishedVersion(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if published == nil {
		return nil, nil
	}
	return s.store.ListItems(ctx, published.ID)
}

// applyDiff computes the draft item set from the current published items
// and a proposal diff.
func applyDiff(items []db.ChecklistItem, diff db.ProposalDiff) []db.ChecklistItemInput {
	removed := make(map[string]bool, len(diff.Remove))
	for _, label := range diff.Remove {
		removed[skills.Normalize(label)] = true
	}
	retier := make(map[string]string, len(diff.Retier))
	for _, rt := range diff.Retier {
		retier[skills.Normalize(rt.Label)] = rt.Tier
	}

	var out []db.ChecklistItemInput
	position := 0
	for _, item := range items {
		key := skills.Normalize(item.Label)
		if removed[key] {
			continue
		}
		tier := item.Tier
		if newTier, ok := retier[key]; ok {
			tier = newTier
		}
		out = append(out, db.ChecklistItemInput{
			SkillID:     item.SkillID,
			Label:       item.Label,
			Description: item.Description,
			Rationale:   item.Rationale,
			Tier:        tier,
			Weight:      item.Weight,
			Position:    position,
		})
		position++
	}
	for _, add := range diff.Add {
		weight := add.Weight
		if weight == 0 {
			weight = 1.0
		}
		out = append(out, db.ChecklistItemInput{
			SkillID:     add.SkillID,
			Label:       add.Label,
			Description: add.Description,
			Rationale:   add.Rationale,
			Tier:        add.Tier,
			Weight:      weight,
			Position:    position,
		})
		position++
	}
	if out == nil {
		out = []db.ChecklistItemInput{}
	}
	return out
}

// GeminiCopilot drafts proposals with Gemini, validated against the
// proposal schema.
type GeminiCopilot struct {
	Client llm.Client
}

var proposalSchema = llm.ExtractionSchema{
	Name: "MarketProposal",
	Description: "You maintain career readiness checklists. Given the current checklist and " +
		"recent market demand signals, propose a conservative revision. Only add skills with " +
		"strong sustained demand, only remove items whose demand has clearly faded, and never " +
		"touch non-negotiable items without overwhelming evidence.",
	Fields: []llm.SchemaField{
		{Name: "summary", Type: "string", Description: "one-line summary of the revision", Required: true},
		{Name: "rationale", Type: "string", Description: "evidence-based justification", Required: true},
		{Name: "diff", Type: "map[string]string", Description: `object with "add" (items with label, tier, rationale), "remove" (labels), "retier" (label + tier)`, Required: true},
	},
}

// DraftProposal implements ProposalCopilot.
func (g *GeminiCopilot) DraftProposal(ctx context.Context, pathwayName, signalSummary string) (string, string, db.ProposalDiff, error) {
	input := fmt.Sprintf("Pathway: %s\n\n%s", pathwayName, signalSummary)
	prompt := llm.BuildExtractionPrompt(proposalSchema, input)

	raw, err := g.Client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return "", "", db.ProposalDiff{}, fmt.Errorf("copilot call failed: %w", err)
	}

	cleaned := llm.CleanJSONBlock(raw)
	if err := intschemas.ValidateJSONString(schemas.MarketProposal, cleaned); err != nil {
		return "", "", db.ProposalDiff{}, fmt.Errorf("copilot returned malformed proposal: %w", err)
	}

	var payload struct {
		Summary   string          `json:"summary"`
		Rationale string          `json:"rationale"`
		Diff      db.ProposalDiff `json:"diff"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", "", db.ProposalDiff{}, fmt.Errorf("failed to decode proposal: %w", err)
	}
	for i := range payload.Diff.Add {
		if payload.Diff.Add[i].Weight == 0 {
			payload.Diff.Add[i].Weight = 1.0
		}
	}
	return payload.Summary, payload.Rationale, payload.Diff, nil
}
