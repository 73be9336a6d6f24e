package market

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
)

func signal(skill string, frequency float64, age time.Duration) db.MarketSignal {
	return db.MarketSignal{
		ID: uuid.New(), Skill: skill, Source: "adzuna",
		Frequency: frequency, ObservedAt: time.Now().UTC().Add(-age),
	}
}

func TestRuleBasedDiffAddsEmergingSkills(t *testing.T) {
	items := []db.ChecklistItem{
		{ID: uuid.New(), Label: "go", Tier: db.TierNonNegotiable},
	}
	signals := []db.MarketSignal{
		signal("rust", 0.40, time.Hour),
		signal("cobol", 0.10, time.Hour), // below the emerging threshold
		signal("go", 0.90, time.Hour),    // already on the checklist
	}

	summary, rationale, diff := ruleBasedDiff(signals, items)

	require.Len(t, diff.Add, 1)
	assert.Equal(t, "rust", diff.Add[0].Label)
	assert.Equal(t, db.TierStrongSignal, diff.Add[0].Tier)
	assert.Contains(t, diff.Add[0].Rationale, "40%")
	assert.Empty(t, diff.Remove)
	assert.Contains(t, summary, "1 addition(s)")
	assert.Contains(t, rationale, "rust")
}

func TestRuleBasedDiffRemovesFadedNiceToHaves(t *testing.T) {
	items := []db.ChecklistItem{
		{ID: uuid.New(), Label: "jquery", Tier: db.TierNiceToHave},
		{ID: uuid.New(), Label: "go", Tier: db.TierNonNegotiable},
	}
	signals := []db.MarketSignal{
		signal("jquery", 0.02, time.Hour),
		signal("go", 0.02, time.Hour), // fading but non-negotiable, never removed
	}

	_, _, diff := ruleBasedDiff(signals, items)

	assert.Equal(t, []string{"jquery"}, diff.Remove)
	assert.Empty(t, diff.Add)
}

func TestRuleBasedDiffUsesLatestSignalPerSkill(t *testing.T) {
	items := []db.ChecklistItem{}
	signals := []db.MarketSignal{
		signal("rust", 0.60, 48*time.Hour),
		signal("rust", 0.05, time.Hour), // newer and below threshold
	}

	_, _, diff := ruleBasedDiff(signals, items)
	assert.True(t, diff.Empty())
}

func TestRuleBasedDiffSkipsRoleFamilySignals(t *testing.T) {
	items := []db.ChecklistItem{}
	signals := []db.MarketSignal{
		{ID: uuid.New(), RoleFamily: "backend engineer", Source: "adzuna",
			Frequency: 0.90, ObservedAt: time.Now().UTC()},
	}

	_, _, diff := ruleBasedDiff(signals, items)
	assert.True(t, diff.Empty())
}

func TestRuleBasedDiffNoChange(t *testing.T) {
	items := []db.ChecklistItem{
		{ID: uuid.New(), Label: "go", Tier: db.TierNonNegotiable},
	}
	signals := []db.MarketSignal{signal("go", 0.90, time.Hour)}

	summary, _, diff := ruleBasedDiff(signals, items)
	assert.True(t, diff.Empty())
	assert.Empty(t, summary)
}

func TestApplyDiff(t *testing.T) {
	skillID := uuid.New()
	items := []db.ChecklistItem{
		{ID: uuid.New(), SkillID: &skillID, Label: "go", Tier: db.TierNonNegotiable, Weight: 1.0},
		{ID: uuid.New(), Label: "jquery", Tier: db.TierNiceToHave, Weight: 0.4},
		{ID: uuid.New(), Label: "docker", Tier: db.TierNiceToHave, Weight: 0.5},
	}
	diff := db.ProposalDiff{
		Add:    []db.ChecklistItemInput{{Label: "rust", Tier: db.TierStrongSignal}},
		Remove: []string{"jquery"},
		Retier: []db.TierChange{{Label: "docker", Tier: db.TierStrongSignal}},
	}

	out := applyDiff(items, diff)

	require.Len(t, out, 3)
	assert.Equal(t, "go", out[0].Label)
	assert.Equal(t, &skillID, out[0].SkillID)
	assert.Equal(t, "docker", out[1].Label)
	assert.Equal(t, db.TierStrongSignal, out[1].Tier)
	assert.Equal(t, "rust", out[2].Label)
	assert.Equal(t, 1.0, out[2].Weight) // default weight for additions
	for i, item := range out {
		assert.Equal(t, i, item.Position)
	}
}

func TestApplyDiffEmptyResult(t *testing.T) {
	items := []db.ChecklistItem{{ID: uuid.New(), Label: "go", Tier: db.TierNonNegotiable}}
	out := applyDiff(items, db.ProposalDiff{Remove: []string{"go"}})
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestProposalLifecycle(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.publishChecklist(pathway.ID, map[string]string{"go": db.TierNonNegotiable})
	svc := NewService(store, nil, nil)

	diff := db.ProposalDiff{Add: []db.ChecklistItemInput{{Label: "rust", Tier: db.TierStrongSignal, Weight: 1.0}}}
	proposal, err := svc.CreateProposal(context.Background(), pathway.ID, "add rust", "demand is rising", diff, "admin")
	require.NoError(t, err)
	assert.Equal(t, db.ProposalDraft, proposal.Status)

	// Draft proposals cannot publish.
	_, _, err = svc.Publish(context.Background(), proposal.ID, "admin")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	approved, err := svc.Approve(context.Background(), proposal.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, db.ProposalApproved, approved.Status)

	// Approving twice is an invalid transition.
	_, err = svc.Approve(context.Background(), proposal.ID, "admin")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	published, draft, err := svc.Publish(context.Background(), proposal.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, db.ProposalPublished, published.Status)
	require.NotNil(t, draft)
	assert.Equal(t, db.VersionDraft, draft.Status)

	// The diff landed in a checklist draft, not a published version.
	require.Len(t, store.drafts, 1)
	labels := make([]string, 0, len(store.drafts[0].items))
	for _, item := range store.drafts[0].items {
		labels = append(labels, item.Label)
	}
	assert.Contains(t, labels, "go")
	assert.Contains(t, labels, "rust")
	require.NotNil(t, published.ProposedVersionNumber)
	assert.Equal(t, draft.VersionNumber, *published.ProposedVersionNumber)
}

func TestRejectProposal(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	svc := NewService(store, nil, nil)

	diff := db.ProposalDiff{Remove: []string{"jquery"}}
	proposal, err := svc.CreateProposal(context.Background(), pathway.ID, "drop jquery", "", diff, "admin")
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), proposal.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, db.ProposalRejected, rejected.Status)

	_, err = svc.Approve(context.Background(), proposal.ID, "admin")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCreateProposalValidation(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	svc := NewService(store, nil, nil)

	_, err := svc.CreateProposal(context.Background(), pathway.ID, "empty", "", db.ProposalDiff{}, "admin")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	badTier := db.ProposalDiff{Add: []db.ChecklistItemInput{{Label: "rust", Tier: "mandatory"}}}
	_, err = svc.CreateProposal(context.Background(), pathway.ID, "bad tier", "", badTier, "admin")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGenerateProposalRequiresSignals(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	svc := NewService(store, nil, nil)

	_, err := svc.GenerateProposal(context.Background(), pathway.ID, "admin")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGenerateProposalRulesFallback(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.publishChecklist(pathway.ID, map[string]string{"go": db.TierNonNegotiable})
	store.signals[pathway.ID] = []db.MarketSignal{signal("rust", 0.5, time.Hour)}
	svc := NewService(store, nil, nil)

	proposal, err := svc.GenerateProposal(context.Background(), pathway.ID, "market-automation")
	require.NoError(t, err)
	require.NotNil(t, proposal)
	require.Len(t, proposal.Diff.Add, 1)
	assert.Equal(t, "rust", proposal.Diff.Add[0].Label)
	assert.Equal(t, "market-automation", proposal.CreatedBy)
}

func TestGenerateProposalNoChangeReturnsNil(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.publishChecklist(pathway.ID, map[string]string{"go": db.TierNonNegotiable})
	store.signals[pathway.ID] = []db.MarketSignal{signal("go", 0.9, time.Hour)}
	svc := NewService(store, nil, nil)

	proposal, err := svc.GenerateProposal(context.Background(), pathway.ID, "market-automation")
	require.NoError(t, err)
	assert.Nil(t, proposal)
}

type fakeCopilot struct {
	summary   string
	rationale string
	diff      db.ProposalDiff
	err       error
}

func (f *fakeCopilot) DraftProposal(_ context.Context, _, _ string) (string, string, db.ProposalDiff, error) {
	return f.summary, f.rationale, f.diff, f.err
}

func TestGenerateProposalUsesCopilot(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.publishChecklist(pathway.ID, map[string]string{"go": db.TierNonNegotiable})
	store.signals[pathway.ID] = []db.MarketSignal{signal("rust", 0.5, time.Hour)}

	copilot := &fakeCopilot{
		summary:   "promote kubernetes",
		rationale: "steady growth across providers",
		diff:      db.ProposalDiff{Add: []db.ChecklistItemInput{{Label: "kubernetes", Tier: db.TierStrongSignal, Weight: 1.0}}},
	}
	svc := NewService(store, copilot, nil)

	proposal, err := svc.GenerateProposal(context.Background(), pathway.ID, "admin")
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, "promote kubernetes", proposal.Summary)
	require.Len(t, proposal.Diff.Add, 1)
	assert.Equal(t, "kubernetes", proposal.Diff.Add[0].Label)

	// Copilot calls leave an audit trail.
	require.Len(t, store.audits, 1)
	assert.Equal(t, "market_proposal_copilot", store.audits[0].Feature)
}

func TestGenerateProposalCopilotFailureFallsBackToRules(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.publishChecklist(pathway.ID, map[string]string{"go": db.TierNonNegotiable})
	store.signals[pathway.ID] = []db.MarketSignal{signal("rust", 0.5, time.Hour)}
	svc := NewService(store, &fakeCopilot{err: fmt.Errorf("model overloaded")}, nil)

	proposal, err := svc.GenerateProposal(context.Background(), pathway.ID, "admin")
	require.NoError(t, err)
	require.NotNil(t, proposal)
	require.Len(t, proposal.Diff.Add, 1)
	assert.Equal(t, "rust", proposal.Diff.Add[0].Label)
	assert.Empty(t, store.audits)
}
