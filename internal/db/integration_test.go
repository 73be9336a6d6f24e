//go:build integration

package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

// setupTestDB connects to TEST_DATABASE_URL and applies the schema.
// Integration tests are skipped when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	database, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))
	return database
}

func uniquePathway(t *testing.T, database *DB) *Pathway {
	t.Helper()
	p, err := database.UpsertPathway(context.Background(),
		fmt.Sprintf("pathway-%s", uuid.NewString()[:8]), "integration test pathway", true)
	require.NoError(t, err)
	return p
}

func draftItems() []ChecklistItemInput {
	return []ChecklistItemInput{
		{Label: "go", Tier: TierNonNegotiable, Weight: 1.0, Position: 0},
		{Label: "postgresql", Tier: TierStrongSignal, Weight: 0.8, Position: 1},
	}
}

func TestChecklistLifecycle(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)

	v1, err := database.CreateDraft(ctx, pathway.ID, draftItems(), "initial", "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, VersionDraft, v1.Status)

	// One open draft per pathway.
	_, err = database.CreateDraft(ctx, pathway.ID, draftItems(), "second", "tester")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	published, err := database.Publish(ctx, v1.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, VersionPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	// Publishing the same version again is an invalid transition.
	_, err = database.Publish(ctx, v1.ID, "tester")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	// A nil item set clones the published items into the new draft.
	v2, err := database.CreateDraft(ctx, pathway.ID, nil, "tweaks", "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	cloned, err := database.ListItems(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, cloned, 2)
	assert.Equal(t, "go", cloned[0].Label)

	_, err = database.Publish(ctx, v2.ID, "tester")
	require.NoError(t, err)

	// Exactly one published version; v1 archived.
	current, err := database.PublishedVersion(ctx, pathway.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)
	old, err := database.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, VersionArchived, old.Status)

	// Rollback restores v1 with its full item set.
	restored, err := database.Rollback(ctx, pathway.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, restored.ID)
	assert.Equal(t, VersionPublished, restored.Status)
	retired, err := database.GetVersion(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, VersionRolledBack, retired.Status)
	items, err := database.ListItems(ctx, v1.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// A second rollback has no archived predecessor left.
	_, err = database.Rollback(ctx, pathway.ID, "tester")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	changes, err := database.ListChanges(ctx, pathway.ID, 50)
	require.NoError(t, err)
	actions := make(map[string]int)
	for _, c := range changes {
		actions[c.Action]++
	}
	assert.Equal(t, 2, actions[ChangeDraftCreated])
	assert.Equal(t, 2, actions[ChangePublished])
	assert.Equal(t, 1, actions[ChangeRolledBack])
}

func TestDraftItemsImmutableOncePublished(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)

	draft, err := database.CreateDraft(ctx, pathway.ID, draftItems(), "", "tester")
	require.NoError(t, err)
	items, err := database.ListItems(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	newTier := TierNiceToHave
	updated, err := database.UpdateItem(ctx, items[1].ID, ChecklistItemUpdate{Tier: &newTier}, "tester")
	require.NoError(t, err)
	assert.Equal(t, TierNiceToHave, updated.Tier)

	_, err = database.Publish(ctx, draft.ID, "tester")
	require.NoError(t, err)

	_, err = database.UpdateItem(ctx, items[0].ID, ChecklistItemUpdate{Tier: &newTier}, "tester")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	err = database.DeleteItem(ctx, items[0].ID, "tester")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestUserAccountsAndPathwaySelection(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	user, err := database.CreateUser(ctx, "student"+suffix, "student"+suffix+"@example.com", "hash", RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, user.Role)

	_, err = database.CreateUser(ctx, "student"+suffix, "other"+suffix+"@example.com", "hash", RoleStudent)
	assert.Error(t, err, "duplicate username must be rejected")

	found, err := database.GetUserByUsername(ctx, "student"+suffix)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, database.TouchLastLogin(ctx, user.ID))
	refreshed, err := database.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.LastLoginAt)

	first := uniquePathway(t, database)
	second := uniquePathway(t, database)
	require.NoError(t, database.SetUserPathway(ctx, user.ID, first.ID))
	require.NoError(t, database.SetUserPathway(ctx, user.ID, second.ID))
	selected, err := database.GetUserPathway(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, selected)
}

func TestDraftVersionLookup(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)

	// No draft yet.
	draft, err := database.DraftVersion(ctx, pathway.ID)
	require.NoError(t, err)
	assert.Nil(t, draft)

	created, err := database.CreateDraft(ctx, pathway.ID, draftItems(), "", "tester")
	require.NoError(t, err)
	draft, err = database.DraftVersion(ctx, pathway.ID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, created.ID, draft.ID)

	// Publishing closes the draft.
	_, err = database.Publish(ctx, created.ID, "tester")
	require.NoError(t, err)
	draft, err = database.DraftVersion(ctx, pathway.ID)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestItemProofConstraintsRoundTrip(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)

	notCritical := false
	draft, err := database.CreateDraft(ctx, pathway.ID, []ChecklistItemInput{
		{Label: "aws", Tier: TierNonNegotiable, Weight: 1.0,
			AllowedProofTypes: StringList{"cert_upload", "repo"}},
		{Label: "graphql", Tier: TierNiceToHave, Weight: 0.5, Position: 1, IsCritical: &notCritical},
	}, "", "tester")
	require.NoError(t, err)

	items, err := database.ListItems(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, StringList{"cert_upload", "repo"}, items[0].AllowedProofTypes)
	assert.True(t, items[0].IsCritical, "criticality defaults to true")
	assert.False(t, items[1].IsCritical)
	assert.True(t, items[1].AllowsProofType("anything"), "empty list accepts any type")
	assert.False(t, items[0].AllowsProofType("self_attestation"))
}

func TestProofOutcomeIdempotentOnceTerminal(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	pathway := uniquePathway(t, database)

	user, err := database.CreateUser(ctx, "prover"+suffix, "prover"+suffix+"@example.com", "hash", RoleStudent)
	require.NoError(t, err)
	draft, err := database.CreateDraft(ctx, pathway.ID, draftItems(), "", "tester")
	require.NoError(t, err)
	_, err = database.Publish(ctx, draft.ID, "tester")
	require.NoError(t, err)
	items, err := database.ListItems(ctx, draft.ID)
	require.NoError(t, err)

	proof, err := database.InsertProof(ctx, &ProofInput{
		UserID: user.ID, ItemID: items[0].ID, ProofType: "certificate",
		URL: "https://example.com/cert", ProficiencyLevel: ProficiencyProfessional,
	}, ProofSubmitted)
	require.NoError(t, err)
	assert.Equal(t, ProofSubmitted, proof.Status)

	verdict := &Verdict{MeetsRequirement: true, Confidence: 0.9, Decision: "verified"}
	verified, err := database.SetProofOutcome(ctx, proof.ID, ProofVerified, verdict, JSONMap{"source": "test"})
	require.NoError(t, err)
	assert.Equal(t, ProofVerified, verified.Status)
	require.NotNil(t, verified.AdjudicatedAt)

	// Terminal outcomes do not move.
	unchanged, err := database.SetProofOutcome(ctx, proof.ID, ProofRejected, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ProofVerified, unchanged.Status)

	// Resubmission only applies to needs_more_evidence proofs.
	resubmitted, err := database.ResubmitProof(ctx, proof.ID, "https://example.com/more", "")
	require.NoError(t, err)
	assert.Nil(t, resubmitted)

	// The admin override ignores the terminal guard.
	overridden, err := database.OverrideProofStatus(ctx, proof.ID, ProofRejected,
		&Verdict{Decision: "admin_override", Note: "evidence was forged"})
	require.NoError(t, err)
	assert.Equal(t, ProofRejected, overridden.Status)
}

func TestProposalTransitions(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)

	diff := ProposalDiff{Add: []ChecklistItemInput{{Label: "rust", Tier: TierStrongSignal, Weight: 1.0}}}
	proposal, err := database.InsertProposal(ctx, pathway.ID, "add rust", "demand grew", diff, "admin")
	require.NoError(t, err)
	assert.Equal(t, ProposalDraft, proposal.Status)

	approved, err := database.TransitionProposal(ctx, proposal.ID, ProposalDraft, ProposalApproved, "admin")
	require.NoError(t, err)
	assert.Equal(t, ProposalApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	_, err = database.TransitionProposal(ctx, proposal.ID, ProposalDraft, ProposalApproved, "admin")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	require.NoError(t, database.SetProposalVersion(ctx, proposal.ID, 2))
	stored, err := database.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProposedVersionNumber)
	assert.Equal(t, 2, *stored.ProposedVersionNumber)

	// Round-trips the diff through JSONB.
	require.Len(t, stored.Diff.Add, 1)
	assert.Equal(t, "rust", stored.Diff.Add[0].Label)
}

func TestSignalWindow(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)
	now := time.Now().UTC()

	inserted, err := database.InsertSignals(ctx, pathway.ID, []MarketSignalInput{
		{Skill: "go", Source: "manual", Frequency: 0.8, ObservedAt: now},
		{Skill: "cobol", Source: "manual", Frequency: 0.1, ObservedAt: now.Add(-200 * 24 * time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	recent, err := database.ListSignals(ctx, pathway.ID, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "go", recent[0].Skill)
}

func TestSignalProvenanceRoundTrip(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)
	now := time.Now().UTC()

	start := now.AddDate(0, 0, -30)
	count := 84
	_, err := database.InsertSignals(ctx, pathway.ID, []MarketSignalInput{
		{RoleFamily: "platform engineer", Source: "adzuna", Frequency: 0.6,
			ObservedAt: now, WindowStart: &start, WindowEnd: &now, SourceCount: &count},
	})
	require.NoError(t, err)

	stored, err := database.ListSignals(ctx, pathway.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Empty(t, stored[0].Skill)
	assert.Equal(t, "platform engineer", stored[0].RoleFamily)
	require.NotNil(t, stored[0].WindowStart)
	assert.WithinDuration(t, start, *stored[0].WindowStart, time.Second)
	require.NotNil(t, stored[0].SourceCount)
	assert.Equal(t, 84, *stored[0].SourceCount)
}

func TestLastAutomationRun(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	pathway := uniquePathway(t, database)

	last, err := database.LastAutomationRun(ctx, pathway.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = database.RecordRawIngestion(ctx, "automation", "", JSONMap{"pathway_id": pathway.ID.String()})
	require.NoError(t, err)

	last, err = database.LastAutomationRun(ctx, pathway.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now(), *last, time.Minute)

	// Runs for other pathways do not count.
	other := uniquePathway(t, database)
	otherLast, err := database.LastAutomationRun(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, otherLast)
}

func TestAuditLogFilter(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	feature := "it_" + uuid.NewString()[:8]

	require.NoError(t, database.InsertAuditLog(ctx, &AIAuditLog{
		Feature: feature,
		Model:   "gemini-2.5-pro",
		Output:  "ok",
	}))

	logs, err := database.ListAuditLogs(ctx, feature, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, feature, logs[0].Feature)
}
