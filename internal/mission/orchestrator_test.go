package mission

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/config"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/llm"
)

// fakeStore is an in-memory mission Store.
type fakeStore struct {
	pathways    map[uuid.UUID]*db.Pathway
	userPathway uuid.UUID
	published   map[uuid.UUID]*db.ChecklistVersion
	items       map[uuid.UUID][]db.ChecklistItem // version ID -> items
	proofs      []db.Proof
	signals     map[uuid.UUID][]db.MarketSignal
	audits      []db.AIAuditLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pathways:  make(map[uuid.UUID]*db.Pathway),
		published: make(map[uuid.UUID]*db.ChecklistVersion),
		items:     make(map[uuid.UUID][]db.ChecklistItem),
		signals:   make(map[uuid.UUID][]db.MarketSignal),
	}
}

func (f *fakeStore) addPathway(name string) *db.Pathway {
	p := &db.Pathway{ID: uuid.New(), Name: name, IsActive: true}
	f.pathways[p.ID] = p
	return p
}

// publish attaches a published checklist of non-negotiable items and
// returns them.
func (f *fakeStore) publish(pathwayID uuid.UUID, labels ...string) []db.ChecklistItem {
	v := &db.ChecklistVersion{ID: uuid.New(), PathwayID: pathwayID, VersionNumber: 1, Status: db.VersionPublished}
	f.published[pathwayID] = v
	for i, label := range labels {
		f.items[v.ID] = append(f.items[v.ID], db.ChecklistItem{
			ID: uuid.New(), VersionID: v.ID, Label: label,
			Tier: db.TierNonNegotiable, Weight: 1.0, Position: i,
		})
	}
	return f.items[v.ID]
}

func (f *fakeStore) addSignal(pathwayID uuid.UUID, skill string, frequency float64, observedAt time.Time) {
	f.signals[pathwayID] = append(f.signals[pathwayID], db.MarketSignal{
		ID: uuid.New(), PathwayID: pathwayID, Skill: skill,
		Source: "adzuna", Frequency: frequency, ObservedAt: observedAt,
	})
}

func (f *fakeStore) GetPathway(_ context.Context, id uuid.UUID) (*db.Pathway, error) {
	return f.pathways[id], nil
}

func (f *fakeStore) ListPathways(_ context.Context, activeOnly bool) ([]db.Pathway, error) {
	var out []db.Pathway
	for _, p := range f.pathways {
		if !activeOnly || p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserPathway(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	return f.userPathway, nil
}

func (f *fakeStore) PublishedVersion(_ context.Context, pathwayID uuid.UUID) (*db.ChecklistVersion, error) {
	return f.published[pathwayID], nil
}

func (f *fakeStore) ListItems(_ context.Context, versionID uuid.UUID) ([]db.ChecklistItem, error) {
	return f.items[versionID], nil
}

func (f *fakeStore) ListProofsForItems(_ context.Context, userID uuid.UUID, itemIDs []uuid.UUID) ([]db.Proof, error) {
	wanted := make(map[uuid.UUID]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	var out []db.Proof
	for _, p := range f.proofs {
		if p.UserID == userID && wanted[p.ItemID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSignals(_ context.Context, pathwayID uuid.UUID, since time.Time) ([]db.MarketSignal, error) {
	var out []db.MarketSignal
	for _, s := range f.signals[pathwayID] {
		if s.ObservedAt.After(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertAuditLog(_ context.Context, log *db.AIAuditLog) error {
	f.audits = append(f.audits, *log)
	return nil
}

func verifiedProof(userID, itemID uuid.UUID, proficiency string, now time.Time) db.Proof {
	return db.Proof{
		ID: uuid.New(), UserID: userID, ItemID: itemID,
		ProofType: "project_url", URL: "https://example.com/work",
		ProficiencyLevel: proficiency, Status: db.ProofVerified,
		SubmittedAt: now.Add(-24 * time.Hour),
	}
}

func TestBuildPlanRequiresPathwaySelection(t *testing.T) {
	store := newFakeStore()
	o := New(store, nil, config.DefaultScoringConfig(), nil)

	_, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), Now: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestBuildPlanRequiresPublishedChecklist(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	o := New(store, nil, config.DefaultScoringConfig(), nil)

	_, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), Now: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

var taskShape = regexp.MustCompile(`^Day \d+: .+because .+`)

func TestRulesPlanTaskShape(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	store.publish(pathway.ID, "go", "postgresql", "docker")
	o := New(store, nil, config.DefaultScoringConfig(), nil)

	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), Now: time.Now()})

	require.NoError(t, err)
	assert.Equal(t, "rules", plan.GeneratedBy)
	for _, box := range [][]string{plan.Day0To30, plan.Day31To60, plan.Day61To90} {
		require.Len(t, box, 3)
		for _, task := range box {
			assert.Regexp(t, taskShape, task)
		}
	}
	assert.NotEmpty(t, plan.WeeklyCheckboxes)
	assert.False(t, plan.PivotRecommended)
	assert.NotEmpty(t, plan.PivotReason)
}

func TestBuildPlanPivotRecommended(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	current := store.addPathway("Backend Engineer")
	store.userPathway = current.ID
	store.publish(current.ID, "go")
	store.addSignal(current.ID, "go", 0.10, now.Add(-time.Hour))

	hot := store.addPathway("ML Platform Engineer")
	store.addSignal(hot.ID, "pytorch", 0.90, now.Add(-time.Hour))

	o := New(store, nil, config.DefaultScoringConfig(), nil)
	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), PivotMode: true, Now: now})

	require.NoError(t, err)
	assert.True(t, plan.PivotRecommended)
	assert.Equal(t, "ML Platform Engineer", plan.PivotTarget)
	assert.Contains(t, plan.PivotReason, "ML Platform Engineer")
}

func TestBuildPlanPivotBelowThreshold(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	current := store.addPathway("Backend Engineer")
	store.userPathway = current.ID
	store.publish(current.ID, "go")
	store.addSignal(current.ID, "go", 0.50, now.Add(-time.Hour))

	warm := store.addPathway("Data Engineer")
	store.addSignal(warm.ID, "spark", 0.60, now.Add(-time.Hour)) // ten points, below the bar

	o := New(store, nil, config.DefaultScoringConfig(), nil)
	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), PivotMode: true, Now: now})

	require.NoError(t, err)
	assert.False(t, plan.PivotRecommended)
	assert.Empty(t, plan.PivotTarget)
	assert.Contains(t, plan.PivotReason, "no pivot needed")
}

func TestBuildPlanSkipsPivotWithoutPivotMode(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	current := store.addPathway("Backend Engineer")
	store.userPathway = current.ID
	store.publish(current.ID, "go")

	hot := store.addPathway("ML Platform Engineer")
	store.addSignal(hot.ID, "pytorch", 0.90, now.Add(-time.Hour))

	o := New(store, nil, config.DefaultScoringConfig(), nil)
	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), Now: now})

	require.NoError(t, err)
	assert.False(t, plan.PivotRecommended)
}

// fakeLLM answers every call with a canned JSON document.
type fakeLLM struct {
	json string
	err  error
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	return f.json, f.err
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	return f.json, f.err
}

func (f *fakeLLM) GetModel(_ llm.ModelTier) string { return "fake-model" }
func (f *fakeLLM) Close() error                    { return nil }

func TestBuildPlanUsesAIPlanner(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	store.publish(pathway.ID, "go")

	client := &fakeLLM{json: `{
		"day_0_30": ["Day 5: Ship a Go CLI, because the gap audit flags go."],
		"day_31_60": ["Day 40: Publish the project, because repositories verify without certificates."],
		"day_61_90": ["Day 70: Sit a certificate exam, because verified certificates carry a bonus."],
		"weekly_checkboxes": ["Log two hours against the top gap"]
	}`}
	o := New(store, client, config.DefaultScoringConfig(), nil)
	userID := uuid.New()

	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: userID, Now: time.Now()})

	require.NoError(t, err)
	assert.Equal(t, "ai", plan.GeneratedBy)
	require.Len(t, plan.Day0To30, 1)
	assert.Contains(t, plan.Day0To30[0], "Go CLI")

	require.Len(t, store.audits, 1)
	assert.Equal(t, "mission_orchestrator", store.audits[0].Feature)
	require.NotNil(t, store.audits[0].UserID)
	assert.Equal(t, userID, *store.audits[0].UserID)
}

func TestBuildPlanFallsBackWhenPlannerFails(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	store.publish(pathway.ID, "go")

	o := New(store, &fakeLLM{err: errors.New("model overloaded")}, config.DefaultScoringConfig(), nil)
	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), Now: time.Now()})

	require.NoError(t, err)
	assert.Equal(t, "rules", plan.GeneratedBy)
	assert.Len(t, plan.Day0To30, 3)
	assert.Empty(t, store.audits)
}

func TestBuildPlanFallsBackOnMalformedPlan(t *testing.T) {
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	store.publish(pathway.ID, "go")

	o := New(store, &fakeLLM{json: `{"day_0_30": []}`}, config.DefaultScoringConfig(), nil)
	plan, err := o.BuildPlan(context.Background(), PlanRequest{UserID: uuid.New(), Now: time.Now()})

	require.NoError(t, err)
	assert.Equal(t, "rules", plan.GeneratedBy)
}

func TestDemandIndex(t *testing.T) {
	now := time.Now()
	assert.Zero(t, demandIndex(nil, now))

	fresh := db.MarketSignal{Skill: "go", Frequency: 1.0, ObservedAt: now}
	stale := db.MarketSignal{Skill: "go", Frequency: 0.0, ObservedAt: now.Add(-180 * 24 * time.Hour)}

	// A lone signal maps straight to its frequency.
	assert.InDelta(t, 100.0, demandIndex([]db.MarketSignal{fresh}, now), 0.1)

	// The 180-day observation carries a quarter of the fresh one's weight.
	assert.InDelta(t, 80.0, demandIndex([]db.MarketSignal{fresh, stale}, now), 0.5)

	flipped := []db.MarketSignal{
		{Skill: "go", Frequency: 0.0, ObservedAt: now},
		{Skill: "go", Frequency: 1.0, ObservedAt: now.Add(-180 * 24 * time.Hour)},
	}
	assert.InDelta(t, 20.0, demandIndex(flipped, now), 0.5)
}
