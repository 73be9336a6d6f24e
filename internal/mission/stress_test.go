package mission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/config"
)

func TestStressTestHighResilienceCompounds(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	items := store.publish(pathway.ID, "go", "postgresql")
	userID := uuid.New()
	for _, item := range items {
		store.proofs = append(store.proofs, verifiedProof(userID, item.ID, "professional", now))
	}

	o := New(store, nil, config.DefaultScoringConfig(), nil)
	result, err := o.StressTest(context.Background(), userID, now)

	require.NoError(t, err)
	assert.Equal(t, 2, result.VerifiedDurable)
	assert.Equal(t, 2, result.TotalRequirement)
	assert.Equal(t, 1.0, result.Resilience)
	assert.Greater(t, result.Projected2027, result.CurrentScore)
	assert.LessOrEqual(t, result.Projected2027, 100.0)
	assert.Contains(t, result.Assessment, "Backend Engineer")
}

func TestStressTestNoEvidenceIsHighRisk(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	store.publish(pathway.ID, "go", "postgresql")

	o := New(store, nil, config.DefaultScoringConfig(), nil)
	result, err := o.StressTest(context.Background(), uuid.New(), now)

	require.NoError(t, err)
	assert.Zero(t, result.VerifiedDurable)
	assert.Equal(t, 0.0, result.Resilience)
	// Half multiplier at zero resilience.
	assert.InDelta(t, result.CurrentScore*0.5, result.Projected2027, 0.1)
	assert.Equal(t, "high", result.Risk)
}

func TestStressTestIntermediateCountsHalf(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	pathway := store.addPathway("Backend Engineer")
	store.userPathway = pathway.ID
	items := store.publish(pathway.ID, "go", "postgresql")
	userID := uuid.New()
	for _, item := range items {
		store.proofs = append(store.proofs, verifiedProof(userID, item.ID, "intermediate", now))
	}

	o := New(store, nil, config.DefaultScoringConfig(), nil)
	result, err := o.StressTest(context.Background(), userID, now)

	require.NoError(t, err)
	assert.Equal(t, 1, result.VerifiedDurable)
	assert.Equal(t, 0.5, result.Resilience)
}

func TestStressTestRequiresPathway(t *testing.T) {
	o := New(newFakeStore(), nil, config.DefaultScoringConfig(), nil)
	_, err := o.StressTest(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}
