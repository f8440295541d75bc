package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntity(env *testEnv, text string, cat domain.Category, support int) *domain.CanonicalEntity {
	e := &domain.CanonicalEntity{
		ID:            uuid.New(),
		CanonicalText: text,
		Category:      cat,
		FirstSeen:     baseTime,
		LastSeen:      baseTime,
		Facets:        domain.FacetAssignmentsFor(cat),
		Belief:        NewBeliefState(cat),
		Sensitivity:   cat.DefaultSensitivity(),
		PrimarySpace:  domain.SpaceGeneral,
	}
	for range support {
		e.AddSupport(uuid.New())
	}
	e.Belief.AttributionWeight = 1.0
	e.Belief.LastCorroboratedDate = baseTime
	env.belief.Recompute(e, baseTime)
	env.store.Put(e)
	return e
}

func TestApplyFeedback_Deltas(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		signal domain.FeedbackSignal
		want   float64
	}{
		{domain.FeedbackCopied, 0.15},
		{domain.FeedbackLongPressCopied, 0.15},
		{domain.FeedbackCardIncluded, 0.20},
		{domain.FeedbackConfirmed, 0.25},
		{domain.FeedbackDismissed, -0.40},
	}
	for _, tt := range tests {
		t.Run(string(tt.signal), func(t *testing.T) {
			env := newTestEnv(t)
			e := seedEntity(env, "Go", domain.CategorySkill, 1)

			got, err := env.belief.ApplyFeedback(ctx, e.ID, tt.signal)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Belief.UserFeedbackDelta, 1e-9)

			stored, err := env.store.GetByID(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, got.Belief.CurrentScore, stored.Belief.CurrentScore)
		})
	}
}

func TestApplyFeedback_ViewedAppliesOnThirdView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e := seedEntity(env, "Go", domain.CategorySkill, 1)

	var got *domain.CanonicalEntity
	var err error
	for i := 1; i <= 4; i++ {
		got, err = env.belief.ApplyFeedback(ctx, e.ID, domain.FeedbackViewed)
		require.NoError(t, err)
		if i < 3 {
			assert.Zero(t, got.Belief.UserFeedbackDelta, "view %d", i)
		}
	}
	assert.Equal(t, 4, got.Belief.ViewCount)
	assert.InDelta(t, 0.05, got.Belief.UserFeedbackDelta, 1e-9)
}

func TestApplyFeedback_PositiveAccumulationCapped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e := seedEntity(env, "Go", domain.CategorySkill, 1)

	var got *domain.CanonicalEntity
	var err error
	for range 5 {
		got, err = env.belief.ApplyFeedback(ctx, e.ID, domain.FeedbackConfirmed)
		require.NoError(t, err)
	}
	assert.InDelta(t, 1.25, got.Belief.UserFeedbackDelta, 1e-9)

	capped := got.Belief
	capped.UserFeedbackDelta = MaxFeedbackDelta
	want, _ := ComputeScore(capped, baseTime)
	assert.InDelta(t, want, got.Belief.CurrentScore, 1e-9, "the formula caps the positive side")

	got, err = env.belief.ApplyFeedback(ctx, e.ID, domain.FeedbackDismissed)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, got.Belief.UserFeedbackDelta, 1e-9)
	assert.True(t, got.Belief.CurrentScore >= 0 && got.Belief.CurrentScore <= 1)
	assert.False(t, math.IsNaN(got.Belief.CurrentScore))
}

func TestApplyFeedback_DismissAfterConfirmsKeepsSurplus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e := seedEntity(env, "Go", domain.CategorySkill, 1)

	for range 2 {
		_, err := env.belief.ApplyFeedback(ctx, e.ID, domain.FeedbackConfirmed)
		require.NoError(t, err)
	}
	got, err := env.belief.ApplyFeedback(ctx, e.ID, domain.FeedbackDismissed)
	require.NoError(t, err)

	// 0.25 + 0.25 - 0.40; capping on accumulation would leave -0.10
	assert.InDelta(t, 0.10, got.Belief.UserFeedbackDelta, 1e-9)
	want, _ := ComputeScore(got.Belief, baseTime)
	assert.InDelta(t, want, got.Belief.CurrentScore, 1e-9)
}

func TestApplyFeedback_FollowsMerge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	survivor := seedEntity(env, "ContextKey", domain.CategoryProject, 2)
	absorbed := seedEntity(env, "CK", domain.CategoryProject, 1)
	absorbed.MergedInto = &survivor.ID
	env.store.Put(absorbed)

	got, err := env.belief.ApplyFeedback(ctx, absorbed.ID, domain.FeedbackCopied)
	require.NoError(t, err)
	assert.Equal(t, survivor.ID, got.ID)
}

func TestApplyFeedback_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e := seedEntity(env, "Go", domain.CategorySkill, 1)

	_, err := env.belief.ApplyFeedback(ctx, e.ID, "liked")
	assert.True(t, errors.Is(err, ErrFeedbackInvalidSignal))

	_, err = env.belief.ApplyFeedback(ctx, uuid.New(), domain.FeedbackCopied)
	assert.True(t, errors.Is(err, ErrEntityNotFound))

	_, err = env.belief.ApplyCardFeedback(ctx, []uuid.UUID{e.ID}, domain.FeedbackCopied)
	assert.True(t, errors.Is(err, ErrFeedbackNotCardSignal))
}

func TestApplyCardFeedback_EachEntityOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := seedEntity(env, "Go", domain.CategorySkill, 1)
	b := seedEntity(env, "Rust", domain.CategorySkill, 1)

	got, err := env.belief.ApplyCardFeedback(ctx, []uuid.UUID{a.ID, b.ID, a.ID}, domain.FeedbackCardCopied)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.InDelta(t, 0.10, e.Belief.UserFeedbackDelta, 1e-9)
	}
}
