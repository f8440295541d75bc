package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueSuggestion(t *testing.T, env *testEnv, a, b *domain.CanonicalEntity, at time.Time) {
	t.Helper()
	ok, err := env.side.Enqueue(context.Background(), domain.MergeSuggestion{
		EntityAID:   a.ID,
		EntityBID:   b.ID,
		SuggestedAt: at,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func seedPlaceholder(env *testEnv, phrase string, cat domain.Category, support int) *domain.CanonicalEntity {
	e := seedEntity(env, phrase, cat, support)
	e.IsPlaceholder = true
	env.store.Put(e)
	return e
}

func TestSuggestions_AtMostTwoPerRollingDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := range 5 {
		p := seedPlaceholder(env, "my app", domain.CategoryProject, 1)
		n := seedEntity(env, "Project"+string(rune('A'+i)), domain.CategoryProject, 1)
		queueSuggestion(t, env, p, n, baseTime.Add(time.Duration(i)*time.Minute))
	}

	first, err := env.suggestions.Surface(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	again, err := env.suggestions.Surface(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	env.clock.Advance(12 * time.Hour)
	again, err = env.suggestions.Surface(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	env.clock.Advance(13 * time.Hour)
	next, err := env.suggestions.Surface(ctx)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.NotEqual(t, first[0].PairKey(), next[0].PairKey())

	n, err := env.side.CountSurfacedSince(ctx, env.clock.Now().Add(-SuggestionWindow))
	require.NoError(t, err)
	assert.LessOrEqual(t, n, DefaultSuggestionDailyLimit)
}

func TestSuggestions_SkipSnoozesForAWeek(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPlaceholder(env, "the app", domain.CategoryProject, 1)
	n := seedEntity(env, "Ledger", domain.CategoryProject, 2)
	queueSuggestion(t, env, p, n, baseTime)

	shown, err := env.suggestions.Surface(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 1)

	sg, err := env.suggestions.Skip(ctx, p.ID, n.ID)
	require.NoError(t, err)
	require.NotNil(t, sg.SnoozedUntil)
	assert.Equal(t, baseTime.Add(SuggestionSnooze), *sg.SnoozedUntil)

	pending, err := env.suggestions.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "skipped suggestions stay pending")

	env.clock.Advance(2 * day)
	shown, err = env.suggestions.Surface(ctx)
	require.NoError(t, err)
	assert.Empty(t, shown)

	env.clock.Advance(6 * day)
	shown, err = env.suggestions.Surface(ctx)
	require.NoError(t, err)
	assert.Len(t, shown, 1)
}

func TestSuggestions_AcceptMergesIntoNamedEntity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPlaceholder(env, "my project", domain.CategoryProject, 4)
	n := seedEntity(env, "Ledger", domain.CategoryProject, 1)
	queueSuggestion(t, env, p, n, baseTime)

	survivor, err := env.suggestions.Accept(ctx, p.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, survivor.ID)
	assert.True(t, survivor.HasAlias("my project"))
	assert.Equal(t, 5, survivor.Belief.SupportCount)
	require.Len(t, survivor.MergeHistory, 1)
	assert.True(t, survivor.MergeHistory[0].UserInitiated)

	absorbed, err := env.store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, absorbed.MergedInto)
	assert.Equal(t, n.ID, *absorbed.MergedInto)

	_, err = env.side.Get(ctx, p.ID, n.ID)
	assert.Error(t, err)

	_, err = env.suggestions.Accept(ctx, p.ID, n.ID)
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestSuggestions_AcceptRefusesIncompatiblePair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := seedEntity(env, "Go", domain.CategorySkill, 1)
	b := seedEntity(env, "Gopher", domain.CategoryIdentity, 1)
	queueSuggestion(t, env, a, b, baseTime)

	_, err := env.suggestions.Accept(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, ErrMergeRefused)

	for _, id := range []*domain.CanonicalEntity{a, b} {
		got, err := env.store.GetByID(ctx, id.ID)
		require.NoError(t, err)
		assert.Nil(t, got.MergedInto)
	}
	pending, err := env.side.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSuggestions_StaleAfterMerge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPlaceholder(env, "it", domain.CategoryTool, 1)
	n := seedEntity(env, "Docker", domain.CategoryTool, 1)
	other := seedEntity(env, "Podman", domain.CategoryTool, 1)
	p.MergedInto = &other.ID
	env.store.Put(p)
	queueSuggestion(t, env, p, n, baseTime)

	_, err := env.suggestions.Accept(ctx, p.ID, n.ID)
	assert.ErrorIs(t, err, ErrSuggestionStale)

	pending, err := env.suggestions.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestChooseSurvivor(t *testing.T) {
	older := &domain.CanonicalEntity{FirstSeen: baseTime}
	newer := &domain.CanonicalEntity{FirstSeen: baseTime.Add(day)}
	s, _ := chooseSurvivor(newer, older)
	assert.Same(t, older, s)

	strong := &domain.CanonicalEntity{Belief: domain.BeliefState{SupportCount: 9}}
	weak := &domain.CanonicalEntity{Belief: domain.BeliefState{SupportCount: 1}}
	s, _ = chooseSurvivor(weak, strong)
	assert.Same(t, strong, s)

	ph := &domain.CanonicalEntity{IsPlaceholder: true, Belief: domain.BeliefState{SupportCount: 50}}
	s, _ = chooseSurvivor(ph, weak)
	assert.Same(t, weak, s)
}
