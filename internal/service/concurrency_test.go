package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/citation"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// hookedEntities runs onGet once, right after the target entity is read.
type hookedEntities struct {
	domain.EntityStore
	target uuid.UUID
	once   sync.Once
	onGet  func()
}

func (h *hookedEntities) GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalEntity, error) {
	e, err := h.EntityStore.GetByID(ctx, id)
	if id == h.target {
		h.once.Do(h.onGet)
	}
	return e, err
}

// stallingSide holds each surface count open until a second caller arrives
// or a short timeout passes.
type stallingSide struct {
	*memstore.SideStore
	peer chan struct{}
}

func (s *stallingSide) CountSurfacedSince(ctx context.Context, since time.Time) (int, error) {
	n, err := s.SideStore.CountSurfacedSince(ctx, since)
	select {
	case s.peer <- struct{}{}:
	case <-s.peer:
	case <-time.After(100 * time.Millisecond):
	}
	return n, err
}

func TestFeedbackDuringPromotionKeepsBothWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.resolver.Reconcile(ctx, ImportRequest{Fragments: []domain.CandidateFragment{
		frag("ContextKey", domain.CategoryProject, "conv-1", 3, baseTime),
		frag("my app", domain.CategoryProject, "conv-1", 5, baseTime),
	}})
	require.NoError(t, err)
	ck := env.liveByText(t, "ContextKey")
	env.clock.Advance(2 * day)

	done := make(chan error, 1)
	hooked := &hookedEntities{EntityStore: env.store, target: ck.ID}
	hooked.onGet = func() {
		go func() {
			_, err := env.resolver.Reconcile(ctx, ImportRequest{Fragments: []domain.CandidateFragment{
				frag("ContextKey", domain.CategoryProject, "conv-2", 1, baseTime.Add(2*day)),
				frag("My App", domain.CategoryProject, "conv-2", 4, baseTime.Add(2*day)),
			}})
			done <- err
		}()
		// give the promotion every chance to land between read and write
		select {
		case err := <-done:
			done <- err
		case <-time.After(100 * time.Millisecond):
		}
	}

	feedback := NewBeliefService(hooked, env.side, citation.DefaultAuthorityTable(), env.writer, zap.NewNop())
	feedback.SetClock(env.clock.Now)
	_, err = feedback.ApplyFeedback(ctx, ck.ID, domain.FeedbackConfirmed)
	require.NoError(t, err)
	require.NoError(t, <-done)

	ck = env.liveByText(t, "ContextKey")
	assert.True(t, ck.HasAlias("my app"), "promotion lost to a stale feedback write")
	assert.InDelta(t, 0.25, ck.Belief.UserFeedbackDelta, 1e-9)
	assert.Equal(t, 1, env.countLive())
	for _, e := range env.store.All() {
		if e.IsPlaceholder {
			require.NotNil(t, e.MergedInto)
			assert.Equal(t, ck.ID, *e.MergedInto)
		}
	}
}

func TestFeedbackWaitsForWriter(t *testing.T) {
	env := newTestEnv(t)
	e := seedEntity(env, "Go", domain.CategorySkill, 1)

	unlock, err := env.writer.Lock(context.Background())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = env.belief.ApplyFeedback(ctx, e.ID, domain.FeedbackConfirmed)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := env.store.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Belief.UserFeedbackDelta)
}

func TestConcurrentSurfaceHonoursDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := range 6 {
		p := seedPlaceholder(env, "my app", domain.CategoryProject, 1)
		n := seedEntity(env, "Project"+string(rune('A'+i)), domain.CategoryProject, 1)
		queueSuggestion(t, env, p, n, baseTime.Add(time.Duration(i)*time.Minute))
	}

	side := &stallingSide{SideStore: env.side, peer: make(chan struct{})}
	svc := NewSuggestionService(env.store, memstore.CitationStore{Store: env.store}, env.store, env.store, side, env.belief, env.writer, zap.NewNop())
	svc.SetClock(env.clock.Now)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shown, err := svc.Surface(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += len(shown)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultSuggestionDailyLimit, total)
	n, err := env.side.CountSurfacedSince(ctx, env.clock.Now().Add(-SuggestionWindow))
	require.NoError(t, err)
	assert.Equal(t, DefaultSuggestionDailyLimit, n)
}
