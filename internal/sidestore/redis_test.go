package sidestore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, "test:", zap.NewNop())
}

func TestRedisStore_SuggestionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	ok, err := s.Enqueue(ctx, domain.MergeSuggestion{EntityAID: a, EntityBID: b, SuggestedAt: at})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Enqueue(ctx, domain.MergeSuggestion{EntityAID: b, EntityBID: a, SuggestedAt: at.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok, "pair order does not matter")

	got, err := s.Get(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, got.SuggestedAt.Equal(at))

	until := at.Add(7 * 24 * time.Hour)
	got.SnoozedUntil = &until
	require.NoError(t, s.Update(ctx, *got))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].SnoozedUntil)
	assert.True(t, pending[0].SnoozedUntil.Equal(until))

	require.NoError(t, s.Remove(ctx, a, b))
	_, err = s.Get(ctx, a, b)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, *got), store.ErrNotFound)
}

func TestRedisStore_SurfaceLogRollingWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	window := func(at time.Time) time.Time { return at.Add(-24 * time.Hour) }

	for _, at := range []time.Time{now.Add(-30 * time.Hour), now.Add(-2 * time.Hour), now} {
		ok, err := s.ReserveSurface(ctx, "a:b", at, window(at), 2)
		require.NoError(t, err)
		assert.True(t, ok, "reserve at %v", at)
	}

	n, err := s.CountSurfacedSince(ctx, window(now))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := s.ReserveSurface(ctx, "c:d", now.Add(time.Hour), window(now.Add(time.Hour)), 2)
	require.NoError(t, err)
	assert.False(t, ok, "window is full")

	ok, err = s.ReserveSurface(ctx, "e:f", now.Add(50*time.Hour), window(now.Add(50*time.Hour)), 2)
	require.NoError(t, err)
	assert.True(t, ok)
	n, err = s.CountSurfacedSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "entries past retention are trimmed")
}

func TestRedisStore_ReserveSurfaceConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ReserveSurface(ctx, fmt.Sprintf("pair-%d", i), now, now.Add(-24*time.Hour), 2)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, granted.Load())
	n, err := s.CountSurfacedSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisStore_ConflictQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, s.PushConflict(ctx, id))
	require.NoError(t, s.PushConflict(ctx, id))

	ids, err := s.ListConflicts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	require.NoError(t, s.RemoveConflict(ctx, id))
	ids, err = s.ListConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_SweepMarkerAndPersonas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastSweep(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	at := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.MarkSweep(ctx, at))
	last, err = s.LastSweep(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(at))

	status, err := s.GetStatus(ctx, "professional")
	require.NoError(t, err)
	assert.Equal(t, domain.PersonaDraft, status)

	require.NoError(t, s.SetStatus(ctx, "professional", domain.PersonaConfirmed))
	status, err = s.GetStatus(ctx, "professional")
	require.NoError(t, err)
	assert.Equal(t, domain.PersonaConfirmed, status)
}
