package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSuggestionDailyLimit = 2
	SuggestionWindow            = 24 * time.Hour
	SuggestionSnooze            = 7 * 24 * time.Hour
)

var (
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrSuggestionStale    = errors.New("suggestion no longer applies")
)

type SuggestionView struct {
	domain.MergeSuggestion
	EntityA *domain.CanonicalEntity `json:"entity_a"`
	EntityB *domain.CanonicalEntity `json:"entity_b"`
}

type SuggestionService struct {
	entities  domain.EntityStore
	citations domain.CitationStore
	decisions domain.MergeDecisionStore
	committer domain.BatchCommitter
	side      domain.SuggestionStore
	belief    *BeliefService
	writer    domain.WriteLocker
	logger    *zap.Logger
	now       func() time.Time

	DailyLimit int
}

func NewSuggestionService(
	es domain.EntityStore,
	cs domain.CitationStore,
	ds domain.MergeDecisionStore,
	committer domain.BatchCommitter,
	side domain.SuggestionStore,
	belief *BeliefService,
	writer domain.WriteLocker,
	logger *zap.Logger,
) *SuggestionService {
	return &SuggestionService{
		entities:   es,
		citations:  cs,
		decisions:  ds,
		committer:  committer,
		side:       side,
		belief:     belief,
		writer:     writer,
		logger:     logger,
		now:        time.Now,
		DailyLimit: DefaultSuggestionDailyLimit,
	}
}

func (s *SuggestionService) SetClock(now func() time.Time) {
	s.now = now
}

// Pending lists every queued suggestion that still applies, snoozed ones included.
func (s *SuggestionService) Pending(ctx context.Context) ([]SuggestionView, error) {
	pending, err := s.side.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SuggestionView, 0, len(pending))
	for _, sg := range pending {
		view, err := s.view(ctx, sg)
		if errors.Is(err, ErrSuggestionStale) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// Surface marks up to the remaining rolling-window allowance of pending
// suggestions as shown and returns them. Each surfacing reserves its slot
// in the side store atomically, so the limit holds across processes.
func (s *SuggestionService) Surface(ctx context.Context) ([]SuggestionView, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	since := now.Add(-SuggestionWindow)
	shown, err := s.side.CountSurfacedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count surfaced: %w", err)
	}
	if shown >= s.DailyLimit {
		return nil, nil
	}

	pending, err := s.side.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var out []SuggestionView
	for _, sg := range pending {
		if sg.SurfacedAt != nil || sg.Snoozed(now) {
			continue
		}
		view, err := s.view(ctx, sg)
		if errors.Is(err, ErrSuggestionStale) {
			continue
		}
		if err != nil {
			return out, err
		}

		ok, err := s.side.ReserveSurface(ctx, sg.PairKey(), now, since, s.DailyLimit)
		if err != nil {
			return out, fmt.Errorf("reserve surface: %w", err)
		}
		if !ok {
			break
		}
		at := now
		view.SurfacedAt = &at
		if err := s.side.Update(ctx, view.MergeSuggestion); err != nil {
			return out, fmt.Errorf("update suggestion: %w", err)
		}
		metrics.SuggestionsSurfaced.Inc()
		out = append(out, *view)
	}
	return out, nil
}

// Skip snoozes the suggestion for a week. It stays pending.
func (s *SuggestionService) Skip(ctx context.Context, a, b uuid.UUID) (*domain.MergeSuggestion, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sg, err := s.get(ctx, a, b)
	if err != nil {
		return nil, err
	}
	until := s.now().Add(SuggestionSnooze)
	sg.SnoozedUntil = &until
	sg.SurfacedAt = nil
	if err := s.side.Update(ctx, *sg); err != nil {
		return nil, err
	}
	return sg, nil
}

// Reject records a durable kept-separate decision so the pair is never
// suggested again.
func (s *SuggestionService) Reject(ctx context.Context, a, b uuid.UUID) (*domain.MergeDecision, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.get(ctx, a, b); err != nil {
		return nil, err
	}
	now := s.now()

	ws := newWorkset(s.entities, s.citations, s.decisions)
	ea, eb, err := s.pair(ctx, ws, a, b)
	if err != nil {
		return nil, s.dropIfStale(ctx, a, b, err)
	}

	d := ws.recordDecision(ea, eb, domain.DecisionKeptSeparate, true, now)
	ea.RemovePendingAlias(eb.ID)
	eb.RemovePendingAlias(ea.ID)

	if err := s.committer.CommitBatch(ctx, ws.batch("", 0)); err != nil {
		return nil, fmt.Errorf("commit decision: %w", err)
	}
	if err := s.side.Remove(ctx, a, b); err != nil {
		s.logger.Warn("failed to drop rejected suggestion", zap.String("pair", d.PairKey()), zap.Error(err))
	}
	return &d, nil
}

// Accept merges the pair. A placeholder never survives; otherwise the
// better-supported entity does.
func (s *SuggestionService) Accept(ctx context.Context, a, b uuid.UUID) (*domain.CanonicalEntity, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.get(ctx, a, b); err != nil {
		return nil, err
	}
	now := s.now()

	ws := newWorkset(s.entities, s.citations, s.decisions)
	ea, eb, err := s.pair(ctx, ws, a, b)
	if err != nil {
		return nil, s.dropIfStale(ctx, a, b, err)
	}

	survivor, absorbed := chooseSurvivor(ea, eb)
	if err := ws.merge(ctx, survivor, absorbed, domain.TierC, true, now); err != nil {
		return nil, s.dropIfStale(ctx, a, b, err)
	}
	s.belief.Recompute(survivor, now)

	if err := s.committer.CommitBatch(ctx, ws.batch("", 0)); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	if err := s.side.Remove(ctx, a, b); err != nil {
		s.logger.Warn("failed to drop accepted suggestion", zap.String("pair", domain.PairKey(a, b)), zap.Error(err))
	}

	s.logger.Info("merge suggestion accepted",
		zap.String("survivor_id", survivor.ID.String()),
		zap.String("absorbed_id", absorbed.ID.String()),
	)
	return survivor, nil
}

func (s *SuggestionService) get(ctx context.Context, a, b uuid.UUID) (*domain.MergeSuggestion, error) {
	sg, err := s.side.Get(ctx, a, b)
	if err != nil {
		return nil, notFoundAs(err, ErrSuggestionNotFound)
	}
	return sg, nil
}

// pair loads both entities and checks that the suggestion still applies.
func (s *SuggestionService) pair(ctx context.Context, ws *workset, a, b uuid.UUID) (*domain.CanonicalEntity, *domain.CanonicalEntity, error) {
	ea, err := ws.entity(ctx, a)
	if err != nil {
		return nil, nil, staleOnMissing(err)
	}
	eb, err := ws.entity(ctx, b)
	if err != nil {
		return nil, nil, staleOnMissing(err)
	}
	if ea.ID != a || eb.ID != b {
		return nil, nil, ErrSuggestionStale
	}
	d, err := ws.decided(ctx, a, b)
	if err != nil {
		return nil, nil, err
	}
	if d != nil {
		return nil, nil, ErrSuggestionStale
	}
	return ea, eb, nil
}

func (s *SuggestionService) view(ctx context.Context, sg domain.MergeSuggestion) (*SuggestionView, error) {
	ws := newWorkset(s.entities, s.citations, s.decisions)
	ea, eb, err := s.pair(ctx, ws, sg.EntityAID, sg.EntityBID)
	if err != nil {
		return nil, s.dropIfStale(ctx, sg.EntityAID, sg.EntityBID, err)
	}
	return &SuggestionView{MergeSuggestion: sg, EntityA: ea, EntityB: eb}, nil
}

// dropIfStale removes a suggestion that can no longer be acted on and
// passes err through.
func (s *SuggestionService) dropIfStale(ctx context.Context, a, b uuid.UUID, err error) error {
	if errors.Is(err, ErrSuggestionStale) || errors.Is(err, ErrMergeRefused) {
		if rmErr := s.side.Remove(ctx, a, b); rmErr != nil {
			s.logger.Warn("failed to drop stale suggestion", zap.String("pair", domain.PairKey(a, b)), zap.Error(rmErr))
		}
	}
	return err
}

func staleOnMissing(err error) error {
	return notFoundAs(err, ErrSuggestionStale)
}

func chooseSurvivor(a, b *domain.CanonicalEntity) (survivor, absorbed *domain.CanonicalEntity) {
	switch {
	case a.IsPlaceholder != b.IsPlaceholder:
		if a.IsPlaceholder {
			return b, a
		}
		return a, b
	case a.Belief.SupportCount != b.Belief.SupportCount:
		if b.Belief.SupportCount > a.Belief.SupportCount {
			return b, a
		}
		return a, b
	case b.FirstSeen.Before(a.FirstSeen):
		return b, a
	}
	return a, b
}
