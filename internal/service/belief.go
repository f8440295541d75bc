package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/citation"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/metrics"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	BaseConfidence       = 0.5
	SupportDivisor       = 5.0
	MaxCorroboration     = 0.3
	MaxFeedbackDelta     = 0.3
	StabilityFloor       = 0.4
	StabilitySupport     = 3
	VisibilityThreshold  = 0.45
	SweepInterval        = 24 * time.Hour
	SweepChangeThreshold = 0.05
	AnomalyFallbackScore = 0.5

	sweepPageSize = 100
	maxMergeHops  = 16
)

var ErrEntityNotFound = errors.New("entity not found")

// RecencyFactor halves every halfLifeDays. Negative ages count as zero.
func RecencyFactor(daysSince, halfLifeDays float64) float64 {
	if daysSince < 0 {
		daysSince = 0
	}
	if halfLifeDays <= 0 {
		return 0
	}
	return math.Pow(0.5, daysSince/halfLifeDays)
}

// ComputeScore evaluates the belief formula for b at now. ok is false when
// the raw value was not a finite number, in which case the fallback score
// is returned.
func ComputeScore(b domain.BeliefState, now time.Time) (score float64, ok bool) {
	supportFactor := math.Log(1 + float64(b.SupportCount))
	daysSince := now.Sub(b.LastCorroboratedDate).Hours() / 24
	recency := RecencyFactor(daysSince, b.HalfLifeDays)

	raw := BaseConfidence*(supportFactor/SupportDivisor)*recency*b.AttributionWeight +
		math.Min(b.ExternalCorroboration, MaxCorroboration) +
		math.Min(b.UserFeedbackDelta, MaxFeedbackDelta)

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return AnomalyFallbackScore, false
	}

	floor := 0.0
	if b.StabilityFloorActive {
		floor = StabilityFloor
	}
	return math.Max(floor, math.Min(raw, 1.0)), true
}

// NewBeliefState seeds the belief of a freshly created entity.
func NewBeliefState(c domain.Category) domain.BeliefState {
	return domain.BeliefState{HalfLifeDays: c.HalfLifeDays()}
}

type SweepResult struct {
	Skipped   bool      `json:"skipped"`
	Scanned   int       `json:"scanned"`
	Updated   int       `json:"updated"`
	SweptAt   time.Time `json:"swept_at"`
	NextAfter time.Time `json:"next_after"`
}

type BeliefService struct {
	entities  domain.EntityStore
	marker    domain.SweepMarker
	authority *citation.AuthorityTable
	writer    domain.WriteLocker
	logger    *zap.Logger
	now       func() time.Time
}

func NewBeliefService(es domain.EntityStore, marker domain.SweepMarker, authority *citation.AuthorityTable, writer domain.WriteLocker, logger *zap.Logger) *BeliefService {
	if authority == nil {
		authority = citation.DefaultAuthorityTable()
	}
	return &BeliefService{
		entities:  es,
		marker:    marker,
		authority: authority,
		writer:    writer,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *BeliefService) SetClock(now func() time.Time) {
	s.now = now
}

// Recompute refreshes the entity's score in place and reports whether it changed.
func (s *BeliefService) Recompute(e *domain.CanonicalEntity, now time.Time) bool {
	b := &e.Belief
	if b.HalfLifeDays <= 0 {
		b.HalfLifeDays = e.Category.HalfLifeDays()
	}
	if b.SupportCount >= StabilitySupport {
		b.StabilityFloorActive = true
	}

	score, ok := ComputeScore(*b, now)
	if !ok {
		metrics.ScoreAnomalies.Inc()
		s.logger.Warn("belief score anomaly, using fallback",
			zap.String("entity_id", e.ID.String()),
			zap.Int("support_count", b.SupportCount),
			zap.Float64("fallback", score),
		)
	}

	changed := score != b.CurrentScore
	b.CurrentScore = score
	b.LastCalculated = now
	return changed
}

// Support records a supporting fragment's attribution and timestamp on the
// entity's belief. The score itself is recomputed later.
func (s *BeliefService) Support(e *domain.CanonicalEntity, f domain.CandidateFragment) {
	if w := f.Attribution.Weight(); w > e.Belief.AttributionWeight {
		e.Belief.AttributionWeight = w
	}
	if f.ConversationTimestamp.After(e.Belief.LastCorroboratedDate) {
		e.Belief.LastCorroboratedDate = f.ConversationTimestamp
	}
}

// Corroborate adds the citation's domain authority to the entity, capped
// at MaxCorroboration in total.
func (s *BeliefService) Corroborate(e *domain.CanonicalEntity, c *domain.CitationReference) {
	boost := s.authority.Score(c.Domain)
	e.Belief.ExternalCorroboration = math.Min(e.Belief.ExternalCorroboration+boost, MaxCorroboration)
	if c.FirstCitedDate.After(e.Belief.LastCorroboratedDate) {
		e.Belief.LastCorroboratedDate = c.FirstCitedDate
	}
}

// Sweep recomputes decay for every entity at most once per SweepInterval.
// Entities whose score would move less than SweepChangeThreshold are left
// untouched.
func (s *BeliefService) Sweep(ctx context.Context) (*SweepResult, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	last, err := s.marker.LastSweep(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last sweep: %w", err)
	}
	if !last.IsZero() && now.Sub(last) < SweepInterval {
		s.logger.Debug("decay sweep skipped", zap.Time("last_sweep", last))
		return &SweepResult{Skipped: true, SweptAt: last, NextAfter: last.Add(SweepInterval)}, nil
	}

	result := &SweepResult{SweptAt: now, NextAfter: now.Add(SweepInterval)}
	after := uuid.Nil
	for {
		page, err := s.entities.List(ctx, after, sweepPageSize)
		if err != nil {
			return result, fmt.Errorf("list entities: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			e := &page[i]
			result.Scanned++

			old := e.Belief.CurrentScore
			next := *e
			s.Recompute(&next, now)
			if math.Abs(next.Belief.CurrentScore-old) < SweepChangeThreshold {
				continue
			}
			if err := s.entities.Update(ctx, &next); err != nil {
				s.logger.Error("sweep update failed", zap.String("entity_id", e.ID.String()), zap.Error(err))
				continue
			}
			result.Updated++
			metrics.SweepWrites.Inc()
		}
		after = page[len(page)-1].ID
	}

	if err := s.marker.MarkSweep(ctx, now); err != nil {
		return result, fmt.Errorf("mark sweep: %w", err)
	}

	s.logger.Info("decay sweep complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// acquireWriter takes the graph writer lock. Every entity read-modify-write
// happens while it is held.
func acquireWriter(ctx context.Context, l domain.WriteLocker) (func(), error) {
	unlock, err := l.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	return unlock, nil
}

// liveEntity loads an entity and follows merge links to the survivor.
func liveEntity(ctx context.Context, es domain.EntityStore, id uuid.UUID) (*domain.CanonicalEntity, error) {
	for range maxMergeHops {
		e, err := es.GetByID(ctx, id)
		if err != nil {
			return nil, notFoundAs(err, ErrEntityNotFound)
		}
		if !e.Absorbed() {
			return e, nil
		}
		id = *e.MergedInto
	}
	return nil, fmt.Errorf("entity %s: merge chain too long", id)
}

// notFoundAs maps the store's not-found sentinel to a service error.
func notFoundAs(err, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}
