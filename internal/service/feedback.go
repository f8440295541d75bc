package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrFeedbackInvalidSignal = errors.New("invalid signal_type")
	ErrFeedbackNotCardSignal = errors.New("signal_type does not apply to cards")
	ErrFeedbackNoEntities    = errors.New("entity_ids is required")
)

// addFeedback applies one signal to the belief. The stored delta is the
// plain running sum; ComputeScore caps its positive side at MaxFeedbackDelta.
func addFeedback(b *domain.BeliefState, signal domain.FeedbackSignal) {
	effect := domain.FeedbackEffects[signal]
	if signal == domain.FeedbackViewed {
		b.ViewCount++
	}
	if effect.AtViewCount > 0 && b.ViewCount != effect.AtViewCount {
		return
	}
	b.UserFeedbackDelta += effect.Delta
}

// ApplyFeedback records an explicit signal against one entity and
// recomputes its score immediately. Signals aimed at an absorbed entity
// land on the entity that absorbed it.
func (s *BeliefService) ApplyFeedback(ctx context.Context, entityID uuid.UUID, signal domain.FeedbackSignal) (*domain.CanonicalEntity, error) {
	if !domain.ValidFeedbackSignal(string(signal)) {
		return nil, ErrFeedbackInvalidSignal
	}

	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, err := liveEntity(ctx, s.entities, entityID)
	if err != nil {
		return nil, err
	}

	before := e.Belief.CurrentScore
	addFeedback(&e.Belief, signal)
	s.Recompute(e, s.now())

	if err := s.entities.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update entity %s: %w", e.ID, err)
	}

	s.logger.Debug("applied feedback",
		zap.String("entity_id", e.ID.String()),
		zap.String("signal", string(signal)),
		zap.Float64("old_score", before),
		zap.Float64("new_score", e.Belief.CurrentScore),
	)
	return e, nil
}

// ApplyCardFeedback applies a card signal to every distinct entity on the card.
func (s *BeliefService) ApplyCardFeedback(ctx context.Context, entityIDs []uuid.UUID, signal domain.FeedbackSignal) ([]domain.CanonicalEntity, error) {
	if !domain.ValidFeedbackSignal(string(signal)) {
		return nil, ErrFeedbackInvalidSignal
	}
	if !signal.CardSignal() {
		return nil, ErrFeedbackNotCardSignal
	}
	if len(entityIDs) == 0 {
		return nil, ErrFeedbackNoEntities
	}

	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	seen := make(map[uuid.UUID]bool, len(entityIDs))
	var out []domain.CanonicalEntity
	for _, id := range entityIDs {
		e, err := liveEntity(ctx, s.entities, id)
		if err != nil {
			return out, err
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true

		addFeedback(&e.Belief, signal)
		s.Recompute(e, s.now())
		if err := s.entities.Update(ctx, e); err != nil {
			return out, fmt.Errorf("update entity %s: %w", e.ID, err)
		}
		out = append(out, *e)
	}
	return out, nil
}
