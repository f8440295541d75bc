package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConflictService exposes entities whose past merge was contradicted. The
// merge itself is never undone here; a human clears the flag.
type ConflictService struct {
	entities domain.EntityStore
	queue    domain.ReviewQueue
	writer   domain.WriteLocker
	logger   *zap.Logger
}

func NewConflictService(es domain.EntityStore, queue domain.ReviewQueue, writer domain.WriteLocker, logger *zap.Logger) *ConflictService {
	return &ConflictService{entities: es, queue: queue, writer: writer, logger: logger}
}

func (s *ConflictService) List(ctx context.Context) ([]domain.CanonicalEntity, error) {
	flagged, err := s.entities.ListConflicts(ctx)
	if err != nil {
		return nil, err
	}

	queued, err := s.queue.ListConflicts(ctx)
	if err != nil {
		s.logger.Warn("review queue unavailable, listing flagged entities only", zap.Error(err))
		return flagged, nil
	}

	seen := make(map[uuid.UUID]bool, len(flagged))
	for _, e := range flagged {
		seen[e.ID] = true
	}
	var missing []uuid.UUID
	for _, id := range queued {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return flagged, nil
	}

	extra, err := s.entities.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, e := range extra {
		if e.HasMergeConflict && !e.Absorbed() {
			flagged = append(flagged, e)
		}
	}
	return flagged, nil
}

// Resolve clears the conflict flag after human review.
func (s *ConflictService) Resolve(ctx context.Context, entityID uuid.UUID) (*domain.CanonicalEntity, error) {
	unlock, err := acquireWriter(ctx, s.writer)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, notFoundAs(err, ErrEntityNotFound)
	}
	if e.HasMergeConflict {
		e.HasMergeConflict = false
		if err := s.entities.Update(ctx, e); err != nil {
			return nil, fmt.Errorf("update entity %s: %w", e.ID, err)
		}
	}
	if err := s.queue.RemoveConflict(ctx, entityID); err != nil {
		s.logger.Warn("failed to remove entity from review queue", zap.String("entity_id", entityID.String()), zap.Error(err))
	}
	return e, nil
}
