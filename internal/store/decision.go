package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MergeDecisionStore keeps one decision per unordered entity pair. A later
// decision for the same pair replaces the earlier one.
type MergeDecisionStore struct {
	db *pgxpool.Pool
}

func NewMergeDecisionStore(db *pgxpool.Pool) *MergeDecisionStore {
	return &MergeDecisionStore{db: db}
}

func (s *MergeDecisionStore) GetDecision(ctx context.Context, a, b uuid.UUID) (*domain.MergeDecision, error) {
	d := &domain.MergeDecision{}
	var decision string
	err := s.db.QueryRow(ctx,
		`SELECT entity_a_id, entity_b_id, decision, decided_at, user_initiated
		 FROM merge_decisions WHERE pair_key = $1`,
		domain.PairKey(a, b),
	).Scan(&d.EntityAID, &d.EntityBID, &decision, &d.DecidedAt, &d.UserInitiated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Decision = domain.Decision(decision)
	return d, nil
}

func (s *MergeDecisionStore) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]domain.MergeDecision, error) {
	rows, err := s.db.Query(ctx,
		`SELECT entity_a_id, entity_b_id, decision, decided_at, user_initiated
		 FROM merge_decisions
		 WHERE entity_a_id = $1 OR entity_b_id = $1
		 ORDER BY decided_at, pair_key`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MergeDecision
	for rows.Next() {
		var d domain.MergeDecision
		var decision string
		if err := rows.Scan(&d.EntityAID, &d.EntityBID, &decision, &d.DecidedAt, &d.UserInitiated); err != nil {
			return nil, err
		}
		d.Decision = domain.Decision(decision)
		out = append(out, d)
	}
	return out, rows.Err()
}

const upsertDecisionSQL = `INSERT INTO merge_decisions (pair_key, entity_a_id, entity_b_id, decision, decided_at, user_initiated)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (pair_key) DO UPDATE SET
		entity_a_id = EXCLUDED.entity_a_id,
		entity_b_id = EXCLUDED.entity_b_id,
		decision = EXCLUDED.decision,
		decided_at = EXCLUDED.decided_at,
		user_initiated = EXCLUDED.user_initiated`
