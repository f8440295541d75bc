package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BatchStore commits reconciliation batches. Each batch is one transaction
// and carries its import checkpoint.
type BatchStore struct {
	db *pgxpool.Pool
}

func NewBatchStore(db *pgxpool.Pool) *BatchStore {
	return &BatchStore{db: db}
}

func (s *BatchStore) CommitBatch(ctx context.Context, b *domain.Batch) error {
	if b.Empty() && b.ImportID == "" {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch %d: %w", b.Index, err)
	}
	defer tx.Rollback(ctx)

	for _, e := range b.Entities {
		args, err := entityArgs(e)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, upsertEntitySQL, args...).Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.ID, err)
		}
	}

	for _, c := range b.Citations {
		if _, err := tx.Exec(ctx, upsertCitationSQL, citationArgs(c)...); err != nil {
			if isUniqueViolation(err) {
				err = ErrConflict
			}
			return fmt.Errorf("upsert citation %s: %w", c.URL, err)
		}
	}

	for _, d := range b.Decisions {
		if _, err := tx.Exec(ctx, upsertDecisionSQL,
			d.PairKey(), d.EntityAID, d.EntityBID, string(d.Decision), d.DecidedAt, d.UserInitiated,
		); err != nil {
			return fmt.Errorf("upsert decision %s: %w", d.PairKey(), err)
		}
	}

	if b.ImportID != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO import_checkpoints (import_id, batch_index)
			 VALUES ($1, $2)
			 ON CONFLICT (import_id) DO UPDATE
			 SET batch_index = GREATEST(import_checkpoints.batch_index, EXCLUDED.batch_index),
			     updated_at = NOW()`,
			b.ImportID, b.Index,
		); err != nil {
			return fmt.Errorf("record checkpoint: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %d: %w", b.Index, err)
	}
	return nil
}

func (s *BatchStore) LastCommittedBatch(ctx context.Context, importID string) (int, error) {
	var idx int
	err := s.db.QueryRow(ctx,
		`SELECT batch_index FROM import_checkpoints WHERE import_id = $1`,
		importID,
	).Scan(&idx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return -1, nil
		}
		return -1, err
	}
	return idx, nil
}

var (
	_ domain.EntityStore        = (*EntityStore)(nil)
	_ domain.CitationStore      = (*CitationStore)(nil)
	_ domain.MergeDecisionStore = (*MergeDecisionStore)(nil)
	_ domain.BatchCommitter     = (*BatchStore)(nil)
	_ domain.WriteLocker        = (*AdvisoryLock)(nil)
)

// a URL recorded under a different id trips citations_url_key
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
