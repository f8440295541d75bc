package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/jsonx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entityColumns = `id, canonical_key, canonical_text, category, aliases, first_seen, last_seen,
	supporting_fragment_ids, merge_history, facets, belief, linked_citation_ids, pending_aliases,
	has_merge_conflict, is_placeholder, merged_into, sensitivity, primary_space, spaces,
	created_at, updated_at`

type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalEntity, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`,
		id,
	)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.CanonicalEntity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ANY($1) ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

// FindCandidates matches canonical text and aliases case-insensitively after
// trimming, and canonical keys exactly.
func (s *EntityStore) FindCandidates(ctx context.Context, texts []string, keys []string) ([]domain.CanonicalEntity, error) {
	lowered := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 && len(keys) == 0 {
		return nil, nil
	}
	if keys == nil {
		keys = []string{}
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE merged_into IS NULL
		   AND (LOWER(TRIM(canonical_text)) = ANY($1)
		        OR EXISTS (SELECT 1 FROM unnest(aliases) a WHERE LOWER(TRIM(a)) = ANY($1))
		        OR canonical_key = ANY($2))
		 ORDER BY id`,
		lowered, keys,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *EntityStore) List(ctx context.Context, after uuid.UUID, limit int) ([]domain.CanonicalEntity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE merged_into IS NULL AND id > $1
		 ORDER BY id
		 LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *EntityStore) ListVisible(ctx context.Context, minScore float64) ([]domain.CanonicalEntity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE merged_into IS NULL AND NOT is_placeholder AND current_score >= $1
		 ORDER BY current_score DESC, id`,
		minScore,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *EntityStore) ListConflicts(ctx context.Context) ([]domain.CanonicalEntity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE merged_into IS NULL AND has_merge_conflict
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

// Update rewrites an existing entity row.
func (s *EntityStore) Update(ctx context.Context, e *domain.CanonicalEntity) error {
	args, err := entityArgs(e)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE entities SET
			canonical_key = $2, canonical_text = $3, category = $4, aliases = $5,
			first_seen = $6, last_seen = $7, supporting_fragment_ids = $8,
			merge_history = $9, facets = $10, belief = $11, current_score = $12,
			linked_citation_ids = $13, pending_aliases = $14, has_merge_conflict = $15,
			is_placeholder = $16, merged_into = $17, sensitivity = $18,
			primary_space = $19, spaces = $20, updated_at = NOW()
		 WHERE id = $1`,
		args...,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const upsertEntitySQL = `INSERT INTO entities (
		id, canonical_key, canonical_text, category, aliases, first_seen, last_seen,
		supporting_fragment_ids, merge_history, facets, belief, current_score,
		linked_citation_ids, pending_aliases, has_merge_conflict, is_placeholder,
		merged_into, sensitivity, primary_space, spaces
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	ON CONFLICT (id) DO UPDATE SET
		canonical_key = EXCLUDED.canonical_key,
		canonical_text = EXCLUDED.canonical_text,
		category = EXCLUDED.category,
		aliases = EXCLUDED.aliases,
		first_seen = EXCLUDED.first_seen,
		last_seen = EXCLUDED.last_seen,
		supporting_fragment_ids = EXCLUDED.supporting_fragment_ids,
		merge_history = EXCLUDED.merge_history,
		facets = EXCLUDED.facets,
		belief = EXCLUDED.belief,
		current_score = EXCLUDED.current_score,
		linked_citation_ids = EXCLUDED.linked_citation_ids,
		pending_aliases = EXCLUDED.pending_aliases,
		has_merge_conflict = EXCLUDED.has_merge_conflict,
		is_placeholder = EXCLUDED.is_placeholder,
		merged_into = EXCLUDED.merged_into,
		sensitivity = EXCLUDED.sensitivity,
		primary_space = EXCLUDED.primary_space,
		spaces = EXCLUDED.spaces,
		updated_at = NOW()
	RETURNING created_at, updated_at`

// entityArgs returns the column values in upsertEntitySQL order.
func entityArgs(e *domain.CanonicalEntity) ([]any, error) {
	history, err := jsonx.Marshal(nonNil(e.MergeHistory))
	if err != nil {
		return nil, fmt.Errorf("marshal merge_history: %w", err)
	}
	facets, err := jsonx.Marshal(nonNil(e.Facets))
	if err != nil {
		return nil, fmt.Errorf("marshal facets: %w", err)
	}
	belief, err := jsonx.Marshal(e.Belief)
	if err != nil {
		return nil, fmt.Errorf("marshal belief: %w", err)
	}
	pending, err := jsonx.Marshal(nonNil(e.PendingAliases))
	if err != nil {
		return nil, fmt.Errorf("marshal pending_aliases: %w", err)
	}
	spaces := e.Spaces
	if spaces == nil {
		spaces = map[string]domain.SpaceMembership{}
	}
	spacesJSON, err := jsonx.Marshal(spaces)
	if err != nil {
		return nil, fmt.Errorf("marshal spaces: %w", err)
	}

	return []any{
		e.ID, e.CanonicalKey, e.CanonicalText, string(e.Category), nonNil(e.Aliases),
		e.FirstSeen, e.LastSeen, nonNil(e.SupportingFragmentIDs),
		history, facets, belief, e.Belief.CurrentScore,
		nonNil(e.LinkedCitationIDs), pending, e.HasMergeConflict, e.IsPlaceholder,
		e.MergedInto, string(e.Sensitivity), e.PrimarySpace, spacesJSON,
	}, nil
}

func scanEntity(row pgx.Row) (*domain.CanonicalEntity, error) {
	e := &domain.CanonicalEntity{}
	var (
		category, sensitivity                  string
		history, facets, belief, pending, spcs []byte
	)
	err := row.Scan(
		&e.ID, &e.CanonicalKey, &e.CanonicalText, &category, &e.Aliases, &e.FirstSeen, &e.LastSeen,
		&e.SupportingFragmentIDs, &history, &facets, &belief, &e.LinkedCitationIDs, &pending,
		&e.HasMergeConflict, &e.IsPlaceholder, &e.MergedInto, &sensitivity, &e.PrimarySpace, &spcs,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Category = domain.Category(category)
	e.Sensitivity = domain.Sensitivity(sensitivity)

	if err := jsonx.Unmarshal(history, &e.MergeHistory); err != nil {
		return nil, fmt.Errorf("unmarshal merge_history: %w", err)
	}
	if err := jsonx.Unmarshal(facets, &e.Facets); err != nil {
		return nil, fmt.Errorf("unmarshal facets: %w", err)
	}
	if err := jsonx.Unmarshal(belief, &e.Belief); err != nil {
		return nil, fmt.Errorf("unmarshal belief: %w", err)
	}
	if err := jsonx.Unmarshal(pending, &e.PendingAliases); err != nil {
		return nil, fmt.Errorf("unmarshal pending_aliases: %w", err)
	}
	if err := jsonx.Unmarshal(spcs, &e.Spaces); err != nil {
		return nil, fmt.Errorf("unmarshal spaces: %w", err)
	}
	if len(e.Spaces) == 0 {
		e.Spaces = nil
	}
	return e, nil
}

func scanEntities(rows pgx.Rows) ([]domain.CanonicalEntity, error) {
	defer rows.Close()

	var out []domain.CanonicalEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// nonNil keeps NOT NULL array and JSON columns from receiving NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
