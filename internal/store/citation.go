package store

import (
	"context"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const citationColumns = `id, url, domain, cited_in_conversation_id, conversation_ids,
	related_fragment_ids, related_entity_ids, proximity_score, first_cited_date, cited_count`

type CitationStore struct {
	db *pgxpool.Pool
}

func NewCitationStore(db *pgxpool.Pool) *CitationStore {
	return &CitationStore{db: db}
}

func (s *CitationStore) GetByURLs(ctx context.Context, urls []string) ([]domain.CitationReference, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+citationColumns+` FROM citations WHERE url = ANY($1) ORDER BY url`,
		urls,
	)
	if err != nil {
		return nil, err
	}
	return scanCitations(rows)
}

func (s *CitationStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.CitationReference, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+citationColumns+` FROM citations WHERE id = ANY($1) ORDER BY url`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	return scanCitations(rows)
}

const upsertCitationSQL = `INSERT INTO citations (
		id, url, domain, cited_in_conversation_id, conversation_ids,
		related_fragment_ids, related_entity_ids, proximity_score, first_cited_date, cited_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		conversation_ids = EXCLUDED.conversation_ids,
		related_fragment_ids = EXCLUDED.related_fragment_ids,
		related_entity_ids = EXCLUDED.related_entity_ids,
		proximity_score = EXCLUDED.proximity_score,
		first_cited_date = EXCLUDED.first_cited_date,
		cited_count = EXCLUDED.cited_count`

func citationArgs(c *domain.CitationReference) []any {
	return []any{
		c.ID, c.URL, c.Domain, c.CitedInConversationID, nonNil(c.ConversationIDs),
		nonNil(c.RelatedFragmentIDs), nonNil(c.RelatedEntityIDs), c.ProximityScore,
		c.FirstCitedDate, c.CitedCount,
	}
}

func scanCitations(rows pgx.Rows) ([]domain.CitationReference, error) {
	defer rows.Close()

	var out []domain.CitationReference
	for rows.Next() {
		var c domain.CitationReference
		if err := rows.Scan(
			&c.ID, &c.URL, &c.Domain, &c.CitedInConversationID, &c.ConversationIDs,
			&c.RelatedFragmentIDs, &c.RelatedEntityIDs, &c.ProximityScore, &c.FirstCitedDate, &c.CitedCount,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
