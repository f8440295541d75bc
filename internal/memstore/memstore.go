// Package memstore keeps every store in process memory. It backs dry-run
// imports from the CLI and the service tests.
package memstore

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/google/uuid"
)

// Store implements the entity, citation, decision and batch stores.
type Store struct {
	mu          sync.RWMutex
	entities    map[uuid.UUID]*domain.CanonicalEntity
	citations   map[uuid.UUID]*domain.CitationReference
	decisions   map[string]domain.MergeDecision
	checkpoints map[string]int

	// FailCommit, when set, is returned by the next CommitBatch call whose
	// index matches FailBatchIndex.
	FailCommit     error
	FailBatchIndex int
	Commits        int
}

func New() *Store {
	return &Store{
		entities:    make(map[uuid.UUID]*domain.CanonicalEntity),
		citations:   make(map[uuid.UUID]*domain.CitationReference),
		decisions:   make(map[string]domain.MergeDecision),
		checkpoints: make(map[string]int),
	}
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEntity(e), nil
}

func (s *Store) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CanonicalEntity
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, *cloneEntity(e))
		}
	}
	return out, nil
}

func (s *Store) FindCandidates(ctx context.Context, texts []string, keys []string) ([]domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	var out []domain.CanonicalEntity
	for _, e := range s.sortedEntities() {
		if e.Absorbed() {
			continue
		}
		hit := keySet[e.CanonicalKey]
		for _, t := range texts {
			if hit {
				break
			}
			hit = e.MatchesText(t)
		}
		if hit {
			out = append(out, *cloneEntity(e))
		}
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, after uuid.UUID, limit int) ([]domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CanonicalEntity
	for _, e := range s.sortedEntities() {
		if e.Absorbed() || bytes.Compare(e.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, *cloneEntity(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListVisible(ctx context.Context, minScore float64) ([]domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CanonicalEntity
	for _, e := range s.sortedEntities() {
		if e.Absorbed() || e.IsPlaceholder || e.Belief.CurrentScore < minScore {
			continue
		}
		out = append(out, *cloneEntity(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Belief.CurrentScore > out[j].Belief.CurrentScore
	})
	return out, nil
}

func (s *Store) ListConflicts(ctx context.Context) ([]domain.CanonicalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CanonicalEntity
	for _, e := range s.sortedEntities() {
		if e.HasMergeConflict && !e.Absorbed() {
			out = append(out, *cloneEntity(e))
		}
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, e *domain.CanonicalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		return store.ErrNotFound
	}
	e.UpdatedAt = time.Now()
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

// Put inserts or replaces an entity directly. Test helper.
func (s *Store) Put(e *domain.CanonicalEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = cloneEntity(e)
}

// All returns every entity, absorbed ones included. Test helper.
func (s *Store) All() []domain.CanonicalEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CanonicalEntity
	for _, e := range s.sortedEntities() {
		out = append(out, *cloneEntity(e))
	}
	return out
}

func (s *Store) GetByURLs(ctx context.Context, urls []string) ([]domain.CitationReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CitationReference
	for _, c := range s.citations {
		if slices.Contains(urls, c.URL) {
			out = append(out, *cloneCitation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *Store) GetCitationsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.CitationReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CitationReference
	for _, id := range ids {
		if c, ok := s.citations[id]; ok {
			out = append(out, *cloneCitation(c))
		}
	}
	return out, nil
}

// AllCitations returns every stored citation. Test helper.
func (s *Store) AllCitations() []domain.CitationReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CitationReference
	for _, c := range s.citations {
		out = append(out, *cloneCitation(c))
	}
	return out
}

func (s *Store) GetDecision(ctx context.Context, a, b uuid.UUID) (*domain.MergeDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[domain.PairKey(a, b)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]domain.MergeDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MergeDecision
	for _, d := range s.decisions {
		if d.Involves(entityID) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out, nil
}

func (s *Store) CommitBatch(ctx context.Context, b *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCommit != nil && b.Index == s.FailBatchIndex {
		err := s.FailCommit
		s.FailCommit = nil
		return err
	}
	if b.Empty() && b.ImportID == "" {
		return nil
	}

	now := time.Now()
	for _, e := range b.Entities {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		s.entities[e.ID] = cloneEntity(e)
	}
	for _, c := range b.Citations {
		s.citations[c.ID] = cloneCitation(c)
	}
	for _, d := range b.Decisions {
		s.decisions[d.PairKey()] = d
	}
	if b.ImportID != "" {
		s.checkpoints[b.ImportID] = b.Index
	}
	s.Commits++
	return nil
}

func (s *Store) LastCommittedBatch(ctx context.Context, importID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.checkpoints[importID]; ok {
		return idx, nil
	}
	return -1, nil
}

func (s *Store) sortedEntities() []*domain.CanonicalEntity {
	out := slices.Collect(maps.Values(s.entities))
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func cloneEntity(e *domain.CanonicalEntity) *domain.CanonicalEntity {
	c := *e
	c.Aliases = slices.Clone(e.Aliases)
	c.SupportingFragmentIDs = slices.Clone(e.SupportingFragmentIDs)
	c.MergeHistory = slices.Clone(e.MergeHistory)
	c.Facets = slices.Clone(e.Facets)
	c.LinkedCitationIDs = slices.Clone(e.LinkedCitationIDs)
	c.PendingAliases = make([]domain.PendingAliasCandidate, len(e.PendingAliases))
	for i, p := range e.PendingAliases {
		p.ConversationIDs = slices.Clone(p.ConversationIDs)
		c.PendingAliases[i] = p
	}
	if len(c.PendingAliases) == 0 {
		c.PendingAliases = nil
	}
	c.Spaces = maps.Clone(e.Spaces)
	if e.MergedInto != nil {
		id := *e.MergedInto
		c.MergedInto = &id
	}
	return &c
}

func cloneCitation(c *domain.CitationReference) *domain.CitationReference {
	out := *c
	out.ConversationIDs = slices.Clone(c.ConversationIDs)
	out.RelatedFragmentIDs = slices.Clone(c.RelatedFragmentIDs)
	out.RelatedEntityIDs = slices.Clone(c.RelatedEntityIDs)
	return &out
}

// CitationStore adapts Store to domain.CitationStore, whose GetByIDs would
// otherwise collide with the entity lookup of the same name.
type CitationStore struct{ *Store }

func (c CitationStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.CitationReference, error) {
	return c.Store.GetCitationsByIDs(ctx, ids)
}
