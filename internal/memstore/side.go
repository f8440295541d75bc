package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/google/uuid"
)

// SideStore is an in-memory domain.SideStore.
type SideStore struct {
	mu          sync.Mutex
	suggestions map[string]domain.MergeSuggestion
	surfaced    []surfaceEvent
	conflicts   map[uuid.UUID]bool
	lastSweep   time.Time
	personas    map[string]domain.PersonaStatus
}

type surfaceEvent struct {
	pair string
	at   time.Time
}

func NewSideStore() *SideStore {
	return &SideStore{
		suggestions: make(map[string]domain.MergeSuggestion),
		conflicts:   make(map[uuid.UUID]bool),
		personas:    make(map[string]domain.PersonaStatus),
	}
}

func (s *SideStore) Enqueue(ctx context.Context, sg domain.MergeSuggestion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sg.PairKey()
	if _, ok := s.suggestions[key]; ok {
		return false, nil
	}
	s.suggestions[key] = sg
	return true, nil
}

func (s *SideStore) Get(ctx context.Context, a, b uuid.UUID) (*domain.MergeSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[domain.PairKey(a, b)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sg, nil
}

func (s *SideStore) ListPending(ctx context.Context) ([]domain.MergeSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MergeSuggestion, 0, len(s.suggestions))
	for _, sg := range s.suggestions {
		out = append(out, sg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SuggestedAt.Equal(out[j].SuggestedAt) {
			return out[i].SuggestedAt.Before(out[j].SuggestedAt)
		}
		return out[i].PairKey() < out[j].PairKey()
	})
	return out, nil
}

func (s *SideStore) Update(ctx context.Context, sg domain.MergeSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sg.PairKey()
	if _, ok := s.suggestions[key]; !ok {
		return store.ErrNotFound
	}
	s.suggestions[key] = sg
	return nil
}

func (s *SideStore) Remove(ctx context.Context, a, b uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.suggestions, domain.PairKey(a, b))
	return nil
}

func (s *SideStore) ReserveSurface(ctx context.Context, pairKey string, at, since time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countSince(since) >= limit {
		return false, nil
	}
	s.surfaced = append(s.surfaced, surfaceEvent{pair: pairKey, at: at})
	return true, nil
}

func (s *SideStore) CountSurfacedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countSince(since), nil
}

func (s *SideStore) countSince(since time.Time) int {
	n := 0
	for _, ev := range s.surfaced {
		if !ev.at.Before(since) {
			n++
		}
	}
	return n
}

func (s *SideStore) PushConflict(ctx context.Context, entityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[entityID] = true
	return nil
}

func (s *SideStore) ListConflicts(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.conflicts))
	for id := range s.conflicts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *SideStore) RemoveConflict(ctx context.Context, entityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conflicts, entityID)
	return nil
}

func (s *SideStore) LastSweep(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, nil
}

func (s *SideStore) MarkSweep(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSweep = at
	return nil
}

func (s *SideStore) GetStatus(ctx context.Context, personaID string) (domain.PersonaStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.personas[personaID]; ok {
		return st, nil
	}
	return domain.PersonaDraft, nil
}

func (s *SideStore) SetStatus(ctx context.Context, personaID string, status domain.PersonaStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[personaID] = status
	return nil
}

var (
	_ domain.EntityStore        = (*Store)(nil)
	_ domain.MergeDecisionStore = (*Store)(nil)
	_ domain.BatchCommitter     = (*Store)(nil)
	_ domain.CitationStore      = CitationStore{}
	_ domain.SideStore          = (*SideStore)(nil)
	_ domain.WriteLocker        = (*WriterLock)(nil)
)
