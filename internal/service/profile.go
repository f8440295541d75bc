package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	PersonaMinItems = 3
	PersonaMinWeeks = 2
)

var (
	ErrPersonaNotFound  = errors.New("persona not found")
	ErrPersonaNotStable = errors.New("persona needs at least 3 items spanning 2 calendar weeks")
	ErrInvalidSpace     = errors.New("space is required")
	ErrInvalidStatus    = errors.New("invalid membership status")
	ErrMembershipLocked = errors.New("space membership is locked")
)

type FacetView struct {
	ID      domain.FacetID      `json:"id"`
	Label   string              `json:"label"`
	Visible bool                `json:"visible"`
	Members []domain.MemoryItem `json:"members"`
	Hint    string              `json:"hint,omitempty"`
}

type PersonaView struct {
	domain.Persona
	Status    domain.PersonaStatus `json:"status"`
	Items     []domain.MemoryItem  `json:"items"`
	Weeks     int                  `json:"weeks"`
	Qualifies bool                 `json:"qualifies"`
}

// ProfileService serves the visible projection of the graph: memory items,
// facets and personas.
type ProfileService struct {
	entities  domain.EntityStore
	decisions domain.MergeDecisionStore
	statuses  domain.PersonaStatusStore
	personas  []domain.Persona
	writer    domain.WriteLocker
	logger    *zap.Logger

	Threshold float64
}

func NewProfileService(es domain.EntityStore, ds domain.MergeDecisionStore, statuses domain.PersonaStatusStore, personas []domain.Persona, writer domain.WriteLocker, logger *zap.Logger) *ProfileService {
	if len(personas) == 0 {
		personas = DefaultPersonas()
	}
	return &ProfileService{
		entities:  es,
		decisions: ds,
		statuses:  statuses,
		personas:  personas,
		writer:    writer,
		logger:    logger,
		Threshold: VisibilityThreshold,
	}
}

// Items returns memory items for every entity at or above the visibility
// threshold, highest belief first.
func (s *ProfileService) Items(ctx context.Context) ([]domain.MemoryItem, error) {
	entities, err := s.entities.ListVisible(ctx, s.Threshold)
	if err != nil {
		return nil, err
	}
	items := make([]domain.MemoryItem, 0, len(entities))
	for i := range entities {
		e := &entities[i]
		if e.IsPlaceholder || e.Absorbed() || e.Belief.CurrentScore < s.Threshold {
			continue
		}
		items = append(items, domain.ProjectMemoryItem(e))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].BeliefScore > items[j].BeliefScore })
	return items, nil
}

// Entity returns one entity by id, following merges to the survivor.
func (s *ProfileService) Entity(ctx context.Context, id uuid.UUID) (*domain.CanonicalEntity, error) {
	return liveEntity(ctx, s.entities, id)
}

// Decisions lists the durable merge and keep-separate decisions that name
// the entity, oldest first.
func (s *ProfileService) Decisions(ctx context.Context, id uuid.UUID) ([]domain.MergeDecision, error) {
	ds, err := s.decisions.ListByEntity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list decisions of %s: %w", id, err)
	}
	return ds, nil
}

func (s *ProfileService) Facets(ctx context.Context) ([]FacetView, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return nil, err
	}
	return GroupFacets(items), nil
}

// GroupFacets buckets items by facet. A facet with fewer than
// MinFacetMembers members is hidden and carries a hint instead.
func GroupFacets(items []domain.MemoryItem) []FacetView {
	out := make([]FacetView, 0, len(domain.Facets))
	for _, f := range domain.Facets {
		view := FacetView{ID: f, Label: f.Label(), Members: []domain.MemoryItem{}}
		for _, it := range items {
			if it.PillarScores[f] > 0 {
				view.Members = append(view.Members, it)
			}
		}
		sort.SliceStable(view.Members, func(i, j int) bool {
			return view.Members[i].PillarScores[f]*view.Members[i].BeliefScore >
				view.Members[j].PillarScores[f]*view.Members[j].BeliefScore
		})
		view.Visible = len(view.Members) >= domain.MinFacetMembers
		if !view.Visible {
			view.Hint = facetHint(f)
		}
		out = append(out, view)
	}
	return out
}

func facetHint(f domain.FacetID) string {
	cats := domain.FacetSourceCategories(f)
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c) + "s"
	}
	var list string
	switch len(names) {
	case 0:
		return ""
	case 1:
		list = names[0]
	default:
		list = strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
	return fmt.Sprintf("Import conversations that mention your %s to fill in %s.", list, strings.ToLower(f.Label()))
}

func (s *ProfileService) Personas(ctx context.Context) ([]PersonaView, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PersonaView, 0, len(s.personas))
	for _, p := range s.personas {
		view, err := s.evaluate(ctx, p, items)
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

func (s *ProfileService) Persona(ctx context.Context, id string) (*PersonaView, error) {
	p, ok := s.lookup(id)
	if !ok {
		return nil, ErrPersonaNotFound
	}
	items, err := s.Items(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, p, items)
}

// Promote confirms a draft persona once it is stable.
func (s *ProfileService) Promote(ctx context.Context, id string) (*PersonaView, error) {
	view, err := s.Persona(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Status == domain.PersonaConfirmed {
		return view, nil
	}
	if !view.Qualifies {
		return view, ErrPersonaNotStable
	}
	if err := s.statuses.SetStatus(ctx, id, domain.PersonaConfirmed); err != nil {
		return nil, fmt.Errorf("set persona status: %w", err)
	}
	view.Status = domain.PersonaConfirmed

	s.logger.Info("persona confirmed",
		zap.String("persona_id", id),
		zap.Int("items", len(view.Items)),
		zap.Int("weeks", view.Weeks),
	)
	return view, nil
}

// SetMembership changes an entity's status in a space. A locked entry
// only changes through another locking call.
func (s *ProfileService) SetMembership(ctx context.Context, entityID uuid.UUID, space string, status domain.MembershipStatus, lock bool) (*domain.CanonicalEntity, error) {
	if strings.TrimSpace(space) == "" {
		return nil, ErrInvalidSpace
	}
	if !domain.ValidMembershipStatus(string(status)) {
		return nil, ErrInvalidStatus
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
	if !e.SetMembership(space, status, lock) {
		return nil, ErrMembershipLocked
	}
	if err := s.entities.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update entity %s: %w", e.ID, err)
	}
	return e, nil
}

func (s *ProfileService) lookup(id string) (domain.Persona, bool) {
	for _, p := range s.personas {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Persona{}, false
}

func (s *ProfileService) evaluate(ctx context.Context, p domain.Persona, items []domain.MemoryItem) (*PersonaView, error) {
	status, err := s.statuses.GetStatus(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("get persona status: %w", err)
	}
	view := &PersonaView{Persona: p, Status: status, Items: []domain.MemoryItem{}}
	for _, it := range items {
		if p.Admits(it) {
			view.Items = append(view.Items, it)
		}
	}
	view.Weeks = distinctWeeks(view.Items)
	view.Qualifies = len(view.Items) >= PersonaMinItems && view.Weeks >= PersonaMinWeeks
	return view, nil
}

// distinctWeeks counts the ISO calendar weeks the items were first seen in.
func distinctWeeks(items []domain.MemoryItem) int {
	weeks := make(map[[2]int]bool)
	for _, it := range items {
		y, w := it.FirstSeen.ISOWeek()
		weeks[[2]int{y, w}] = true
	}
	return len(weeks)
}
