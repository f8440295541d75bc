package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/metrics"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/google/uuid"
)

var ErrMergeRefused = errors.New("merge refused")

// workset is the slice of the graph one batch operates on. It is loaded
// per batch and discarded after commit.
type workset struct {
	entities   map[uuid.UUID]*domain.CanonicalEntity
	order      []uuid.UUID
	dirty      map[uuid.UUID]bool
	touched    map[uuid.UUID]bool
	citations  map[uuid.UUID]*domain.CitationReference
	byURL      map[string]uuid.UUID
	dirtyCites map[uuid.UUID]bool
	decisions  []domain.MergeDecision
	created    int

	es domain.EntityStore
	cs domain.CitationStore
	ds domain.MergeDecisionStore
}

func newWorkset(es domain.EntityStore, cs domain.CitationStore, ds domain.MergeDecisionStore) *workset {
	return &workset{
		entities:   make(map[uuid.UUID]*domain.CanonicalEntity),
		dirty:      make(map[uuid.UUID]bool),
		touched:    make(map[uuid.UUID]bool),
		citations:  make(map[uuid.UUID]*domain.CitationReference),
		byURL:      make(map[string]uuid.UUID),
		dirtyCites: make(map[uuid.UUID]bool),
		es:         es,
		cs:         cs,
		ds:         ds,
	}
}

func (w *workset) add(e *domain.CanonicalEntity) *domain.CanonicalEntity {
	if cur, ok := w.entities[e.ID]; ok {
		return cur
	}
	w.entities[e.ID] = e
	w.order = append(w.order, e.ID)
	return e
}

func (w *workset) addAll(es []domain.CanonicalEntity) {
	for i := range es {
		w.add(&es[i])
	}
}

func (w *workset) markDirty(e *domain.CanonicalEntity) {
	w.dirty[e.ID] = true
}

func (w *workset) touch(e *domain.CanonicalEntity) {
	w.dirty[e.ID] = true
	w.touched[e.ID] = true
}

// entity returns the live entity for id, loading it and following merge
// links as needed.
func (w *workset) entity(ctx context.Context, id uuid.UUID) (*domain.CanonicalEntity, error) {
	for range maxMergeHops {
		e, ok := w.entities[id]
		if !ok {
			loaded, err := w.es.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			e = w.add(loaded)
		}
		if !e.Absorbed() {
			return e, nil
		}
		id = *e.MergedInto
	}
	return nil, fmt.Errorf("entity %s: merge chain too long", id)
}

// live returns every unabsorbed entity in insertion order.
func (w *workset) live() []*domain.CanonicalEntity {
	out := make([]*domain.CanonicalEntity, 0, len(w.order))
	for _, id := range w.order {
		if e := w.entities[id]; !e.Absorbed() {
			out = append(out, e)
		}
	}
	return out
}

func (w *workset) create(f domain.CandidateFragment, key string, placeholder bool, now time.Time) *domain.CanonicalEntity {
	sensitivity := f.Category.DefaultSensitivity()
	space := domain.SpaceGeneral
	if sensitivity == domain.SensitivitySensitive {
		space = domain.SpacePrivate
	}

	e := &domain.CanonicalEntity{
		ID:            uuid.New(),
		CanonicalKey:  key,
		CanonicalText: strings.TrimSpace(f.Text),
		Category:      f.Category,
		FirstSeen:     f.ConversationTimestamp,
		LastSeen:      f.ConversationTimestamp,
		Facets:        domain.FacetAssignmentsFor(f.Category),
		Belief:        NewBeliefState(f.Category),
		IsPlaceholder: placeholder,
		Sensitivity:   sensitivity,
		PrimarySpace:  space,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	w.add(e)
	w.touch(e)
	w.created++
	return e
}

func (w *workset) addCitation(c *domain.CitationReference) {
	if _, ok := w.citations[c.ID]; ok {
		return
	}
	w.citations[c.ID] = c
	w.byURL[c.URL] = c.ID
}

func (w *workset) citationByURL(url string) *domain.CitationReference {
	if id, ok := w.byURL[url]; ok {
		return w.citations[id]
	}
	return nil
}

// loadCitations pulls citations by id that are not yet in the workset.
func (w *workset) loadCitations(ctx context.Context, ids []uuid.UUID) error {
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := w.citations[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	loaded, err := w.cs.GetByIDs(ctx, missing)
	if err != nil {
		return err
	}
	for i := range loaded {
		w.addCitation(&loaded[i])
	}
	return nil
}

// decided returns the recorded decision for a pair, looking at this batch
// first and durable storage second.
func (w *workset) decided(ctx context.Context, a, b uuid.UUID) (*domain.MergeDecision, error) {
	key := domain.PairKey(a, b)
	for i := len(w.decisions) - 1; i >= 0; i-- {
		if w.decisions[i].PairKey() == key {
			return &w.decisions[i], nil
		}
	}
	d, err := w.ds.GetDecision(ctx, a, b)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

func (w *workset) recordDecision(a, b *domain.CanonicalEntity, decision domain.Decision, userInitiated bool, now time.Time) domain.MergeDecision {
	d := domain.MergeDecision{
		EntityAID:     a.ID,
		EntityBID:     b.ID,
		Decision:      decision,
		DecidedAt:     now,
		UserInitiated: userInitiated,
	}
	a.MergeHistory = append(a.MergeHistory, d)
	b.MergeHistory = append(b.MergeHistory, d)
	w.decisions = append(w.decisions, d)
	w.markDirty(a)
	w.markDirty(b)
	return d
}

// merge folds absorbed into survivor. The absorbed entity keeps its row
// with MergedInto set; nothing ever clears that link. Tiers that do not
// auto-merge only go through when byUser is set.
func (w *workset) merge(ctx context.Context, survivor, absorbed *domain.CanonicalEntity, tier domain.ResolutionTier, byUser bool, now time.Time) error {
	if survivor.ID == absorbed.ID || absorbed.MergedInto != nil {
		return nil
	}
	if !domain.GetTierBehavior(tier).AutoMerge && !byUser {
		metrics.MergesRefused.Inc()
		return fmt.Errorf("%w: %s needs a user decision", ErrMergeRefused, tier)
	}
	if !domain.MergeCompatible(survivor.Category, absorbed.Category) {
		metrics.MergesRefused.Inc()
		return fmt.Errorf("%w: incompatible categories %s and %s", ErrMergeRefused, survivor.Category, absorbed.Category)
	}

	survivor.AddAlias(absorbed.CanonicalText)
	for _, a := range absorbed.Aliases {
		survivor.AddAlias(a)
	}
	for _, id := range absorbed.SupportingFragmentIDs {
		survivor.AddSupport(id)
	}

	if err := w.loadCitations(ctx, absorbed.LinkedCitationIDs); err != nil {
		return fmt.Errorf("load citations of %s: %w", absorbed.ID, err)
	}
	for _, cid := range absorbed.LinkedCitationIDs {
		survivor.LinkCitation(cid)
		if c, ok := w.citations[cid]; ok && c.ReplaceEntity(absorbed.ID, survivor.ID) {
			w.dirtyCites[cid] = true
		}
	}

	sb, ab := &survivor.Belief, &absorbed.Belief
	sb.AttributionWeight = math.Max(sb.AttributionWeight, ab.AttributionWeight)
	sb.ExternalCorroboration = math.Min(sb.ExternalCorroboration+ab.ExternalCorroboration, MaxCorroboration)
	sb.UserFeedbackDelta += ab.UserFeedbackDelta
	sb.ViewCount += ab.ViewCount
	if ab.LastCorroboratedDate.After(sb.LastCorroboratedDate) {
		sb.LastCorroboratedDate = ab.LastCorroboratedDate
	}
	if absorbed.FirstSeen.Before(survivor.FirstSeen) {
		survivor.FirstSeen = absorbed.FirstSeen
	}
	if absorbed.LastSeen.After(survivor.LastSeen) {
		survivor.LastSeen = absorbed.LastSeen
	}
	if absorbed.Sensitivity == domain.SensitivitySensitive {
		survivor.Sensitivity = domain.SensitivitySensitive
	}

	survivor.RemovePendingAlias(absorbed.ID)
	for _, p := range absorbed.PendingAliases {
		if p.PlaceholderID == survivor.ID || survivor.PendingAliasFor(p.PlaceholderID) != nil {
			continue
		}
		p.CandidateEntityID = survivor.ID
		survivor.PendingAliases = append(survivor.PendingAliases, p)
	}
	absorbed.PendingAliases = nil

	w.recordDecision(survivor, absorbed, domain.DecisionMerged, byUser, now)
	id := survivor.ID
	absorbed.MergedInto = &id
	absorbed.UpdatedAt = now
	w.touch(survivor)
	w.markDirty(absorbed)

	metrics.Merges.WithLabelValues(string(tier)).Inc()
	return nil
}

// batch collects everything dirty into one durable unit.
func (w *workset) batch(importID string, index int) *domain.Batch {
	b := &domain.Batch{ImportID: importID, Index: index, Decisions: slices.Clone(w.decisions)}
	for _, id := range w.order {
		if w.dirty[id] {
			b.Entities = append(b.Entities, w.entities[id])
		}
	}
	for id := range w.dirtyCites {
		b.Citations = append(b.Citations, w.citations[id])
	}
	slices.SortFunc(b.Citations, func(x, y *domain.CitationReference) int {
		return strings.Compare(x.URL, y.URL)
	})
	return b
}
