package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BeliefState is owned by exactly one CanonicalEntity and mutated only by
// the belief engine.
type BeliefState struct {
	CurrentScore          float64   `json:"current_score"`
	SupportCount          int       `json:"support_count"`
	LastCalculated        time.Time `json:"last_calculated"`
	LastCorroboratedDate  time.Time `json:"last_corroborated_date"`
	AttributionWeight     float64   `json:"attribution_weight"`
	UserFeedbackDelta     float64   `json:"user_feedback_delta"`
	HalfLifeDays          float64   `json:"half_life_days"`
	StabilityFloorActive  bool      `json:"stability_floor_active"`
	ExternalCorroboration float64   `json:"external_corroboration"`
	ViewCount             int       `json:"view_count"`
}

type FacetAssignment struct {
	Facet     FacetID `json:"facet"`
	Weight    float64 `json:"weight"`
	IsPrimary bool    `json:"is_primary"`
}

// PendingAliasCandidate tracks a generic phrase seen near a named entity.
// It lives on the candidate entity until promoted or discarded.
type PendingAliasCandidate struct {
	FragmentID        uuid.UUID `json:"fragment_id"`
	Phrase            string    `json:"phrase"`
	PlaceholderID     uuid.UUID `json:"placeholder_id"`
	CandidateEntityID uuid.UUID `json:"candidate_entity_id"`
	CoOccurrenceCount int       `json:"co_occurrence_count"`
	ConversationIDs   []string  `json:"conversation_ids"`
	FirstSeen         time.Time `json:"first_seen"`
}

type SpaceMembership struct {
	Status MembershipStatus `json:"status"`
	Locked bool             `json:"locked"`
}

// CanonicalEntity is a resolved identity node. Entities are never deleted;
// an entity absorbed by a merge keeps its row with MergedInto set and is
// hidden from every read path.
type CanonicalEntity struct {
	ID                    uuid.UUID                  `json:"id"`
	CanonicalKey          string                     `json:"canonical_key"`
	CanonicalText         string                     `json:"canonical_text"`
	Category              Category                   `json:"category"`
	Aliases               []string                   `json:"aliases,omitempty"`
	FirstSeen             time.Time                  `json:"first_seen"`
	LastSeen              time.Time                  `json:"last_seen"`
	SupportingFragmentIDs []uuid.UUID                `json:"supporting_fragment_ids"`
	MergeHistory          []MergeDecision            `json:"merge_history,omitempty"`
	Facets                []FacetAssignment          `json:"facets"`
	Belief                BeliefState                `json:"belief"`
	LinkedCitationIDs     []uuid.UUID                `json:"linked_citation_ids,omitempty"`
	PendingAliases        []PendingAliasCandidate    `json:"pending_aliases,omitempty"`
	HasMergeConflict      bool                       `json:"has_merge_conflict"`
	IsPlaceholder         bool                       `json:"is_placeholder"`
	MergedInto            *uuid.UUID                 `json:"merged_into,omitempty"`
	Sensitivity           Sensitivity                `json:"sensitivity"`
	PrimarySpace          string                     `json:"primary_space"`
	Spaces                map[string]SpaceMembership `json:"spaces,omitempty"`
	CreatedAt             time.Time                  `json:"created_at"`
	UpdatedAt             time.Time                  `json:"updated_at"`
}

// Absorbed reports whether the entity was merged into another one.
func (e *CanonicalEntity) Absorbed() bool {
	return e.MergedInto != nil
}

// MatchesText reports whether text equals the canonical text or any alias,
// ignoring case and surrounding whitespace.
func (e *CanonicalEntity) MatchesText(text string) bool {
	text = strings.TrimSpace(text)
	if strings.EqualFold(strings.TrimSpace(e.CanonicalText), text) {
		return true
	}
	return e.HasAlias(text)
}

func (e *CanonicalEntity) HasAlias(text string) bool {
	text = strings.TrimSpace(text)
	for _, a := range e.Aliases {
		if strings.EqualFold(strings.TrimSpace(a), text) {
			return true
		}
	}
	return false
}

// AddAlias records text as an alias unless it already matches.
func (e *CanonicalEntity) AddAlias(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || e.MatchesText(text) {
		return false
	}
	e.Aliases = append(e.Aliases, text)
	return true
}

func (e *CanonicalEntity) HasSupport(fragmentID uuid.UUID) bool {
	return slices.Contains(e.SupportingFragmentIDs, fragmentID)
}

// AddSupport appends a supporting fragment id. Returns false when the
// fragment already supports the entity.
func (e *CanonicalEntity) AddSupport(fragmentID uuid.UUID) bool {
	if e.HasSupport(fragmentID) {
		return false
	}
	e.SupportingFragmentIDs = append(e.SupportingFragmentIDs, fragmentID)
	e.Belief.SupportCount = len(e.SupportingFragmentIDs)
	return true
}

func (e *CanonicalEntity) LinkCitation(citationID uuid.UUID) bool {
	if slices.Contains(e.LinkedCitationIDs, citationID) {
		return false
	}
	e.LinkedCitationIDs = append(e.LinkedCitationIDs, citationID)
	return true
}

// PendingAliasFor returns the pending candidate seeded by the placeholder, if any.
func (e *CanonicalEntity) PendingAliasFor(placeholderID uuid.UUID) *PendingAliasCandidate {
	for i := range e.PendingAliases {
		if e.PendingAliases[i].PlaceholderID == placeholderID {
			return &e.PendingAliases[i]
		}
	}
	return nil
}

func (e *CanonicalEntity) RemovePendingAlias(placeholderID uuid.UUID) bool {
	n := len(e.PendingAliases)
	e.PendingAliases = slices.DeleteFunc(e.PendingAliases, func(p PendingAliasCandidate) bool {
		return p.PlaceholderID == placeholderID
	})
	return len(e.PendingAliases) != n
}

// Membership returns the entity's status in a space. A space with no
// explicit entry is allowed only if it is the primary space.
func (e *CanonicalEntity) Membership(space string) MembershipStatus {
	if m, ok := e.Spaces[space]; ok {
		return m.Status
	}
	if space == e.PrimarySpace {
		return MembershipAllowed
	}
	return MembershipSuggested
}

// SetMembership changes the status in a space unless that entry is locked
// and the change is not itself a locking one.
func (e *CanonicalEntity) SetMembership(space string, status MembershipStatus, lock bool) bool {
	if e.Spaces == nil {
		e.Spaces = make(map[string]SpaceMembership)
	}
	if cur, ok := e.Spaces[space]; ok && cur.Locked && !lock {
		return false
	}
	e.Spaces[space] = SpaceMembership{Status: status, Locked: lock}
	return true
}
