package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeBelief   EventType = "belief"
	EventTypeMetadata EventType = "metadata"
)

type Sensitivity string

const (
	SensitivityNormal    Sensitivity = "normal"
	SensitivitySensitive Sensitivity = "sensitive"
)

type MembershipStatus string

const (
	MembershipAllowed   MembershipStatus = "allowed"
	MembershipSuggested MembershipStatus = "suggested"
	MembershipBlocked   MembershipStatus = "blocked"
)

func ValidMembershipStatus(s string) bool {
	switch MembershipStatus(s) {
	case MembershipAllowed, MembershipSuggested, MembershipBlocked:
		return true
	}
	return false
}

const (
	SpaceGeneral = "general"
	SpacePrivate = "private"

	MaxEvidence = 3
)

// MemoryItem is the exposed projection of a CanonicalEntity consumed by
// facet and persona matching.
type MemoryItem struct {
	EntityID     uuid.UUID                  `json:"entity_id"`
	DisplayText  string                     `json:"display_text"`
	CanonicalKey string                     `json:"canonical_key"`
	Category     Category                   `json:"category"`
	EventType    EventType                  `json:"event_type"`
	PillarScores map[FacetID]float64        `json:"pillar_scores"`
	BeliefScore  float64                    `json:"belief_score"`
	Sensitivity  Sensitivity                `json:"sensitivity"`
	Evidence     []uuid.UUID                `json:"evidence"`
	PrimarySpace string                     `json:"primary_space"`
	Spaces       map[string]SpaceMembership `json:"spaces,omitempty"`
	FirstSeen    time.Time                  `json:"first_seen"`
}

func (m MemoryItem) Membership(space string) MembershipStatus {
	if s, ok := m.Spaces[space]; ok {
		return s.Status
	}
	if space == m.PrimarySpace {
		return MembershipAllowed
	}
	return MembershipSuggested
}

// ProjectMemoryItem builds the exposed view of an entity.
func ProjectMemoryItem(e *CanonicalEntity) MemoryItem {
	pillars := make(map[FacetID]float64, len(e.Facets))
	for _, f := range e.Facets {
		pillars[f.Facet] = f.Weight
	}

	// newest evidence last in supporting ids
	evidence := e.SupportingFragmentIDs
	if len(evidence) > MaxEvidence {
		evidence = evidence[len(evidence)-MaxEvidence:]
	}

	return MemoryItem{
		EntityID:     e.ID,
		DisplayText:  e.CanonicalText,
		CanonicalKey: e.CanonicalKey,
		Category:     e.Category,
		EventType:    e.Category.EventType(),
		PillarScores: pillars,
		BeliefScore:  e.Belief.CurrentScore,
		Sensitivity:  e.Sensitivity,
		Evidence:     append([]uuid.UUID(nil), evidence...),
		PrimarySpace: e.PrimarySpace,
		Spaces:       e.Spaces,
		FirstSeen:    e.FirstSeen,
	}
}
