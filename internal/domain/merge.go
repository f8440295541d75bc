package domain

import (
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionMerged       Decision = "merged"
	DecisionKeptSeparate Decision = "kept_separate"
)

// MergeDecision is the durable outcome of a merge, automatic or human.
type MergeDecision struct {
	EntityAID     uuid.UUID `json:"entity_a_id"`
	EntityBID     uuid.UUID `json:"entity_b_id"`
	Decision      Decision  `json:"decision"`
	DecidedAt     time.Time `json:"decided_at"`
	UserInitiated bool      `json:"user_initiated"`
}

func (d MergeDecision) Involves(id uuid.UUID) bool {
	return d.EntityAID == id || d.EntityBID == id
}

func (d MergeDecision) PairKey() string {
	return PairKey(d.EntityAID, d.EntityBID)
}

// MergeSuggestion is a Tier C candidate pair waiting for a human.
type MergeSuggestion struct {
	EntityAID    uuid.UUID  `json:"entity_a_id"`
	EntityBID    uuid.UUID  `json:"entity_b_id"`
	SuggestedAt  time.Time  `json:"suggested_at"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	SurfacedAt   *time.Time `json:"surfaced_at,omitempty"`
}

func (s MergeSuggestion) PairKey() string {
	return PairKey(s.EntityAID, s.EntityBID)
}

// Snoozed reports whether the suggestion is hidden at now.
func (s MergeSuggestion) Snoozed(now time.Time) bool {
	return s.SnoozedUntil != nil && now.Before(*s.SnoozedUntil)
}

// PairKey is an order-independent key for an entity pair.
func PairKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as + ":" + bs
}
