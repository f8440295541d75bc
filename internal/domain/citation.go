package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// CitationReference is a URL cited in one or more conversations. Titles are
// never fetched.
type CitationReference struct {
	ID                    uuid.UUID   `json:"id"`
	URL                   string      `json:"url"`
	Domain                string      `json:"domain"`
	CitedInConversationID string      `json:"cited_in_conversation_id"`
	ConversationIDs       []string    `json:"conversation_ids"`
	RelatedFragmentIDs    []uuid.UUID `json:"related_fragment_ids,omitempty"`
	RelatedEntityIDs      []uuid.UUID `json:"related_entity_ids,omitempty"`
	ProximityScore        float64     `json:"proximity_score"`
	FirstCitedDate        time.Time   `json:"first_cited_date"`
	CitedCount            int         `json:"cited_count"`
}

// RecordConversation counts a citation from a conversation the first time
// that conversation is seen.
func (c *CitationReference) RecordConversation(conversationID string) bool {
	if slices.Contains(c.ConversationIDs, conversationID) {
		return false
	}
	c.ConversationIDs = append(c.ConversationIDs, conversationID)
	c.CitedCount = len(c.ConversationIDs)
	return true
}

func (c *CitationReference) RelateEntity(entityID uuid.UUID) bool {
	if slices.Contains(c.RelatedEntityIDs, entityID) {
		return false
	}
	c.RelatedEntityIDs = append(c.RelatedEntityIDs, entityID)
	return true
}

// ReplaceEntity rewrites references to from so they point at to.
func (c *CitationReference) ReplaceEntity(from, to uuid.UUID) bool {
	idx := slices.Index(c.RelatedEntityIDs, from)
	if idx < 0 {
		return false
	}
	c.RelatedEntityIDs = slices.Delete(c.RelatedEntityIDs, idx, idx+1)
	c.RelateEntity(to)
	return true
}

func (c *CitationReference) RelateFragment(fragmentID uuid.UUID) bool {
	if slices.Contains(c.RelatedFragmentIDs, fragmentID) {
		return false
	}
	c.RelatedFragmentIDs = append(c.RelatedFragmentIDs, fragmentID)
	return true
}
