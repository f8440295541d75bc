package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrMalformedFragment = errors.New("malformed fragment")

type Attribution string

const (
	AttributionUserExplicit       Attribution = "user_explicit"
	AttributionUserImplied        Attribution = "user_implied"
	AttributionAssistantSuggested Attribution = "assistant_suggested"
	AttributionAmbiguous          Attribution = "ambiguous"
)

func ValidAttribution(a string) bool {
	switch Attribution(a) {
	case AttributionUserExplicit, AttributionUserImplied, AttributionAssistantSuggested, AttributionAmbiguous:
		return true
	}
	return false
}

// Weight is how much a claim with this attribution counts toward belief.
func (a Attribution) Weight() float64 {
	switch a {
	case AttributionUserExplicit:
		return 1.0
	case AttributionUserImplied:
		return 0.7
	case AttributionAssistantSuggested:
		return 0.2
	default:
		return 0.1
	}
}

// CandidateFragment is a single candidate fact produced by the extractor.
type CandidateFragment struct {
	ID                    uuid.UUID   `json:"id"`
	Text                  string      `json:"text"`
	Category              Category    `json:"category"`
	SourceConversationID  string      `json:"source_conversation_id"`
	SourceChunkID         string      `json:"source_chunk_id"`
	MessageIndex          int         `json:"message_index"`
	ConversationTimestamp time.Time   `json:"conversation_timestamp"`
	Attribution           Attribution `json:"attribution"`
	RawConfidence         float64     `json:"raw_confidence"`
}

func (f CandidateFragment) Validate() error {
	switch {
	case f.ID == uuid.Nil:
		return fmt.Errorf("%w: id is required", ErrMalformedFragment)
	case strings.TrimSpace(f.Text) == "":
		return fmt.Errorf("%w: text is empty", ErrMalformedFragment)
	case !ValidCategory(string(f.Category)):
		return fmt.Errorf("%w: unknown category %q", ErrMalformedFragment, f.Category)
	case !ValidAttribution(string(f.Attribution)):
		return fmt.Errorf("%w: unknown attribution %q", ErrMalformedFragment, f.Attribution)
	case f.SourceConversationID == "":
		return fmt.Errorf("%w: source_conversation_id is required", ErrMalformedFragment)
	case f.ConversationTimestamp.IsZero():
		return fmt.Errorf("%w: conversation_timestamp is required", ErrMalformedFragment)
	case math.IsNaN(f.RawConfidence) || f.RawConfidence < 0 || f.RawConfidence > 1:
		return fmt.Errorf("%w: raw_confidence %v out of range", ErrMalformedFragment, f.RawConfidence)
	case f.MessageIndex < 0:
		return fmt.Errorf("%w: negative message_index", ErrMalformedFragment)
	}
	return nil
}
