package domain

import (
	"slices"
	"strings"
)

// PillarMatchFloor is the minimum pillar score that satisfies a pillar allow-list.
const PillarMatchFloor = 0.3

// PersonaMembershipRule is a pure predicate over memory items.
type PersonaMembershipRule struct {
	Pillars         []FacetID   `json:"pillars,omitempty" yaml:"pillars"`
	BeliefThreshold float64     `json:"belief_threshold" yaml:"belief_threshold"`
	TopicKeywords   []string    `json:"topic_keywords,omitempty" yaml:"topic_keywords"`
	EventTypes      []EventType `json:"event_types,omitempty" yaml:"event_types"`
}

func (r PersonaMembershipRule) Matches(item MemoryItem) bool {
	if item.BeliefScore < r.BeliefThreshold {
		return false
	}

	if len(r.Pillars) > 0 {
		hit := false
		for _, p := range r.Pillars {
			if item.PillarScores[p] >= PillarMatchFloor {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if len(r.TopicKeywords) > 0 {
		key := strings.ToLower(item.CanonicalKey)
		text := strings.ToLower(item.DisplayText)
		hit := false
		for _, kw := range r.TopicKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(key, kw) || strings.Contains(text, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if len(r.EventTypes) > 0 && !slices.Contains(r.EventTypes, item.EventType) {
		return false
	}

	return true
}

type PersonaStatus string

const (
	PersonaDraft     PersonaStatus = "draft"
	PersonaConfirmed PersonaStatus = "confirmed"
)

// Persona is a named, rule-selected subset of memory items scoped to a space.
type Persona struct {
	ID               string                `json:"id" yaml:"id"`
	Name             string                `json:"name" yaml:"name"`
	Space            string                `json:"space" yaml:"space"`
	IncludeSensitive bool                  `json:"include_sensitive" yaml:"include_sensitive"`
	Rule             PersonaMembershipRule `json:"rule" yaml:"rule"`
}

// Admits applies the rule plus the sensitivity and space gates.
func (p Persona) Admits(item MemoryItem) bool {
	if item.Sensitivity == SensitivitySensitive && !p.IncludeSensitive {
		return false
	}
	if item.Membership(p.Space) != MembershipAllowed {
		return false
	}
	return p.Rule.Matches(item)
}
