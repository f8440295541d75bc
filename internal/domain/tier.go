package domain

// ResolutionTier names the rule that joined two references into one entity.
type ResolutionTier string

const (
	// TierA is a deterministic match on canonical text, alias or key.
	TierA ResolutionTier = "tier_a"
	// TierB promotes a generic phrase after repeated co-occurrence.
	TierB ResolutionTier = "tier_b"
	// TierC is a suggestion a human accepted.
	TierC ResolutionTier = "tier_c"
)

type TierBehavior struct {
	Tier ResolutionTier
	// AutoMerge tiers merge without asking anyone. A merge on any other
	// tier needs a user decision behind it.
	AutoMerge bool
	// MinCoOccurrences is the distinct-conversation count needed to merge.
	MinCoOccurrences int
}

var TierBehaviors = map[ResolutionTier]TierBehavior{
	TierA: {Tier: TierA, AutoMerge: true},
	TierB: {Tier: TierB, AutoMerge: true, MinCoOccurrences: 2},
	TierC: {Tier: TierC},
}

// GetTierBehavior falls back to the human tier for unknown names.
func GetTierBehavior(tier ResolutionTier) TierBehavior {
	if b, ok := TierBehaviors[tier]; ok {
		return b
	}
	return TierBehaviors[TierC]
}
