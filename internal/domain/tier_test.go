package domain

import "testing"

func TestTierBehaviors(t *testing.T) {
	t.Run("tier a merges without a threshold", func(t *testing.T) {
		b := GetTierBehavior(TierA)
		if !b.AutoMerge || b.MinCoOccurrences != 0 {
			t.Errorf("tier a = %+v", b)
		}
	})

	t.Run("tier b needs two conversations", func(t *testing.T) {
		b := GetTierBehavior(TierB)
		if !b.AutoMerge {
			t.Error("tier b should merge automatically")
		}
		if b.MinCoOccurrences != 2 {
			t.Errorf("tier b co-occurrence threshold should be 2, got %d", b.MinCoOccurrences)
		}
	})

	t.Run("tier c is human", func(t *testing.T) {
		if b := GetTierBehavior(TierC); b.AutoMerge {
			t.Errorf("tier c = %+v", b)
		}
	})

	t.Run("unknown falls back to human review", func(t *testing.T) {
		got := GetTierBehavior("tier_z")
		if got.Tier != TierC || got.AutoMerge {
			t.Errorf("fallback = %+v, want tier_c without auto merge", got)
		}
	})
}
