package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
)

const day = 24 * time.Hour

func TestRecencyFactor_HalfLife(t *testing.T) {
	for _, c := range domain.Categories {
		hl := c.HalfLifeDays()
		got := RecencyFactor(hl, hl)
		if math.Abs(got-0.5) > 0.005 {
			t.Errorf("%s: RecencyFactor after one half-life = %v, want 0.5", c, got)
		}
	}

	if got := RecencyFactor(-10, 30); got != 1 {
		t.Errorf("negative age should clamp to 1, got %v", got)
	}
}

func TestComputeScore_AlwaysInRange(t *testing.T) {
	now := baseTime
	supports := []int{0, 1, 3, 20, 200, 5000}
	ages := []time.Duration{0, 10 * day, 400 * day, -5 * day}
	corrob := []float64{0, 0.1, 0.3, 2}
	feedback := []float64{-2, -0.4, 0, 0.3, 5}

	for _, sc := range supports {
		for _, age := range ages {
			for _, c := range corrob {
				for _, fb := range feedback {
					b := domain.BeliefState{
						SupportCount:          sc,
						LastCorroboratedDate:  now.Add(-age),
						AttributionWeight:     1.0,
						HalfLifeDays:          30,
						ExternalCorroboration: c,
						UserFeedbackDelta:     fb,
						StabilityFloorActive:  sc >= 3,
					}
					score, ok := ComputeScore(b, now)
					if !ok || score < 0 || score > 1 {
						t.Fatalf("score %v (ok=%v) out of range for %+v", score, ok, b)
					}
				}
			}
		}
	}
}

func TestComputeScore_LogarithmicDampening(t *testing.T) {
	state := func(support int) domain.BeliefState {
		return domain.BeliefState{
			SupportCount:         support,
			LastCorroboratedDate: baseTime,
			AttributionWeight:    1.0,
			HalfLifeDays:         365,
		}
	}
	s20, _ := ComputeScore(state(20), baseTime)
	s200, _ := ComputeScore(state(200), baseTime)

	if s200 <= s20 {
		t.Fatalf("more support should score higher: %v vs %v", s200, s20)
	}
	if s200-s20 > 0.25 {
		t.Errorf("support 200 scores %v above support 20, want at most 0.25", s200-s20)
	}
	if s200 > 2*s20 {
		t.Errorf("tenfold support should not double the score: %v vs %v", s200, s20)
	}
}

func TestComputeScore_StabilityFloor(t *testing.T) {
	b := domain.BeliefState{
		SupportCount:         3,
		LastCorroboratedDate: baseTime,
		AttributionWeight:    0.1,
		HalfLifeDays:         14,
		StabilityFloorActive: true,
		UserFeedbackDelta:    -0.4,
	}
	for _, age := range []time.Duration{0, 30 * day, 365 * day, 3650 * day} {
		score, _ := ComputeScore(b, baseTime.Add(age))
		if score < StabilityFloor {
			t.Errorf("age %v: score %v below floor", age, score)
		}
	}
}

func TestComputeScore_CategorySensitivity(t *testing.T) {
	now := baseTime.Add(30 * day)

	short := domain.BeliefState{
		SupportCount:         1,
		LastCorroboratedDate: baseTime,
		AttributionWeight:    domain.AttributionUserExplicit.Weight(),
		HalfLifeDays:         domain.CategoryContext.HalfLifeDays(),
	}
	long := domain.BeliefState{
		SupportCount:          5,
		LastCorroboratedDate:  baseTime,
		AttributionWeight:     domain.AttributionUserExplicit.Weight(),
		HalfLifeDays:          domain.CategoryIdentity.HalfLifeDays(),
		ExternalCorroboration: 0.3,
		UserFeedbackDelta:     domain.FeedbackEffects[domain.FeedbackConfirmed].Delta,
		StabilityFloorActive:  true,
	}

	if got, _ := ComputeScore(short, now); got >= 0.15 {
		t.Errorf("short half-life item at 30 days = %v, want < 0.15", got)
	}
	if got, _ := ComputeScore(long, now); got <= 0.70 {
		t.Errorf("long half-life item at 30 days = %v, want > 0.70", got)
	}
}

func TestComputeScore_FeedbackCapIsOneSided(t *testing.T) {
	b := domain.BeliefState{
		SupportCount:         1,
		LastCorroboratedDate: baseTime,
		AttributionWeight:    1.0,
		HalfLifeDays:         365,
	}
	base, _ := ComputeScore(b, baseTime)

	b.UserFeedbackDelta = 0.9
	capped, _ := ComputeScore(b, baseTime)
	if math.Abs(capped-(base+MaxFeedbackDelta)) > 1e-9 {
		t.Errorf("positive feedback should cap at %v, got delta %v", MaxFeedbackDelta, capped-base)
	}

	b.UserFeedbackDelta = -0.4
	dismissed, _ := ComputeScore(b, baseTime)
	if dismissed != 0 {
		t.Errorf("dismiss should pull an unfloored score to 0, got %v", dismissed)
	}
}

func TestComputeScore_NaNFallsBack(t *testing.T) {
	b := domain.BeliefState{
		SupportCount:          2,
		LastCorroboratedDate:  baseTime,
		AttributionWeight:     1.0,
		HalfLifeDays:          30,
		ExternalCorroboration: math.NaN(),
	}
	score, ok := ComputeScore(b, baseTime)
	if ok {
		t.Fatal("expected anomaly to be reported")
	}
	if score != AnomalyFallbackScore {
		t.Errorf("score = %v, want %v", score, AnomalyFallbackScore)
	}
}

func TestBeliefService_RecomputeActivatesFloor(t *testing.T) {
	env := newTestEnv(t)
	e := &domain.CanonicalEntity{
		ID:       uuid.New(),
		Category: domain.CategoryProject,
		Belief: domain.BeliefState{
			SupportCount:         3,
			LastCorroboratedDate: baseTime.Add(-400 * day),
			AttributionWeight:    1.0,
		},
	}
	env.belief.Recompute(e, baseTime)

	if !e.Belief.StabilityFloorActive {
		t.Error("floor should activate at support 3")
	}
	if e.Belief.HalfLifeDays != 30 {
		t.Errorf("half-life = %v, want category default 30", e.Belief.HalfLifeDays)
	}
	if e.Belief.CurrentScore != StabilityFloor {
		t.Errorf("score = %v, want floor %v", e.Belief.CurrentScore, StabilityFloor)
	}
}

func TestBeliefService_SweepOncePerWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	decaying := &domain.CanonicalEntity{
		ID:       uuid.New(),
		Category: domain.CategoryProject,
		Belief: domain.BeliefState{
			SupportCount:         1,
			LastCorroboratedDate: baseTime,
			AttributionWeight:    1.0,
			HalfLifeDays:         30,
			UserFeedbackDelta:    0.25,
		},
	}
	stable := &domain.CanonicalEntity{
		ID:       uuid.New(),
		Category: domain.CategoryIdentity,
		Belief: domain.BeliefState{
			SupportCount:         1,
			LastCorroboratedDate: baseTime,
			AttributionWeight:    1.0,
			HalfLifeDays:         730,
			UserFeedbackDelta:    0.25,
		},
	}
	for _, e := range []*domain.CanonicalEntity{decaying, stable} {
		env.belief.Recompute(e, baseTime)
		env.store.Put(e)
	}

	env.clock.Advance(60 * day)
	res, err := env.belief.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Skipped || res.Scanned != 2 || res.Updated != 1 {
		t.Fatalf("unexpected sweep result %+v", res)
	}

	got, _ := env.store.GetByID(ctx, decaying.ID)
	if got.Belief.CurrentScore >= decaying.Belief.CurrentScore {
		t.Errorf("decaying entity was not rewritten: %v", got.Belief.CurrentScore)
	}
	kept, _ := env.store.GetByID(ctx, stable.ID)
	if kept.Belief.CurrentScore != stable.Belief.CurrentScore {
		t.Errorf("sub-threshold drift should not be written")
	}

	env.clock.Advance(23 * time.Hour)
	res, err = env.belief.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !res.Skipped {
		t.Error("second sweep inside 24h should be skipped")
	}

	env.clock.Advance(2 * time.Hour)
	res, _ = env.belief.Sweep(ctx)
	if res.Skipped {
		t.Error("sweep after 24h should run")
	}
}
