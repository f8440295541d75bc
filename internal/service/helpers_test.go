package service

import (
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/citation"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/memstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var baseTime = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	store       *memstore.Store
	side        *memstore.SideStore
	writer      *memstore.WriterLock
	clock       *testClock
	belief      *BeliefService
	resolver    *ResolverService
	suggestions *SuggestionService
	conflicts   *ConflictService
	profile     *ProfileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	ms := memstore.New()
	side := memstore.NewSideStore()
	cs := memstore.CitationStore{Store: ms}
	clock := &testClock{t: baseTime}
	writer := memstore.NewWriterLock()

	belief := NewBeliefService(ms, side, citation.DefaultAuthorityTable(), writer, logger)
	belief.SetClock(clock.Now)

	resolver := NewResolverService(ms, cs, ms, ms, side, belief, writer, logger)
	resolver.SetClock(clock.Now)

	suggestions := NewSuggestionService(ms, cs, ms, ms, side, belief, writer, logger)
	suggestions.SetClock(clock.Now)

	return &testEnv{
		store:       ms,
		side:        side,
		writer:      writer,
		clock:       clock,
		belief:      belief,
		resolver:    resolver,
		suggestions: suggestions,
		conflicts:   NewConflictService(ms, side, writer, logger),
		profile:     NewProfileService(ms, ms, side, nil, writer, logger),
	}
}

func frag(text string, cat domain.Category, conv string, idx int, at time.Time) domain.CandidateFragment {
	return domain.CandidateFragment{
		ID:                    uuid.New(),
		Text:                  text,
		Category:              cat,
		SourceConversationID:  conv,
		SourceChunkID:         conv + "-chunk",
		MessageIndex:          idx,
		ConversationTimestamp: at,
		Attribution:           domain.AttributionUserExplicit,
		RawConfidence:         0.9,
	}
}

// liveByText returns the unabsorbed entity with the given canonical text.
func (e *testEnv) liveByText(t *testing.T, text string) *domain.CanonicalEntity {
	t.Helper()
	for _, ent := range e.store.All() {
		if ent.MergedInto == nil && strings.EqualFold(ent.CanonicalText, text) {
			return &ent
		}
	}
	t.Fatalf("no live entity with text %q", text)
	return nil
}

func (e *testEnv) countLive() int {
	n := 0
	for _, ent := range e.store.All() {
		if ent.MergedInto == nil {
			n++
		}
	}
	return n
}
