package citation

import (
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragment(text string) domain.CandidateFragment {
	return domain.CandidateFragment{
		ID:                   uuid.New(),
		Text:                 text,
		Category:             domain.CategoryTool,
		SourceConversationID: "conv-1",
		Attribution:          domain.AttributionUserExplicit,
	}
}

func TestExtract_DomainAndProximity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	swift := fragment("SwiftUI navigation")
	other := fragment("gardening tips")
	text := "I was reading about SwiftUI navigation stacks at https://www.developer.apple.com/x today."

	got := Extract(text, []domain.CandidateFragment{swift, other}, "conv-1", now)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "https://www.developer.apple.com/x", c.URL)
	assert.Equal(t, "developer.apple.com", c.Domain)
	assert.Equal(t, []uuid.UUID{swift.ID}, c.RelatedFragmentIDs)
	assert.InDelta(t, 0.6, c.ProximityScore, 1e-9)
	assert.Equal(t, 1, c.CitedCount)
	assert.Equal(t, now, c.FirstCitedDate)
}

func TestExtract_NoRelatedCandidates(t *testing.T) {
	got := Extract("see http://example.com/a", []domain.CandidateFragment{fragment("the app")}, "conv-1", time.Now())
	require.Len(t, got, 1)
	assert.Empty(t, got[0].RelatedFragmentIDs)
	assert.InDelta(t, 0.1, got[0].ProximityScore, 1e-9)
}

func TestExtract_WindowIsBounded(t *testing.T) {
	far := fragment("Kubernetes")
	text := "Kubernetes" + strings.Repeat(" ", 300) + "https://k8s.io/docs"
	got := Extract(text, []domain.CandidateFragment{far}, "conv-1", time.Now())
	require.Len(t, got, 1)
	assert.Empty(t, got[0].RelatedFragmentIDs)
}

func TestExtract_DuplicateURLInChunk(t *testing.T) {
	text := "https://github.com/a and again https://github.com/a."
	got := Extract(text, nil, "conv-1", time.Now())
	require.Len(t, got, 1)
	assert.Equal(t, "https://github.com/a", got[0].URL)
	assert.Equal(t, 1, got[0].CitedCount)
}

func TestExtract_StopsAtBrackets(t *testing.T) {
	got := Extract("[link](https://go.dev/doc)", nil, "conv-1", time.Now())
	require.Len(t, got, 1)
	assert.Equal(t, "https://go.dev/doc", got[0].URL)
	assert.Equal(t, "go.dev", got[0].Domain)
}

func TestProximityScore_Caps(t *testing.T) {
	assert.InDelta(t, 0.1, ProximityScore(0), 1e-9)
	assert.InDelta(t, 0.7, ProximityScore(2), 1e-9)
	assert.InDelta(t, 1.0, ProximityScore(9), 1e-9)
}

func TestAuthorityTable(t *testing.T) {
	table := DefaultAuthorityTable()
	assert.InDelta(t, 0.15, table.Score("developer.apple.com"), 1e-9)
	assert.InDelta(t, 0.10, table.Score("docs.github.com"), 1e-9)
	assert.InDelta(t, 0.06, table.Score("en.wikipedia.org"), 1e-9)
	assert.InDelta(t, DefaultAuthority, table.Score("example.com"), 1e-9)
}

func TestParseAuthorityTable(t *testing.T) {
	data := []byte(`
domain_groups:
  - category: vendor_docs
    score: 0.2
    domains: [developer.apple.com]
default_score: 0.01
`)
	table, err := ParseAuthorityTable(data)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, table.Score("developer.apple.com"), 1e-9)
	assert.InDelta(t, 0.01, table.Score("example.org"), 1e-9)

	_, err = ParseAuthorityTable([]byte("domain_groups:\n  - category: x\n    score: 0.9\n"))
	assert.Error(t, err)
}
