// Package citation finds URLs cited in transcript chunks and relates them to
// nearby candidate fragments. URL content is never fetched.
package citation

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/google/uuid"
)

const (
	// ProximityWindow is how many characters on each side of a URL count as nearby.
	ProximityWindow = 200
	// MinRelatedWordLength excludes short words from relatedness checks.
	MinRelatedWordLength = 4

	unrelatedProximity = 0.1
	relatedProximity   = 0.5
	perRelatedBoost    = 0.1
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>\[\](){}"']+`)

// trailing sentence punctuation is not part of the cited URL
const trailingPunct = ".,;:!?"

// Extract returns one citation per distinct URL in chunkText. citedAt is the
// conversation timestamp of the chunk.
func Extract(chunkText string, nearby []domain.CandidateFragment, conversationID string, citedAt time.Time) []domain.CitationReference {
	matches := urlPattern.FindAllStringIndex(chunkText, -1)
	if len(matches) == 0 {
		return nil
	}

	var out []domain.CitationReference
	seen := make(map[string]int)

	for _, m := range matches {
		start, end := m[0], m[1]
		raw := strings.TrimRight(chunkText[start:end], trailingPunct)
		end = start + len(raw)

		host, err := ExtractDomain(raw)
		if err != nil || host == "" {
			continue
		}

		window := strings.ToLower(proximityWindow(chunkText, start, end))
		var related []uuid.UUID
		for _, f := range nearby {
			if relatedTo(window, f.Text) {
				related = append(related, f.ID)
			}
		}

		if idx, ok := seen[raw]; ok {
			c := &out[idx]
			for _, id := range related {
				c.RelateFragment(id)
			}
			c.ProximityScore = ProximityScore(len(c.RelatedFragmentIDs))
			continue
		}

		c := domain.CitationReference{
			URL:                   raw,
			Domain:                host,
			CitedInConversationID: conversationID,
			FirstCitedDate:        citedAt,
		}
		for _, id := range related {
			c.RelateFragment(id)
		}
		c.ProximityScore = ProximityScore(len(c.RelatedFragmentIDs))
		c.RecordConversation(conversationID)

		seen[raw] = len(out)
		out = append(out, c)
	}

	return out
}

// ProximityScore is 0.1 with no related candidates, otherwise
// min(1.0, 0.5 + 0.1 per related candidate).
func ProximityScore(relatedCount int) float64 {
	if relatedCount <= 0 {
		return unrelatedProximity
	}
	return min(1.0, relatedProximity+perRelatedBoost*float64(relatedCount))
}

// ExtractDomain returns the lowercase host of a URL without port or a leading "www.".
func ExtractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host, nil
}

func proximityWindow(text string, start, end int) string {
	lo := max(0, start-ProximityWindow)
	hi := min(len(text), end+ProximityWindow)
	// keep the window on rune boundaries
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func relatedTo(window, fragmentText string) bool {
	for _, w := range strings.Fields(fragmentText) {
		if utf8.RuneCountInString(w) < MinRelatedWordLength {
			continue
		}
		if strings.Contains(window, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
