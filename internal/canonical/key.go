// Package canonical builds the stable deduplication keys used to collapse
// fragments that name the same concept.
package canonical

import (
	"strings"
	"unicode"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
)

const (
	DefaultDomain = "general"
	separator     = '-'
)

// Build maps (category, domain, value) to "category:domain:value" where the
// domain and value are lower-cased, trimmed, and reduced to letters, digits
// and single separators. It never fails.
func Build(category domain.Category, domainName, value string) string {
	d := normalizeValue(domainName)
	if d == "" {
		d = DefaultDomain
	}
	return string(category) + ":" + d + ":" + normalizeValue(value)
}

// NormalizeText is the Tier A comparison form: lower-cased and trimmed.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeValue(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	lastSep := true // suppresses a leading separator
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSep = false
		case unicode.IsSpace(r) || r == '_' || r == separator:
			if !lastSep {
				b.WriteRune(separator)
				lastSep = true
			}
		}
	}
	return strings.TrimRight(b.String(), string(separator))
}
