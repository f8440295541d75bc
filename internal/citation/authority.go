package citation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAuthority is the corroboration boost of a domain missing from the table.
const DefaultAuthority = 0.02

// AuthorityConfig is the YAML form of the per-domain authority table.
type AuthorityConfig struct {
	DomainGroups []struct {
		Category string   `yaml:"category"`
		Score    float64  `yaml:"score"`
		Domains  []string `yaml:"domains"`
	} `yaml:"domain_groups"`
	DefaultScore float64 `yaml:"default_score"`
}

// AuthorityTable maps a citation domain to the corroboration it contributes.
type AuthorityTable struct {
	scores       map[string]float64
	defaultScore float64
}

func NewAuthorityTable(scores map[string]float64, defaultScore float64) *AuthorityTable {
	t := &AuthorityTable{scores: make(map[string]float64, len(scores)), defaultScore: defaultScore}
	for d, s := range scores {
		t.scores[strings.ToLower(d)] = s
	}
	return t
}

// DefaultAuthorityTable is used when no config file is supplied.
func DefaultAuthorityTable() *AuthorityTable {
	return NewAuthorityTable(map[string]float64{
		"developer.apple.com":   0.15,
		"developer.android.com": 0.15,
		"developer.mozilla.org": 0.12,
		"docs.python.org":       0.12,
		"go.dev":                0.12,
		"arxiv.org":             0.12,
		"github.com":            0.10,
		"gitlab.com":            0.08,
		"stackoverflow.com":     0.08,
		"wikipedia.org":         0.06,
		"medium.com":            0.03,
	}, DefaultAuthority)
}

// LoadAuthorityTable reads a YAML authority table from path.
func LoadAuthorityTable(path string) (*AuthorityTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authority table: %w", err)
	}
	return ParseAuthorityTable(data)
}

func ParseAuthorityTable(data []byte) (*AuthorityTable, error) {
	var cfg AuthorityConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse authority table: %w", err)
	}

	scores := make(map[string]float64)
	for _, g := range cfg.DomainGroups {
		if g.Score < 0 || g.Score > 0.3 {
			return nil, fmt.Errorf("authority group %q: score %v outside [0, 0.3]", g.Category, g.Score)
		}
		for _, d := range g.Domains {
			scores[d] = g.Score
		}
	}

	def := cfg.DefaultScore
	if def <= 0 {
		def = DefaultAuthority
	}
	return NewAuthorityTable(scores, def), nil
}

// Score returns the authority of host. Subdomains inherit their parent's
// score (docs.github.com scores as github.com).
func (t *AuthorityTable) Score(host string) float64 {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for h := host; h != ""; {
		if s, ok := t.scores[h]; ok {
			return s
		}
		dot := strings.IndexByte(h, '.')
		if dot < 0 {
			break
		}
		h = h[dot+1:]
	}
	return t.defaultScore
}
