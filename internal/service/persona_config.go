package service

import (
	"fmt"
	"os"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"gopkg.in/yaml.v3"
)

// PersonaConfig is the YAML document listing personas.
type PersonaConfig struct {
	Personas []domain.Persona `yaml:"personas"`
}

func LoadPersonas(path string) ([]domain.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona config: %w", err)
	}
	return ParsePersonas(data)
}

func ParsePersonas(data []byte) ([]domain.Persona, error) {
	var cfg PersonaConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse persona config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.Personas, nil
}

func (c *PersonaConfig) setDefaults() {
	for i := range c.Personas {
		p := &c.Personas[i]
		if p.Space == "" {
			p.Space = domain.SpaceGeneral
		}
		if p.Name == "" {
			p.Name = p.ID
		}
	}
}

func (c *PersonaConfig) Validate() error {
	if len(c.Personas) == 0 {
		return fmt.Errorf("no personas defined")
	}

	seen := make(map[string]bool, len(c.Personas))
	for _, p := range c.Personas {
		if p.ID == "" {
			return fmt.Errorf("persona id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = true

		r := p.Rule
		if r.BeliefThreshold < 0 || r.BeliefThreshold > 1 {
			return fmt.Errorf("persona %s: belief_threshold must be between 0 and 1, got %f", p.ID, r.BeliefThreshold)
		}
		for _, f := range r.Pillars {
			if f.Label() == string(f) {
				return fmt.Errorf("persona %s: unknown pillar %q", p.ID, f)
			}
		}
		for _, et := range r.EventTypes {
			if et != domain.EventTypeBelief && et != domain.EventTypeMetadata {
				return fmt.Errorf("persona %s: unknown event type %q", p.ID, et)
			}
		}
	}
	return nil
}

// DefaultPersonas is used when no persona config file is set.
func DefaultPersonas() []domain.Persona {
	return []domain.Persona{
		{
			ID:    "professional",
			Name:  "Professional",
			Space: domain.SpaceGeneral,
			Rule: domain.PersonaMembershipRule{
				Pillars: []domain.FacetID{
					domain.FacetTechnicalCapability,
					domain.FacetProfessionalIdentity,
					domain.FacetDomainExpertise,
				},
				BeliefThreshold: VisibilityThreshold,
				EventTypes:      []domain.EventType{domain.EventTypeBelief},
			},
		},
		{
			ID:    "builder",
			Name:  "Builder",
			Space: domain.SpaceGeneral,
			Rule: domain.PersonaMembershipRule{
				Pillars:         []domain.FacetID{domain.FacetCurrentWork, domain.FacetAspirations},
				BeliefThreshold: VisibilityThreshold,
			},
		},
		{
			ID:               "personal",
			Name:             "Personal",
			Space:            domain.SpacePrivate,
			IncludeSensitive: true,
			Rule: domain.PersonaMembershipRule{
				Pillars:         []domain.FacetID{domain.FacetPersonalIdentity, domain.FacetWorkingStyle},
				BeliefThreshold: VisibilityThreshold,
			},
		},
	}
}
