package domain

type FacetID string

const (
	FacetTechnicalCapability  FacetID = "technical_capability"
	FacetProfessionalIdentity FacetID = "professional_identity"
	FacetCurrentWork          FacetID = "current_work"
	FacetAspirations          FacetID = "aspirations"
	FacetWorkingStyle         FacetID = "working_style"
	FacetPersonalIdentity     FacetID = "personal_identity"
	FacetDomainExpertise      FacetID = "domain_expertise"
)

// Facets lists every facet in presentation order.
var Facets = []FacetID{
	FacetTechnicalCapability,
	FacetProfessionalIdentity,
	FacetCurrentWork,
	FacetAspirations,
	FacetWorkingStyle,
	FacetPersonalIdentity,
	FacetDomainExpertise,
}

// MinFacetMembers is the number of visible members a facet needs before it is shown.
const MinFacetMembers = 2

type facetWeight struct {
	facet  FacetID
	weight float64
}

var categoryFacets = map[Category][]facetWeight{
	CategorySkill:      {{FacetTechnicalCapability, 0.9}, {FacetProfessionalIdentity, 0.3}},
	CategoryTool:       {{FacetTechnicalCapability, 0.7}, {FacetWorkingStyle, 0.4}},
	CategoryProject:    {{FacetCurrentWork, 0.9}, {FacetTechnicalCapability, 0.3}},
	CategoryGoal:       {{FacetAspirations, 0.9}, {FacetCurrentWork, 0.2}},
	CategoryPreference: {{FacetWorkingStyle, 0.8}, {FacetPersonalIdentity, 0.2}},
	CategoryIdentity:   {{FacetPersonalIdentity, 0.9}, {FacetProfessionalIdentity, 0.5}},
	CategoryContext:    {{FacetCurrentWork, 0.4}},
	CategoryDomain:     {{FacetDomainExpertise, 0.9}, {FacetProfessionalIdentity, 0.4}},
}

// FacetAssignmentsFor returns the static facet assignments of a category.
// The highest weight is primary.
func FacetAssignmentsFor(c Category) []FacetAssignment {
	weights := categoryFacets[c]
	out := make([]FacetAssignment, 0, len(weights))
	primary := -1
	for i, w := range weights {
		if primary < 0 || w.weight > weights[primary].weight {
			primary = i
		}
		out = append(out, FacetAssignment{Facet: w.facet, Weight: w.weight})
	}
	if primary >= 0 {
		out[primary].IsPrimary = true
	}
	return out
}

// FacetSourceCategories returns the categories that contribute to a facet.
func FacetSourceCategories(f FacetID) []Category {
	var out []Category
	for _, c := range Categories {
		for _, w := range categoryFacets[c] {
			if w.facet == f {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

var facetLabels = map[FacetID]string{
	FacetTechnicalCapability:  "Technical capability",
	FacetProfessionalIdentity: "Professional identity",
	FacetCurrentWork:          "Current work",
	FacetAspirations:          "Aspirations",
	FacetWorkingStyle:         "Working style",
	FacetPersonalIdentity:     "Personal identity",
	FacetDomainExpertise:      "Domain expertise",
}

func (f FacetID) Label() string {
	if l, ok := facetLabels[f]; ok {
		return l
	}
	return string(f)
}
