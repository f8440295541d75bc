package domain

import "strings"

type Category string

const (
	CategorySkill      Category = "skill"
	CategoryTool       Category = "tool"
	CategoryProject    Category = "project"
	CategoryGoal       Category = "goal"
	CategoryPreference Category = "preference"
	CategoryIdentity   Category = "identity"
	CategoryContext    Category = "context"
	CategoryDomain     Category = "domain"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategorySkill,
	CategoryTool,
	CategoryProject,
	CategoryGoal,
	CategoryPreference,
	CategoryIdentity,
	CategoryContext,
	CategoryDomain,
}

func ValidCategory(c string) bool {
	switch Category(c) {
	case CategorySkill, CategoryTool, CategoryProject, CategoryGoal,
		CategoryPreference, CategoryIdentity, CategoryContext, CategoryDomain:
		return true
	}
	return false
}

// CategoryHalfLifeDays is how long an unreinforced claim of each category
// takes to lose half its recency weight. Identity persists for years,
// situational context for about two weeks.
var CategoryHalfLifeDays = map[Category]float64{
	CategoryIdentity:   730,
	CategorySkill:      365,
	CategoryDomain:     365,
	CategoryPreference: 180,
	CategoryTool:       120,
	CategoryGoal:       90,
	CategoryProject:    30,
	CategoryContext:    14,
}

const defaultHalfLifeDays = 90

func (c Category) HalfLifeDays() float64 {
	if d, ok := CategoryHalfLifeDays[c]; ok {
		return d
	}
	return defaultHalfLifeDays
}

// DefaultSensitivity returns the sensitivity a new entity of this category starts with.
func (c Category) DefaultSensitivity() Sensitivity {
	if c == CategoryIdentity {
		return SensitivitySensitive
	}
	return SensitivityNormal
}

// EventType classifies whether claims of this category carry belief or only
// describe circumstances.
func (c Category) EventType() EventType {
	if c == CategoryContext {
		return EventTypeMetadata
	}
	return EventTypeBelief
}

type categoryPair struct {
	a, b Category
}

func pairOf(a, b Category) categoryPair {
	if a > b {
		a, b = b, a
	}
	return categoryPair{a: a, b: b}
}

// incompatiblePairs can never be merged, whatever the text or co-occurrence
// evidence says.
var incompatiblePairs = map[categoryPair]bool{
	pairOf(CategorySkill, CategoryIdentity):   true,
	pairOf(CategoryProject, CategoryIdentity): true,
	pairOf(CategoryTool, CategoryIdentity):    true,
	pairOf(CategoryTool, CategoryGoal):        true,
	pairOf(CategoryProject, CategoryDomain):   true,
	pairOf(CategoryGoal, CategoryDomain):      true,
}

// IncompatiblePairs returns the incompatible category table as a list.
func IncompatiblePairs() [][2]Category {
	out := make([][2]Category, 0, len(incompatiblePairs))
	for _, a := range Categories {
		for _, b := range Categories {
			if a < b && incompatiblePairs[pairOf(a, b)] {
				out = append(out, [2]Category{a, b})
			}
		}
	}
	return out
}

// MergeCompatible reports whether entities of the two categories may be merged.
func MergeCompatible(a, b Category) bool {
	if a == b {
		return true
	}
	return !incompatiblePairs[pairOf(a, b)]
}

// GenericReference is one of the fixed referring phrases eligible for
// co-occurrence alias detection.
type GenericReference string

const (
	GenericMyApp       GenericReference = "my app"
	GenericThisProject GenericReference = "this project"
	GenericIt          GenericReference = "it"
	GenericTheTool     GenericReference = "the tool"
	GenericMyWork      GenericReference = "my work"
	GenericThis        GenericReference = "this"
	GenericMyProject   GenericReference = "my project"
	GenericTheApp      GenericReference = "the app"
)

var genericReferences = map[GenericReference]bool{
	GenericMyApp:       true,
	GenericThisProject: true,
	GenericIt:          true,
	GenericTheTool:     true,
	GenericMyWork:      true,
	GenericThis:        true,
	GenericMyProject:   true,
	GenericTheApp:      true,
}

// ParseGenericReference matches text exactly (trimmed, case-insensitive)
// against the fixed phrase list.
func ParseGenericReference(text string) (GenericReference, bool) {
	g := GenericReference(strings.ToLower(strings.TrimSpace(text)))
	if genericReferences[g] {
		return g, true
	}
	return "", false
}
