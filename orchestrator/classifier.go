package orchestrator

import (
	"strings"
	"time"
)

// LookupKind selects the backend an enrichment lookup goes to.
type LookupKind string

// Enrichment lookup kinds.
const (
	LookupNone    LookupKind = ""
	LookupPlaces  LookupKind = "places"
	LookupEvents  LookupKind = "events"
	LookupContent LookupKind = "content"
)

// Lookup is the optional targeted call attached to a category.
type Lookup struct {
	Kind  LookupKind `json:"kind,omitempty"`
	Query string     `json:"query,omitempty"`
}

// Category is one entry of the fixed context catalogue.
type Category struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Lookup Lookup `json:"lookup,omitzero"`
}

// IsZero reports whether no category was selected.
func (c Category) IsZero() bool { return c.Name == "" }

// Catalogue lists the context categories in index order.
var Catalogue = []Category{
	{Index: 0, Name: "near_park", Lookup: Lookup{Kind: LookupPlaces, Query: "park"}},
	{Index: 1, Name: "in_gym", Lookup: Lookup{Kind: LookupContent, Query: "workout"}},
	{Index: 2, Name: "at_school_zone"},
	{Index: 3, Name: "in_shopping_mall", Lookup: Lookup{Kind: LookupPlaces, Query: "cafe"}},
	{Index: 4, Name: "at_religious_place"},
	{Index: 5, Name: "near_hospital", Lookup: Lookup{Kind: LookupPlaces, Query: "pharmacy"}},
	{Index: 6, Name: "at_beach_or_lake", Lookup: Lookup{Kind: LookupPlaces, Query: "beach"}},
	{Index: 7, Name: "at_library", Lookup: Lookup{Kind: LookupContent, Query: "books"}},
	{Index: 8, Name: "at_movie_theatre", Lookup: Lookup{Kind: LookupEvents}},
	{Index: 9, Name: "driving"},
	{Index: 10, Name: "female_in_public"},
	{Index: 11, Name: "teen_at_home_study", Lookup: Lookup{Kind: LookupContent, Query: "study tips"}},
	{Index: 12, Name: "child_at_play", Lookup: Lookup{Kind: LookupPlaces, Query: "playground"}},
	{Index: 13, Name: "elderly_user", Lookup: Lookup{Kind: LookupPlaces, Query: "community center"}},
	{Index: 14, Name: "late_night_use", Lookup: Lookup{Kind: LookupContent, Query: "sleep"}},
	{Index: 15, Name: "work_hours", Lookup: Lookup{Kind: LookupPlaces, Query: "cafe"}},
	{Index: 16, Name: "weekend_chill", Lookup: Lookup{Kind: LookupEvents}},
	{Index: 17, Name: "at_outdoor_event", Lookup: Lookup{Kind: LookupEvents}},
	{Index: 18, Name: "at_home", Lookup: Lookup{Kind: LookupContent, Query: "indoor activities"}},
	{Index: 19, Name: "walking_jogging", Lookup: Lookup{Kind: LookupPlaces, Query: "trail"}},
}

// CategoryByName returns the catalogue entry with the given name.
func CategoryByName(name string) (Category, bool) {
	for _, c := range Catalogue {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Signals are the inputs a Classifier sees.
type Signals struct {
	// Context holds the location backend's situation flags.
	Context map[string]bool
	// Hour is the local hour of day (0-23), or -1 when unknown.
	Hour        int
	Weekday     time.Weekday
	Age         int
	Gender      string
	MotionState string
}

// Classifier picks the single category that best matches the signals.
// It reports false when none applies.
type Classifier interface {
	Classify(s Signals) (Category, bool)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(s Signals) (Category, bool)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(s Signals) (Category, bool) { return f(s) }

// RuleClassifier is a deterministic priority rule set over the signals.
// Safety situations win over places, places over demographics, and
// demographics over time of day.
type RuleClassifier struct{}

// placeFlags are checked in this order when present in the context.
var placeFlags = []string{
	"near_hospital",
	"at_school_zone",
	"at_religious_place",
	"in_gym",
	"at_outdoor_event",
	"at_movie_theatre",
	"at_library",
	"at_beach_or_lake",
	"in_shopping_mall",
	"near_park",
}

// Classify implements Classifier.
func (RuleClassifier) Classify(s Signals) (Category, bool) {
	motion := strings.ToLower(strings.TrimSpace(s.MotionState))
	gender := strings.ToLower(strings.TrimSpace(s.Gender))
	atHome := s.Context["at_home"]

	pick := func(name string) (Category, bool) { return CategoryByName(name) }

	if motion == "driving" || s.Context["driving"] {
		return pick("driving")
	}
	if (s.Hour >= 0 && (s.Hour >= 23 || s.Hour < 5)) || s.Context["late_night_use"] {
		return pick("late_night_use")
	}
	for _, flag := range placeFlags {
		if s.Context[flag] {
			return pick(flag)
		}
	}
	switch motion {
	case "walking", "jogging", "running":
		return pick("walking_jogging")
	}
	if s.Context["walking_jogging"] {
		return pick("walking_jogging")
	}

	switch {
	case s.Age > 0 && s.Age < 13:
		return pick("child_at_play")
	case s.Age >= 65:
		return pick("elderly_user")
	case s.Age >= 13 && s.Age <= 19 && atHome:
		return pick("teen_at_home_study")
	}
	if (gender == "f" || gender == "female") && !atHome {
		return pick("female_in_public")
	}

	weekend := s.Weekday == time.Saturday || s.Weekday == time.Sunday
	switch {
	case weekend && !atHome:
		return pick("weekend_chill")
	case !weekend && s.Hour >= 9 && s.Hour < 17 && !atHome:
		return pick("work_hours")
	case atHome:
		return pick("at_home")
	case weekend:
		return pick("weekend_chill")
	}
	return Category{}, false
}
