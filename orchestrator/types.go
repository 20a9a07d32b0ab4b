package orchestrator

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/hupe1980/brokermesh/internal/util"
)

// Request is one caller request for a recommendation.
type Request struct {
	UserID string  `json:"user_id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	// Age of the user; zero when unknown.
	Age         int    `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	TimeOfDay   string `json:"time_of_day,omitempty"` // "01:25 PM"
	MotionState string `json:"motion_state,omitempty"`
}

// TimeLayout is the clock format of Request.TimeOfDay.
const TimeLayout = "03:04 PM"

// Validate checks the request and returns a *util.ValidationError for the
// first offending field.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return &util.ValidationError{Field: "user_id", Value: r.UserID, Message: "must not be empty"}
	case math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90:
		return &util.ValidationError{Field: "lat", Value: r.Lat, Message: "must be within [-90, 90]"}
	case math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180:
		return &util.ValidationError{Field: "lon", Value: r.Lon, Message: "must be within [-180, 180]"}
	case r.Age < 0:
		return &util.ValidationError{Field: "age", Value: r.Age, Message: "must not be negative"}
	}
	if r.TimeOfDay != "" {
		if _, err := time.Parse(TimeLayout, r.TimeOfDay); err != nil {
			return &util.ValidationError{Field: "time_of_day", Value: r.TimeOfDay, Message: "must look like 01:25 PM"}
		}
	}
	return nil
}

// LocationRequest is the body sent to the location backend.
type LocationRequest struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Time        string  `json:"time,omitempty"`
	UserID      string  `json:"user_id"`
	Age         int     `json:"age,omitempty"`
	Gender      string  `json:"gender,omitempty"`
	MotionState string  `json:"motion_state,omitempty"`
}

// Address is the structured part of a reverse geocoding result.
type Address struct {
	Road        string `json:"road,omitempty"`
	City        string `json:"city,omitempty"`
	County      string `json:"county,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// Location is the location backend's reply. Context holds boolean
// situation flags such as "near_park" or "at_home".
type Location struct {
	DisplayName string          `json:"display_name"`
	Address     Address         `json:"address"`
	Source      string          `json:"source,omitempty"`
	Context     map[string]bool `json:"context,omitempty"`
}

// WeatherRequest is the body sent to the weather backend.
type WeatherRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Weather is the weather backend's reply.
type Weather struct {
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
}

// PreferencesRequest is the body sent to the preferences backend.
type PreferencesRequest struct {
	UserID string `json:"user_id"`
}

// Activity is one stored user preference.
type Activity struct {
	Name        string `json:"activity_name"`
	Description string `json:"activity_description,omitempty"`
	Defined     bool   `json:"defined"`
}

// Preferences is the preferences backend's reply.
type Preferences struct {
	Activities []Activity `json:"activities"`
}

// EventsRequest is the body sent to the events backend.
type EventsRequest struct {
	State   string `json:"state"`
	Country string `json:"country"`
}

// EventsResponse is the events backend's reply.
type EventsResponse struct {
	Events []json.RawMessage `json:"events"`
}

// PlacesRequest is the body sent to the places backend.
type PlacesRequest struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Query string  `json:"query"`
}

// PlacesResponse is the places backend's reply.
type PlacesResponse struct {
	Places []json.RawMessage `json:"places"`
}

// ContentRequest is the body sent to the content backend.
type ContentRequest struct {
	Query      string `json:"query,omitempty"`
	Language   string `json:"language,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// ContentResponse is the content backend's reply.
type ContentResponse struct {
	Blogs []json.RawMessage `json:"blogs"`
}

// Slot names of the Aggregate Result.
const (
	SlotLocation    = "location"
	SlotWeather     = "weather"
	SlotPreferences = "preferences"
	SlotEvents      = "events"
	SlotPlaces      = "places"
	SlotContent     = "content"
	SlotEnrichment  = "enrichment"
)

// Result is the Aggregate Result of one orchestration. A nil pointer or nil
// slice marks an absent slot.
type Result struct {
	Location    *Location         `json:"location"`
	Weather     *Weather          `json:"weather"`
	Preferences *Preferences      `json:"preferences"`
	Events      []json.RawMessage `json:"events"`
	Places      []json.RawMessage `json:"places"`
	Content     []json.RawMessage `json:"content"`

	// Category is the zero value, and omitted from JSON, when no category
	// matched.
	Category Category `json:"category,omitzero"`
	// Enrichment holds the items of the category lookup, if any succeeded.
	Enrichment      []json.RawMessage `json:"enrichment,omitempty"`
	EnrichmentError string            `json:"enrichment_error,omitempty"`

	// Summary is the derived text handed to text generation.
	Summary string `json:"summary"`
}

// Has reports whether a named slot holds a payload.
func (r *Result) Has(slot string) bool {
	switch slot {
	case SlotLocation:
		return r.Location != nil
	case SlotWeather:
		return r.Weather != nil
	case SlotPreferences:
		return r.Preferences != nil
	case SlotEvents:
		return r.Events != nil
	case SlotPlaces:
		return r.Places != nil
	case SlotContent:
		return r.Content != nil
	case SlotEnrichment:
		return r.Enrichment != nil
	default:
		return false
	}
}
