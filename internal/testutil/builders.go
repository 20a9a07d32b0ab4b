package testutil

import (
	"github.com/hupe1980/brokermesh/orchestrator"
)

// RequestBuilder constructs recommendation requests with fluent chaining.
// Example:
//
//	req := NewRequestBuilder("u1").At(37.77, -122.41).Clock("01:25 PM").Build()
type RequestBuilder struct {
	req orchestrator.Request
}

// NewRequestBuilder starts a request for userID located in San Francisco.
func NewRequestBuilder(userID string) *RequestBuilder {
	return &RequestBuilder{req: orchestrator.Request{UserID: userID, Lat: 37.77, Lon: -122.41}}
}

// At sets the coordinates (chainable).
func (b *RequestBuilder) At(lat, lon float64) *RequestBuilder {
	b.req.Lat, b.req.Lon = lat, lon
	return b
}

// Age sets the user age (chainable).
func (b *RequestBuilder) Age(age int) *RequestBuilder {
	b.req.Age = age
	return b
}

// Gender sets the user gender (chainable).
func (b *RequestBuilder) Gender(g string) *RequestBuilder {
	b.req.Gender = g
	return b
}

// Clock sets the time of day, e.g. "01:25 PM" (chainable).
func (b *RequestBuilder) Clock(t string) *RequestBuilder {
	b.req.TimeOfDay = t
	return b
}

// Motion sets the motion state (chainable).
func (b *RequestBuilder) Motion(m string) *RequestBuilder {
	b.req.MotionState = m
	return b
}

// Build returns the request.
func (b *RequestBuilder) Build() orchestrator.Request { return b.req }

// LocationBuilder constructs location backend replies.
type LocationBuilder struct {
	loc orchestrator.Location
}

// NewLocationBuilder starts with the San Francisco fixture.
func NewLocationBuilder() *LocationBuilder {
	return &LocationBuilder{loc: orchestrator.Location{
		DisplayName: "San Francisco, CA",
		Address: orchestrator.Address{
			City:        "San Francisco",
			State:       "California",
			Country:     "United States",
			CountryCode: "us",
		},
		Source:  "stub",
		Context: map[string]bool{},
	}}
}

// DisplayName overrides the display name (chainable).
func (b *LocationBuilder) DisplayName(name string) *LocationBuilder {
	b.loc.DisplayName = name
	return b
}

// Region sets state and country (chainable).
func (b *LocationBuilder) Region(state, country string) *LocationBuilder {
	b.loc.Address.State, b.loc.Address.Country = state, country
	return b
}

// Flag sets a context flag such as "near_park" (chainable).
func (b *LocationBuilder) Flag(name string) *LocationBuilder {
	b.loc.Context[name] = true
	return b
}

// Build returns a copy of the location.
func (b *LocationBuilder) Build() orchestrator.Location {
	loc := b.loc
	loc.Context = make(map[string]bool, len(b.loc.Context))
	for k, v := range b.loc.Context {
		loc.Context[k] = v
	}
	return loc
}
