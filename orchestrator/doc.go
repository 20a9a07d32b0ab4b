// Package orchestrator composes backend calls into one Aggregate Result.
//
// A run has four phases:
//  1. sequential: location, weather and preferences, each request built only
//     after the previous reply is known
//  2. parallel: events, places and content fetched concurrently with an
//     all-or-nothing join
//  3. derivation: a Classifier picks one category of the fixed Catalogue and
//     at most one enrichment lookup is issued for it
//  4. assembly: the payloads are rendered into a summary text
//
// Failures in the first two phases abort the run. The enrichment lookup
// degrades to an empty slot instead.
package orchestrator
