// Package jobs implements the deferred recommendation path: a Producer
// publishes one-way jobs to a durable work queue, a Worker consumes them and
// stores each outcome in a cache.Store, and Results lets callers poll for it.
//
// Results are read-once. The first Poll that observes a stored entry consumes
// it; every later Poll reports StatusPending again.
//
//	p := jobs.NewProducer(b)
//	_, _ = p.Enqueue(ctx, req)
//
//	w, _ := jobs.NewWorker(b, recommender, store)
//	go w.Run(ctx)
//
//	entry, _ := jobs.NewResults(store).Poll(ctx, req.UserID)
package jobs

import (
	"context"

	"github.com/hupe1980/brokermesh/cache"
	"github.com/hupe1980/brokermesh/orchestrator"
)

const (
	// DefaultQueue is the work queue jobs are published to.
	DefaultQueue = "recommendation_requests"
	// DefaultPurpose namespaces result keys: "recommendation:<user_id>".
	DefaultPurpose = "recommendation"
)

// Status is the state a Poll observes for a key.
type Status string

const (
	// StatusPending means no entry exists yet (or it was already collected).
	StatusPending Status = "pending"
	// StatusReady means the recommendation was stored and is now consumed.
	StatusReady Status = "ready"
	// StatusFailed means the worker recorded a failure marker.
	StatusFailed Status = "failed"
)

// Entry is the value stored under a result key and returned by Poll.
type Entry struct {
	Status         Status `json:"status"`
	Recommendation string `json:"recommendation,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Recommender turns one request into recommendation text. The root
// brokermesh.Mesh implements it.
type Recommender interface {
	Recommend(ctx context.Context, req orchestrator.Request) (string, error)
}

// RecommenderFunc adapts a function to Recommender.
type RecommenderFunc func(ctx context.Context, req orchestrator.Request) (string, error)

// Recommend implements Recommender.
func (f RecommenderFunc) Recommend(ctx context.Context, req orchestrator.Request) (string, error) {
	return f(ctx, req)
}

// ResultKey returns the cache key for the result of userID's job.
func ResultKey(purpose, userID string) string {
	if purpose == "" {
		purpose = DefaultPurpose
	}
	return cache.Key(purpose, userID)
}
