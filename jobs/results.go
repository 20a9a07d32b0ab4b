package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/brokermesh/cache"
)

// ResultsOptions configures Results.
type ResultsOptions struct {
	// Purpose namespaces result keys (DefaultPurpose).
	Purpose string
}

// Results reads job outcomes from the store.
type Results struct {
	store   cache.Store
	purpose string
}

// NewResults creates a poller over store.
func NewResults(store cache.Store, optFns ...func(o *ResultsOptions)) *Results {
	opts := ResultsOptions{Purpose: DefaultPurpose}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Results{store: store, purpose: opts.Purpose}
}

// Poll reports the outcome stored for userID and consumes it. An absent key
// yields StatusPending.
func (r *Results) Poll(ctx context.Context, userID string) (Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return Entry{}, errors.New("jobs: user id must not be empty")
	}
	raw, err := r.store.Take(ctx, ResultKey(r.purpose, userID))
	if errors.Is(err, cache.ErrNotFound) {
		return Entry{Status: StatusPending}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("jobs: poll %s: %w", userID, err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Status == "" {
		// Plain text values written by older producers.
		return Entry{Status: StatusReady, Recommendation: string(raw)}, nil
	}
	return e, nil
}
