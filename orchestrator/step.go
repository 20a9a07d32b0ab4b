package orchestrator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// step is one named unit of work. Steps write their payload into the
// Result they close over; a failed step leaves its slot untouched.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// runSequential executes steps in order. Each step starts only after the
// previous one returned, and the first failure stops the sequence.
func runSequential(ctx context.Context, steps ...step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return StepError{Step: s.name, Err: err}
		}
		if err := s.run(ctx); err != nil {
			return StepError{Step: s.name, Err: err}
		}
	}
	return nil
}

// runParallel launches all steps concurrently and joins them. The first
// failure cancels the remaining members, but the join still waits until
// every member has settled so no call is left outstanding. Any failure
// yields a *FanOutError naming each failed member; members that only stopped
// because a sibling failed are not listed.
func runParallel(ctx context.Context, steps ...step) error {
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu       sync.Mutex
		failures []StepError
	)
	for _, s := range steps {
		g.Go(func() error {
			if err := s.run(gctx); err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil && ctx.Err() == nil {
					return err
				}
				mu.Lock()
				failures = append(failures, StepError{Step: s.name, Err: err})
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}
	return &FanOutError{Failures: failures}
}
