package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/orchestrator"
	"github.com/hupe1980/brokermesh/rpc"
)

// BackendOptions configures StartBackends.
type BackendOptions struct {
	Queues orchestrator.Queues
	// Location is returned by the location stub.
	Location orchestrator.Location
	// Handlers replace the stub of a queue.
	Handlers map[string]rpc.HandlerFunc
	// ServerOptions apply to every adapter.
	ServerOptions []func(o *rpc.ServerOptions)
}

// Backends is a set of running stub adapters.
type Backends struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	counts  map[string]*atomic.Int64
	queues  orchestrator.Queues
	errOnce sync.Once
	err     error
}

// StartBackends declares every backend queue on b and serves it with a stub
// handler until Stop is called.
func StartBackends(ctx context.Context, b broker.Broker, optFns ...func(o *BackendOptions)) (*Backends, error) {
	opts := BackendOptions{
		Queues:   orchestrator.DefaultQueues(),
		Location: NewLocationBuilder().Build(),
		Handlers: map[string]rpc.HandlerFunc{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	handlers := StubHandlers(opts.Queues, opts.Location)
	for q, h := range opts.Handlers {
		handlers[q] = h
	}

	ctx, cancel := context.WithCancel(ctx)
	bs := &Backends{cancel: cancel, counts: map[string]*atomic.Int64{}, queues: opts.Queues}
	for queue, h := range handlers {
		if err := b.DeclareQueue(ctx, queue); err != nil {
			cancel()
			return nil, fmt.Errorf("testutil: declare %s: %w", queue, err)
		}
		counter := &atomic.Int64{}
		bs.counts[queue] = counter
		srv, err := rpc.NewServer(b, queue, countCalls(counter, h), opts.ServerOptions...)
		if err != nil {
			cancel()
			return nil, err
		}
		bs.wg.Add(1)
		go func() {
			defer bs.wg.Done()
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, rpc.ErrConsumerClosed) {
				bs.errOnce.Do(func() { bs.err = err })
			}
		}()
	}
	return bs, nil
}

// MustStartBackends starts the stubs on b and stops them when the test ends.
func MustStartBackends(t testing.TB, b broker.Broker, optFns ...func(o *BackendOptions)) *Backends {
	t.Helper()
	bs, err := StartBackends(context.Background(), b, optFns...)
	if err != nil {
		t.Fatalf("start backends: %v", err)
	}
	t.Cleanup(func() { _ = bs.Stop() })
	return bs
}

// Calls reports how many requests queue received.
func (bs *Backends) Calls(queue string) int64 {
	if c, ok := bs.counts[queue]; ok {
		return c.Load()
	}
	return 0
}

// Queues returns the served queue names.
func (bs *Backends) Queues() orchestrator.Queues { return bs.queues }

// Stop cancels every adapter and waits for in-flight handlers.
func (bs *Backends) Stop() error {
	bs.cancel()
	bs.wg.Wait()
	return bs.err
}

func countCalls(c *atomic.Int64, h rpc.HandlerFunc) rpc.HandlerFunc {
	return func(ctx context.Context, req *rpc.Request) (any, error) {
		c.Add(1)
		return h(ctx, req)
	}
}

// StubHandlers returns canned handlers for each backend queue.
func StubHandlers(q orchestrator.Queues, loc orchestrator.Location) map[string]rpc.HandlerFunc {
	return map[string]rpc.HandlerFunc{
		q.Location: rpc.Typed(func(_ context.Context, _ orchestrator.LocationRequest) (orchestrator.Location, error) {
			return loc, nil
		}),
		q.Weather: rpc.Typed(func(_ context.Context, _ orchestrator.WeatherRequest) (orchestrator.Weather, error) {
			return orchestrator.Weather{Temperature: 18.5, Description: "clear sky"}, nil
		}),
		q.Preferences: rpc.Typed(func(_ context.Context, r orchestrator.PreferencesRequest) (orchestrator.Preferences, error) {
			if r.UserID == "" {
				return orchestrator.Preferences{}, rpc.NewStatusError(404, "user not found")
			}
			return orchestrator.Preferences{Activities: []orchestrator.Activity{
				{Name: "hiking", Defined: true},
				{Name: "coffee", Defined: true},
			}}, nil
		}),
		q.Events: rpc.Typed(func(_ context.Context, r orchestrator.EventsRequest) (orchestrator.EventsResponse, error) {
			return orchestrator.EventsResponse{Events: Items(
				map[string]string{"title": "Outside Lands", "state": r.State},
			)}, nil
		}),
		q.Places: rpc.Typed(func(_ context.Context, r orchestrator.PlacesRequest) (orchestrator.PlacesResponse, error) {
			return orchestrator.PlacesResponse{Places: Items(
				map[string]string{"title": "Golden Gate Park", "query": r.Query},
			)}, nil
		}),
		q.Content: rpc.Typed(func(_ context.Context, r orchestrator.ContentRequest) (orchestrator.ContentResponse, error) {
			title := "10 hidden trails in SF"
			if r.Query != "" {
				title = "Best of " + r.Query
			}
			return orchestrator.ContentResponse{Blogs: Items(map[string]string{"title": title})}, nil
		}),
	}
}

// Failing returns a handler that always answers with a status-coded error.
func Failing(code int, msg string) rpc.HandlerFunc {
	return func(context.Context, *rpc.Request) (any, error) {
		return nil, rpc.NewStatusError(code, "%s", msg)
	}
}

// Items encodes each value as one raw JSON item.
func Items(values ...any) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		out = append(out, b)
	}
	return out
}
