// Package rpc layers request/reply calls on top of the one-way queues of a
// broker.Broker.
//
// A Client owns one private reply queue. Each Call registers a pending entry
// keyed by a fresh correlation id, publishes the request with the reply queue
// as its reply address and waits until the dispatch loop resolves the entry
// or the call deadline passes. Replies for unknown or expired correlation ids
// are discarded, so concurrent calls can share one Client.
//
// A Server wraps one backend capability as a consumer of its named queue:
//
//	srv, _ := rpc.NewServer(b, "weather_rpc", rpc.Typed(func(ctx context.Context, req WeatherRequest) (WeatherResponse, error) {
//		return lookup(ctx, req)
//	}))
//	go srv.Serve(ctx)
//
// Handler failures and panics are answered with an error record; they never
// stop the consumer.
package rpc
