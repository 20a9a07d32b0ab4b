// Package logging provides a minimal logging interface and adapters for brokermesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that clients, adapters, the orchestrator and workers use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - MeshLogger with component / correlation context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	client, err := rpc.NewClient(ctx, b, func(o *rpc.ClientOptions) { o.Logger = logger })
//
// Messages are dotted event names followed by key/value pairs, for example
// logger.Info("rpc.client.call.completed", "queue", "geo_rpc", "duration_ms", 12).
package logging
