package rpc

import (
	"context"
	"testing"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/stretchr/testify/require"
)

// startServer declares queue and serves h until the test ends.
func startServer(t *testing.T, b broker.Broker, queue string, h HandlerFunc, optFns ...func(o *ServerOptions)) *Server {
	t.Helper()
	require.NoError(t, b.DeclareQueue(context.Background(), queue))

	srv, err := NewServer(b, queue, h, optFns...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func newClient(t *testing.T, b broker.Broker, optFns ...func(o *ClientOptions)) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), b, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
