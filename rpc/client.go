package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/envelope"
	"github.com/hupe1980/brokermesh/logging"
)

// DefaultTimeout tolerates scraping-backed backends that render pages.
const DefaultTimeout = 120 * time.Second

// ClientOptions configures a Client.
type ClientOptions struct {
	// Codec encodes request bodies and decodes reply bodies.
	Codec envelope.Codec
	// DefaultTimeout applies to calls without an explicit WithTimeout.
	DefaultTimeout time.Duration
	// NewCorrelationID generates the per-call token. Must return unique values.
	NewCorrelationID func() string
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// CallOptions configures a single call.
type CallOptions struct {
	Timeout time.Duration
}

// WithTimeout sets the deadline of a single call.
func WithTimeout(d time.Duration) func(o *CallOptions) {
	return func(o *CallOptions) { o.Timeout = d }
}

// Client performs request/reply exchanges over one-way queues. It owns one
// private reply queue and a table of in-flight correlation ids resolved by a
// single dispatch loop, so any number of concurrent calls can share one
// Client without cross-talk. Public methods are safe for concurrent use.
type Client struct {
	broker         broker.Broker
	codec          envelope.Codec
	defaultTimeout time.Duration
	newID          func() string
	logger         logging.Logger

	replyQueue string

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	cancel    context.CancelFunc
	loopDone  chan struct{}
	discarded atomic.Int64
}

// rpcCallLogger is implemented by logging.MeshLogger.
type rpcCallLogger interface {
	LogRPCCall(queue, correlationID string, dur time.Duration, err error)
}

// NewClient declares the private reply queue and starts the dispatch loop.
// ctx bounds setup only; the client lives until Close.
func NewClient(ctx context.Context, b broker.Broker, optFns ...func(o *ClientOptions)) (*Client, error) {
	opts := ClientOptions{
		Codec:            envelope.Default,
		DefaultTimeout:   DefaultTimeout,
		NewCorrelationID: uuid.NewString,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.Codec == nil {
		opts.Codec = envelope.Default
	}
	if opts.NewCorrelationID == nil {
		opts.NewCorrelationID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	replyQueue, err := b.DeclareReplyQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("rpc: declare reply queue: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	deliveries, err := b.Consume(consumeCtx, replyQueue)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("rpc: consume reply queue: %w", err)
	}

	c := &Client{
		broker:         b,
		codec:          opts.Codec,
		defaultTimeout: opts.DefaultTimeout,
		newID:          opts.NewCorrelationID,
		logger:         opts.Logger,
		replyQueue:     replyQueue,
		pending:        make(map[string]*pendingCall),
		cancel:         cancel,
		loopDone:       make(chan struct{}),
	}
	go c.dispatchLoop(deliveries)
	return c, nil
}

// ReplyQueue returns the name of the private reply queue.
func (c *Client) ReplyQueue() string { return c.replyQueue }

// Pending returns the number of outstanding calls.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Discarded returns how many replies matched no pending call.
func (c *Client) Discarded() int64 { return c.discarded.Load() }

// Call publishes req to queue and waits for the matching reply, decoding the
// success body into reply (which may be nil to ignore it).
//
// Errors:
//   - *TimeoutError when no reply arrives within the call timeout
//   - *BackendError when the backend answered with an error record or an
//     undecodable body
//   - ErrClientClosed when the client is closed while waiting
func (c *Client) Call(ctx context.Context, queue string, req, reply any, optFns ...func(o *CallOptions)) error {
	body, correlationID, err := c.roundTrip(ctx, queue, req, optFns...)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	if err := c.codec.Decode(body, reply); err != nil {
		merr := fmt.Errorf("%w: %v", envelope.ErrMalformed, err)
		return &BackendError{Queue: queue, CorrelationID: correlationID, Message: merr.Error(), Err: merr}
	}
	return nil
}

// CallRaw sends a pre-encoded payload and returns the raw success body.
func (c *Client) CallRaw(ctx context.Context, queue string, payload []byte, optFns ...func(o *CallOptions)) ([]byte, error) {
	body, _, err := c.roundTrip(ctx, queue, payload, optFns...)
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, queue string, req any, optFns ...func(o *CallOptions)) ([]byte, string, error) {
	if queue == "" {
		return nil, "", ErrEmptyQueue
	}
	opts := CallOptions{Timeout: c.defaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = c.defaultTimeout
	}

	id := c.newID()
	env, err := envelope.NewRequest(c.codec, id, c.replyQueue, req)
	if err != nil {
		return nil, id, fmt.Errorf("rpc: %s: %w", queue, err)
	}

	start := time.Now()
	pc := &pendingCall{
		correlationID: id,
		queue:         queue,
		createdAt:     start,
		deadline:      start.Add(opts.Timeout),
		future:        newFuture(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, id, ErrClientClosed
	}
	c.pending[id] = pc
	c.mu.Unlock()

	body, err := c.await(ctx, pc, env, opts.Timeout)
	if l, ok := c.logger.(rpcCallLogger); ok {
		l.LogRPCCall(queue, id, time.Since(start), err)
	} else if err != nil {
		c.logger.Warn("rpc.client.call.failed", "queue", queue, "correlation_id", id, "error", err.Error())
	} else {
		c.logger.Debug("rpc.client.call.completed", "queue", queue, "correlation_id", id, "duration_ms", time.Since(start).Milliseconds())
	}
	return body, id, err
}

func (c *Client) await(ctx context.Context, pc *pendingCall, env envelope.Request, timeout time.Duration) ([]byte, error) {
	if err := c.broker.Publish(ctx, pc.queue, env.Message()); err != nil {
		c.forget(pc.correlationID)
		return nil, fmt.Errorf("rpc: publish to %s: %w", pc.queue, err)
	}

	timer := time.NewTimer(time.Until(pc.deadline))
	defer timer.Stop()

	select {
	case <-pc.future.done():
		res := pc.future.result()
		if res.err != nil {
			return nil, res.err
		}
		return c.checkReply(pc, res.body)
	case <-timer.C:
		c.forget(pc.correlationID)
		return nil, &TimeoutError{Queue: pc.queue, CorrelationID: pc.correlationID, Timeout: timeout}
	case <-ctx.Done():
		c.forget(pc.correlationID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Queue: pc.queue, CorrelationID: pc.correlationID, Timeout: time.Since(pc.createdAt).Round(time.Millisecond)}
		}
		return nil, fmt.Errorf("rpc: call to %s: %w", pc.queue, ctx.Err())
	}
}

func (c *Client) checkReply(pc *pendingCall, body []byte) ([]byte, error) {
	rec, err := envelope.InspectReply(c.codec, body)
	if err != nil {
		c.logger.Error("rpc.client.reply.malformed", "queue", pc.queue, "correlation_id", pc.correlationID, "error", err.Error())
		return nil, &BackendError{Queue: pc.queue, CorrelationID: pc.correlationID, Message: err.Error(), Err: err}
	}
	if rec != nil {
		return nil, &BackendError{Queue: pc.queue, CorrelationID: pc.correlationID, Message: rec.Error, StatusCode: rec.StatusCode}
	}
	return body, nil
}

// forget removes a pending call so a late reply becomes inert.
func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dispatchLoop is the only reader of the reply queue.
func (c *Client) dispatchLoop(deliveries <-chan broker.Delivery) {
	defer close(c.loopDone)
	for d := range deliveries {
		_ = d.Ack()
		c.dispatch(d.CorrelationID, d.Body)
	}
	c.failAll(ErrClientClosed)
}

func (c *Client) dispatch(id string, body []byte) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.discarded.Add(1)
		c.logger.Warn("rpc.client.reply.discarded", "correlation_id", id, "reply_queue", c.replyQueue)
		return
	}
	pc.future.resolve(reply{body: body})
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	c.closed = true
	calls := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()
	for _, pc := range calls {
		pc.future.resolve(reply{err: err})
	}
}

// Close stops the dispatch loop, fails outstanding calls with
// ErrClientClosed and deletes the reply queue.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.loopDone

	if err := c.broker.DeleteQueue(context.Background(), c.replyQueue); err != nil && !errors.Is(err, broker.ErrClosed) {
		return fmt.Errorf("rpc: delete reply queue: %w", err)
	}
	return nil
}
