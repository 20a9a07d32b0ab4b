package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/envelope"
	"github.com/hupe1980/brokermesh/logging"
)

// Request is the decoded view of an incoming request envelope handed to a
// HandlerFunc.
type Request struct {
	CorrelationID string
	Body          []byte
	Redelivered   bool

	codec envelope.Codec
}

// Decode decodes the request body into v. Failures wrap envelope.ErrMalformed
// and are answered with status_code 400.
func (r *Request) Decode(v any) error {
	if err := r.codec.Decode(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", envelope.ErrMalformed, err)
	}
	return nil
}

// HandlerFunc is one backend capability: a function of a request record to a
// response record or a failure.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Typed adapts a function over decoded request records into a HandlerFunc.
func Typed[Req, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, r *Request) (any, error) {
		var in Req
		if err := r.Decode(&in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Codec decodes requests and encodes replies.
	Codec envelope.Codec
	// MaxConcurrency bounds the handlers running at once. Each handler runs
	// on its own goroutine so blocking work never stalls the consumer.
	MaxConcurrency int64
	// HandlerTimeout, if positive, becomes the deadline of the handler context.
	HandlerTimeout time.Duration
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Server turns a HandlerFunc into a consumer of one named queue. Every
// request is answered on its reply address with either the handler result
// or an error record; the request is acknowledged only after the reply is
// published.
type Server struct {
	broker  broker.Broker
	queue   string
	handler HandlerFunc
	codec   envelope.Codec
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  logging.Logger
}

// NewServer creates an adapter for queue. Serve starts consuming.
func NewServer(b broker.Broker, queue string, handler HandlerFunc, optFns ...func(o *ServerOptions)) (*Server, error) {
	if queue == "" {
		return nil, ErrEmptyQueue
	}
	if handler == nil {
		return nil, errors.New("rpc: handler must not be nil")
	}
	opts := ServerOptions{
		Codec:          envelope.Default,
		MaxConcurrency: 16,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.Codec == nil {
		opts.Codec = envelope.Default
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Server{
		broker:  b,
		queue:   queue,
		handler: handler,
		codec:   opts.Codec,
		timeout: opts.HandlerTimeout,
		sem:     semaphore.NewWeighted(opts.MaxConcurrency),
		logger:  opts.Logger,
	}, nil
}

// Queue returns the queue this server consumes.
func (s *Server) Queue() string { return s.queue }

// Serve declares the queue and handles requests until ctx is done or the
// broker closes the consumer. In-flight handlers are awaited before Serve
// returns; they are not cancelled by ctx.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.broker.DeclareQueue(ctx, s.queue); err != nil {
		return fmt.Errorf("rpc: declare %s: %w", s.queue, err)
	}
	deliveries, err := s.broker.Consume(ctx, s.queue)
	if err != nil {
		return fmt.Errorf("rpc: consume %s: %w", s.queue, err)
	}
	s.logger.Info("rpc.server.started", "queue", s.queue)

	var wg sync.WaitGroup
	for d := range deliveries {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			_ = d.Nack(true)
			break
		}
		wg.Add(1)
		go func(d broker.Delivery) {
			defer wg.Done()
			defer s.sem.Release(1)
			s.handle(context.WithoutCancel(ctx), d)
		}(d)
	}
	wg.Wait()
	s.logger.Info("rpc.server.stopped", "queue", s.queue)

	if ctx.Err() != nil {
		return nil
	}
	return ErrConsumerClosed
}

func (s *Server) handle(ctx context.Context, d broker.Delivery) {
	env := envelope.RequestFromMessage(d.Message)
	if env.ReplyAddress == "" {
		s.logger.Warn("rpc.server.request.unroutable", "queue", s.queue, "correlation_id", env.CorrelationID)
		_ = d.Ack()
		return
	}

	start := time.Now()
	result, err := s.invoke(ctx, &Request{
		CorrelationID: env.CorrelationID,
		Body:          env.Body,
		Redelivered:   d.Redelivered,
		codec:         s.codec,
	})
	if err != nil {
		s.logger.Warn("rpc.server.handler.failed", "queue", s.queue, "correlation_id", env.CorrelationID, "error", err.Error())
	}

	reply := envelope.NewReply(s.codec, env.CorrelationID, result, err)
	if perr := s.broker.Publish(ctx, env.ReplyAddress, reply.Message()); perr != nil {
		s.logger.Error("rpc.server.reply.failed", "queue", s.queue, "correlation_id", env.CorrelationID, "error", perr.Error())
		_ = d.Nack(true)
		return
	}
	_ = d.Ack()
	s.logger.Debug("rpc.server.request.handled", "queue", s.queue, "correlation_id", env.CorrelationID, "duration_ms", time.Since(start).Milliseconds(), "success", err == nil)
}

// invoke runs the handler, converting panics and well-known failures into
// status-coded errors.
func (s *Server) invoke(ctx context.Context, req *Request) (result any, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &StatusError{Code: http.StatusInternalServerError, Message: fmt.Sprintf("panic: %v", r)}
				s.logger.Error("rpc.server.handler.panic", "queue", s.queue, "correlation_id", req.CorrelationID, "recover", r)
			}
		}()
		result, err = s.handler(ctx, req)
	}()
	if err == nil {
		return result, nil
	}

	var sc envelope.StatusCoder
	switch {
	case errors.As(err, &sc):
		return nil, err
	case errors.Is(err, envelope.ErrMalformed):
		return nil, &StatusError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return nil, &StatusError{Code: http.StatusGatewayTimeout, Message: err.Error()}
	default:
		return nil, err
	}
}
