package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/envelope"
	"github.com/hupe1980/brokermesh/logging"
	"github.com/hupe1980/brokermesh/orchestrator"
)

// ProducerOptions configures a Producer.
type ProducerOptions struct {
	// Queue is the work queue (DefaultQueue).
	Queue string
	// Codec encodes job bodies.
	Codec envelope.Codec
	// NewJobID generates job ids, carried as the message correlation id.
	NewJobID func() string
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Producer publishes jobs. The job body is the request record itself.
type Producer struct {
	broker broker.Broker
	opts   ProducerOptions

	mu       sync.Mutex
	declared bool
}

// NewProducer creates a Producer publishing over b.
func NewProducer(b broker.Broker, optFns ...func(o *ProducerOptions)) *Producer {
	opts := ProducerOptions{
		Queue:    DefaultQueue,
		Codec:    envelope.Default,
		NewJobID: uuid.NewString,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Producer{broker: b, opts: opts}
}

// Queue returns the work queue name.
func (p *Producer) Queue() string { return p.opts.Queue }

// Enqueue validates req and publishes it as a persistent job. It returns the
// job id once the broker accepted the message; completion is observed
// through Results.Poll.
func (p *Producer) Enqueue(ctx context.Context, req orchestrator.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := p.declare(ctx); err != nil {
		return "", err
	}

	body, err := p.opts.Codec.Encode(req)
	if err != nil {
		return "", fmt.Errorf("jobs: encode: %w", err)
	}
	id := p.opts.NewJobID()
	if err := p.broker.Publish(ctx, p.opts.Queue, broker.Message{
		Body:          body,
		ContentType:   p.opts.Codec.ContentType(),
		CorrelationID: id,
		Persistent:    true,
	}); err != nil {
		return "", fmt.Errorf("jobs: publish %s: %w", p.opts.Queue, err)
	}

	p.opts.Logger.Info("jobs.producer.enqueued", "queue", p.opts.Queue, "job_id", id, "user_id", req.UserID)
	return id, nil
}

// declare declares the work queue once per producer; a failed declaration is
// retried on the next Enqueue.
func (p *Producer) declare(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared {
		return nil
	}
	if err := p.broker.DeclareQueue(ctx, p.opts.Queue); err != nil {
		return fmt.Errorf("jobs: declare %s: %w", p.opts.Queue, err)
	}
	p.declared = true
	return nil
}
