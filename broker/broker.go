// Package broker defines the one-way queue transport every backend call
// travels over. A Broker is an explicit session object: it is opened by its
// constructor, shared by the components that hold it and released with Close.
//
// Two kinds of queues exist:
//   - durable named queues, one per backend capability or work queue
//   - private reply queues, exclusive to a single rpc.Client instance
//
// Implementations:
//   - InMemoryBroker: process-local queues for tests, examples and single-binary setups
//   - amqp.Broker: RabbitMQ via the default exchange
package broker

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by every operation on a closed broker session.
	ErrClosed = errors.New("broker: session closed")
	// ErrQueueNotFound is returned when consuming from an undeclared queue.
	ErrQueueNotFound = errors.New("broker: queue not found")
	// ErrQueueFull is returned when an in-memory queue buffer is exhausted.
	ErrQueueFull = errors.New("broker: queue full")
	// ErrExclusiveQueue is returned when a second consumer attaches to a
	// private reply queue.
	ErrExclusiveQueue = errors.New("broker: exclusive queue already consumed")
)

// Message is a single one-way message. CorrelationID and ReplyTo are
// transport properties; Body is opaque to the broker.
type Message struct {
	Body          []byte
	ContentType   string
	CorrelationID string
	ReplyTo       string
	// Persistent asks the broker to survive restarts (work queues).
	Persistent bool
}

// Delivery is a consumed message awaiting acknowledgement. A message is only
// considered consumed once Ack is called; Nack with requeue makes it
// available for redelivery.
type Delivery struct {
	Message
	Redelivered bool

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery wraps a message with its acknowledgement callbacks. Broker
// implementations use it; nil callbacks are treated as no-ops.
func NewDelivery(msg Message, redelivered bool, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Message: msg, Redelivered: redelivered, ack: ack, nack: nack}
}

// Ack marks the delivery as consumed.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the delivery, optionally returning it to its queue.
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Broker is the transport session shared by clients, adapters and workers.
// All methods are safe for concurrent use.
type Broker interface {
	// DeclareQueue idempotently declares a durable named queue.
	DeclareQueue(ctx context.Context, name string) error

	// DeclareReplyQueue declares a private, exclusive, non-durable queue and
	// returns its broker-assigned name.
	DeclareReplyQueue(ctx context.Context) (string, error)

	// DeleteQueue removes a queue and drops its pending messages.
	DeleteQueue(ctx context.Context, name string) error

	// Publish sends msg to the named queue. Messages routed to a queue that
	// does not exist are dropped, mirroring the AMQP default exchange.
	Publish(ctx context.Context, queue string, msg Message) error

	// Consume starts delivering messages from queue. The returned channel is
	// closed once ctx is done or the session is closed. Deliveries handed out
	// before that can still be acknowledged afterwards. Unacknowledged
	// deliveries are not redelivered to the same consumer.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)

	// Close releases the session. Open consumer channels are closed.
	Close() error
}
