package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// InMemoryOptions configures an InMemoryBroker.
type InMemoryOptions struct {
	// QueueSize is the buffer capacity of every queue. Publishing to a full
	// queue fails with ErrQueueFull.
	QueueSize int
}

// InMemoryBroker is a process-local Broker. Queues are buffered channels;
// several consumers on one queue compete for messages like AMQP consumers
// do. It is safe for concurrent use and suited for tests, examples and
// single-process deployments.
type InMemoryBroker struct {
	mu        sync.RWMutex
	queues    map[string]*memQueue
	queueSize int

	closed    chan struct{}
	closeOnce sync.Once
}

type memMessage struct {
	msg         Message
	redelivered bool
}

type memQueue struct {
	name      string
	exclusive bool
	consumed  atomic.Bool
	ch        chan memMessage
	deleted   chan struct{}
	once      sync.Once
}

func (q *memQueue) delete() { q.once.Do(func() { close(q.deleted) }) }

// push enqueues without blocking.
func (q *memQueue) push(m memMessage) error {
	select {
	case <-q.deleted:
		return nil
	default:
	}
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// NewInMemoryBroker returns an open in-memory session.
func NewInMemoryBroker(optFns ...func(o *InMemoryOptions)) *InMemoryBroker {
	opts := InMemoryOptions{QueueSize: 1024}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &InMemoryBroker{
		queues:    make(map[string]*memQueue),
		queueSize: opts.QueueSize,
		closed:    make(chan struct{}),
	}
}

func (b *InMemoryBroker) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// DeclareQueue implements Broker.
func (b *InMemoryBroker) DeclareQueue(_ context.Context, name string) error {
	if b.isClosed() {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = b.newQueueLocked(name, false)
	}
	return nil
}

// DeclareReplyQueue implements Broker. Names follow the RabbitMQ
// server-named queue convention.
func (b *InMemoryBroker) DeclareReplyQueue(_ context.Context) (string, error) {
	if b.isClosed() {
		return "", ErrClosed
	}
	name := "amq.gen-" + uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[name] = b.newQueueLocked(name, true)
	return name, nil
}

func (b *InMemoryBroker) newQueueLocked(name string, exclusive bool) *memQueue {
	return &memQueue{
		name:      name,
		exclusive: exclusive,
		ch:        make(chan memMessage, b.queueSize),
		deleted:   make(chan struct{}),
	}
}

// DeleteQueue implements Broker. Consumers of the queue are stopped.
func (b *InMemoryBroker) DeleteQueue(_ context.Context, name string) error {
	if b.isClosed() {
		return ErrClosed
	}
	b.mu.Lock()
	q, ok := b.queues[name]
	delete(b.queues, name)
	b.mu.Unlock()
	if ok {
		q.delete()
	}
	return nil
}

// Publish implements Broker. The body is copied so callers may reuse it.
func (b *InMemoryBroker) Publish(ctx context.Context, queue string, msg Message) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	q, ok := b.queues[queue]
	b.mu.RUnlock()
	if !ok {
		return nil // unroutable
	}
	body := make([]byte, len(msg.Body))
	copy(body, msg.Body)
	msg.Body = body
	return q.push(memMessage{msg: msg})
}

// Consume implements Broker.
func (b *InMemoryBroker) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	b.mu.RLock()
	q, ok := b.queues[queue]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrQueueNotFound
	}
	if q.exclusive && !q.consumed.CompareAndSwap(false, true) {
		return nil, ErrExclusiveQueue
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		if q.exclusive {
			defer q.consumed.Store(false)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.closed:
				return
			case <-q.deleted:
				return
			case m := <-q.ch:
				select {
				case out <- b.newDelivery(q, m):
				case <-ctx.Done():
					_ = q.push(m)
					return
				case <-b.closed:
					return
				case <-q.deleted:
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *InMemoryBroker) newDelivery(q *memQueue, m memMessage) Delivery {
	var settled atomic.Bool
	ack := func() error {
		settled.Store(true)
		return nil
	}
	nack := func(requeue bool) error {
		if settled.Swap(true) || !requeue {
			return nil
		}
		return q.push(memMessage{msg: m.msg, redelivered: true})
	}
	return NewDelivery(m.msg, m.redelivered, ack, nack)
}

// Depth reports how many messages are waiting in a queue; zero for unknown
// queues.
func (b *InMemoryBroker) Depth(queue string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if q, ok := b.queues[queue]; ok {
		return len(q.ch)
	}
	return 0
}

// HasQueue reports whether a queue is currently declared.
func (b *InMemoryBroker) HasQueue(queue string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.queues[queue]
	return ok
}

// Close implements Broker.
func (b *InMemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
