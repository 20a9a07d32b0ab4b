// Package brokermesh provides a high-level façade over the broker RPC layer,
// the orchestrator, text generation and the async result cache. Most
// applications interact with this package by:
//  1. Opening a broker session (broker.NewInMemoryBroker or amqp.Dial)
//  2. Creating a Mesh via New(), optionally overriding the in-memory store
//     and the mock generator
//  3. Calling Recommend synchronously, or Enqueue and later Poll while a
//     worker from NewWorker drains the work queue
//
// All defaults are safe for local development and testing; production
// deployments supply a Redis store, a real generator and a structured logger.
package brokermesh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/cache"
	"github.com/hupe1980/brokermesh/jobs"
	"github.com/hupe1980/brokermesh/logging"
	"github.com/hupe1980/brokermesh/model"
	"github.com/hupe1980/brokermesh/orchestrator"
	"github.com/hupe1980/brokermesh/rpc"
)

// DefaultSystemPrompt frames every generation.
const DefaultSystemPrompt = "You are a concise assistant that recommends one activity or article to a mobile user based on their current context."

// Options configures the Mesh instance.
type Options struct {
	// Generator turns the summary into recommendation text (defaults to a
	// MockModel).
	Generator model.Generator
	// SystemPrompt is sent with every generation. Empty disables it.
	SystemPrompt string
	// GenerateTimeout, if positive, bounds each generation.
	GenerateTimeout time.Duration

	// Store keeps async results (defaults to an in-memory store).
	Store cache.Store
	// Purpose namespaces result keys (jobs.DefaultPurpose).
	Purpose string
	// WorkQueue receives async jobs (jobs.DefaultQueue).
	WorkQueue string

	// ClientOptions, OrchestratorOptions and ProducerOptions are forwarded
	// to the underlying components.
	ClientOptions       []func(o *rpc.ClientOptions)
	OrchestratorOptions []func(o *orchestrator.Options)
	ProducerOptions     []func(o *jobs.ProducerOptions)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the RPC client, orchestrator,
// generator and async result path over one broker session.
type Mesh struct {
	opts     Options
	broker   broker.Broker
	client   *rpc.Client
	orch     *orchestrator.Orchestrator
	producer *jobs.Producer
	results  *jobs.Results
}

// generationLogger is implemented by logging.MeshLogger.
type generationLogger interface {
	LogGeneration(model string, dur time.Duration, err error)
}

// New creates a Mesh on b. It declares the client's private reply queue; the
// broker session stays owned by the caller.
func New(ctx context.Context, b broker.Broker, optFns ...func(o *Options)) (*Mesh, error) {
	if b == nil {
		return nil, errors.New("brokermesh: broker must not be nil")
	}
	opts := Options{
		Generator:    model.NewMockModel("mock"),
		SystemPrompt: DefaultSystemPrompt,
		Store:        cache.NewInMemoryStore(),
		Purpose:      jobs.DefaultPurpose,
		WorkQueue:    jobs.DefaultQueue,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Generator == nil {
		return nil, errors.New("brokermesh: generator must not be nil")
	}
	if opts.Store == nil {
		return nil, errors.New("brokermesh: store must not be nil")
	}

	client, err := rpc.NewClient(ctx, b, append([]func(o *rpc.ClientOptions){func(o *rpc.ClientOptions) {
		o.Logger = opts.Logger
	}}, opts.ClientOptions...)...)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(client, append([]func(o *orchestrator.Options){func(o *orchestrator.Options) {
		o.Logger = opts.Logger
	}}, opts.OrchestratorOptions...)...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	producer := jobs.NewProducer(b, append([]func(o *jobs.ProducerOptions){func(o *jobs.ProducerOptions) {
		o.Queue = opts.WorkQueue
		o.Logger = opts.Logger
	}}, opts.ProducerOptions...)...)

	results := jobs.NewResults(opts.Store, func(o *jobs.ResultsOptions) { o.Purpose = opts.Purpose })

	return &Mesh{
		opts:     opts,
		broker:   b,
		client:   client,
		orch:     orch,
		producer: producer,
		results:  results,
	}, nil
}

// Aggregate runs the orchestration for req without text generation.
func (m *Mesh) Aggregate(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	return m.orch.Run(ctx, req)
}

// Recommend runs the orchestration and generates recommendation text from
// the summary. An empty completion yields model.NoSuggestion.
func (m *Mesh) Recommend(ctx context.Context, req orchestrator.Request) (string, error) {
	res, err := m.orch.Run(ctx, req)
	if err != nil {
		return "", err
	}
	return m.Generate(ctx, res.Summary)
}

// Generate sends summary to the generator.
func (m *Mesh) Generate(ctx context.Context, summary string) (string, error) {
	if m.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.GenerateTimeout)
		defer cancel()
	}
	start := time.Now()
	text, err := model.Complete(ctx, m.opts.Generator, model.Request{System: m.opts.SystemPrompt, Prompt: summary})

	info := m.opts.Generator.Info()
	if l, ok := m.opts.Logger.(generationLogger); ok {
		l.LogGeneration(info.Name, time.Since(start), err)
	} else if err != nil {
		m.opts.Logger.Error("model.generate.failed", "model", info.Name, "error", err.Error())
	}
	if err != nil {
		return "", fmt.Errorf("brokermesh: generate: %w", err)
	}
	if text == "" {
		return model.NoSuggestion, nil
	}
	return text, nil
}

// Enqueue publishes req to the work queue and returns the job id.
func (m *Mesh) Enqueue(ctx context.Context, req orchestrator.Request) (string, error) {
	return m.producer.Enqueue(ctx, req)
}

// Poll reports the async result for userID, consuming it when present.
func (m *Mesh) Poll(ctx context.Context, userID string) (jobs.Entry, error) {
	return m.results.Poll(ctx, userID)
}

// NewWorker creates a worker draining the work queue through this Mesh and
// writing into its store.
func (m *Mesh) NewWorker(optFns ...func(o *jobs.WorkerOptions)) (*jobs.Worker, error) {
	return jobs.NewWorker(m.broker, m, m.opts.Store, append([]func(o *jobs.WorkerOptions){func(o *jobs.WorkerOptions) {
		o.Queue = m.opts.WorkQueue
		o.Purpose = m.opts.Purpose
		o.Logger = m.opts.Logger
	}}, optFns...)...)
}

// Generator returns the configured generator.
func (m *Mesh) Generator() model.Generator { return m.opts.Generator }

// Close releases the RPC client and its reply queue. The broker session is
// not closed.
func (m *Mesh) Close() error {
	return m.client.Close()
}
