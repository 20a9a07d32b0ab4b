package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/cache"
	"github.com/hupe1980/brokermesh/envelope"
	"github.com/hupe1980/brokermesh/logging"
	"github.com/hupe1980/brokermesh/model"
	"github.com/hupe1980/brokermesh/orchestrator"
)

// ErrWorkerStopped is returned by Run when the broker closed the consumer.
var ErrWorkerStopped = errors.New("jobs: consumer closed by broker")

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	// Queue is the work queue (DefaultQueue).
	Queue string
	// Purpose namespaces result keys (DefaultPurpose).
	Purpose string
	// Concurrency bounds the jobs processed at once.
	Concurrency int64
	// JobTimeout bounds one job, orchestration and generation included.
	JobTimeout time.Duration
	// RecordFailures stores a StatusFailed entry when a job fails. When
	// false a failed job leaves its key absent and Poll reports pending.
	RecordFailures bool
	// Codec decodes job bodies.
	Codec envelope.Codec
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Worker consumes the work queue and stores every outcome under
// ResultKey(purpose, user_id).
type Worker struct {
	broker      broker.Broker
	recommender Recommender
	store       cache.Store
	sem         *semaphore.Weighted
	opts        WorkerOptions
}

// jobLogger is implemented by logging.MeshLogger.
type jobLogger interface {
	LogJob(key, status string, dur time.Duration, err error)
}

// NewWorker creates a Worker. Run starts consuming.
func NewWorker(b broker.Broker, r Recommender, store cache.Store, optFns ...func(o *WorkerOptions)) (*Worker, error) {
	if b == nil {
		return nil, errors.New("jobs: broker must not be nil")
	}
	if r == nil {
		return nil, errors.New("jobs: recommender must not be nil")
	}
	if store == nil {
		return nil, errors.New("jobs: store must not be nil")
	}
	opts := WorkerOptions{
		Queue:          DefaultQueue,
		Purpose:        DefaultPurpose,
		Concurrency:    4,
		JobTimeout:     5 * time.Minute,
		RecordFailures: true,
		Codec:          envelope.Default,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Worker{
		broker:      b,
		recommender: r,
		store:       store,
		sem:         semaphore.NewWeighted(opts.Concurrency),
		opts:        opts,
	}, nil
}

// Run declares the work queue and processes jobs until ctx is done or the
// broker closes the consumer. Jobs in flight when ctx ends run to completion
// (bounded by JobTimeout) before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.broker.DeclareQueue(ctx, w.opts.Queue); err != nil {
		return fmt.Errorf("jobs: declare %s: %w", w.opts.Queue, err)
	}
	deliveries, err := w.broker.Consume(ctx, w.opts.Queue)
	if err != nil {
		return fmt.Errorf("jobs: consume %s: %w", w.opts.Queue, err)
	}
	w.opts.Logger.Info("jobs.worker.started", "queue", w.opts.Queue, "concurrency", w.opts.Concurrency)

	var wg sync.WaitGroup
	for d := range deliveries {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			_ = d.Nack(true)
			break
		}
		wg.Add(1)
		go func(d broker.Delivery) {
			defer wg.Done()
			defer w.sem.Release(1)
			w.process(context.WithoutCancel(ctx), d)
		}(d)
	}
	wg.Wait()
	w.opts.Logger.Info("jobs.worker.stopped", "queue", w.opts.Queue)

	if ctx.Err() != nil {
		return nil
	}
	return ErrWorkerStopped
}

func (w *Worker) process(ctx context.Context, d broker.Delivery) {
	var req orchestrator.Request
	if err := w.opts.Codec.Decode(d.Body, &req); err != nil {
		w.opts.Logger.Error("jobs.worker.job.malformed", "job_id", d.CorrelationID, "error", err.Error())
		_ = d.Ack()
		return
	}
	if err := req.Validate(); err != nil {
		w.opts.Logger.Error("jobs.worker.job.malformed", "job_id", d.CorrelationID, "error", err.Error())
		_ = d.Ack()
		return
	}

	key := ResultKey(w.opts.Purpose, req.UserID)
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	text, err := w.recommender.Recommend(jobCtx, req)
	cancel()

	var entry Entry
	switch {
	case err != nil:
		w.logJob(key, StatusFailed, time.Since(start), err)
		if !w.opts.RecordFailures {
			_ = d.Ack()
			return
		}
		entry = Entry{Status: StatusFailed, Error: err.Error()}
	case text == "":
		entry = Entry{Status: StatusReady, Recommendation: model.NoSuggestion}
	default:
		entry = Entry{Status: StatusReady, Recommendation: text}
	}

	if serr := w.store.Set(ctx, key, mustJSON(entry)); serr != nil {
		// One retry through the broker, then the job is dropped.
		w.opts.Logger.Error("jobs.worker.store.failed", "key", key, "redelivered", d.Redelivered, "error", serr.Error())
		_ = d.Nack(!d.Redelivered)
		return
	}
	_ = d.Ack()
	if err == nil {
		w.logJob(key, StatusReady, time.Since(start), nil)
	}
	w.opts.Logger.Debug("jobs.worker.stored", "key", key, "status", entry.Status)
}

func (w *Worker) logJob(key string, status Status, dur time.Duration, err error) {
	if l, ok := w.opts.Logger.(jobLogger); ok {
		l.LogJob(key, string(status), dur, err)
		return
	}
	if err != nil {
		w.opts.Logger.Error("jobs.worker.finished", "key", key, "status", status, "error", err.Error())
		return
	}
	w.opts.Logger.Info("jobs.worker.finished", "key", key, "status", status, "duration_ms", dur.Milliseconds())
}

func mustJSON(e Entry) []byte {
	b, _ := json.Marshal(e)
	return b
}
