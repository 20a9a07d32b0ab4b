package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brokermesh/broker"
	"github.com/hupe1980/brokermesh/cache"
	"github.com/hupe1980/brokermesh/model"
	"github.com/hupe1980/brokermesh/orchestrator"
)

func sfRequest(userID string) orchestrator.Request {
	return orchestrator.Request{UserID: userID, Lat: 37.77, Lon: -122.41}
}

func startWorker(t *testing.T, b broker.Broker, r Recommender, store cache.Store, optFns ...func(o *WorkerOptions)) {
	t.Helper()
	w, err := NewWorker(b, r, store, optFns...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// waitSettled polls until the entry leaves StatusPending.
func waitSettled(t *testing.T, results *Results, userID string) Entry {
	t.Helper()
	var got Entry
	require.Eventually(t, func() bool {
		e, err := results.Poll(context.Background(), userID)
		if !assert.NoError(t, err) {
			return false
		}
		got = e
		return e.Status != StatusPending
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestAsyncPath_ReadyExactlyOnce(t *testing.T) {
	ctx := context.Background()
	b := broker.NewInMemoryBroker()
	store := cache.NewInMemoryStore()
	results := NewResults(store)

	release := make(chan struct{})
	r := RecommenderFunc(func(_ context.Context, req orchestrator.Request) (string, error) {
		<-release
		return "Walk to Dolores Park, " + req.UserID, nil
	})
	startWorker(t, b, r, store)

	id, err := NewProducer(b).Enqueue(ctx, sfRequest("u1"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	e, err := results.Poll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)

	close(release)
	e = waitSettled(t, results, "u1")
	assert.Equal(t, Entry{Status: StatusReady, Recommendation: "Walk to Dolores Park, u1"}, e)

	e, err = results.Poll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
}

func TestAsyncPath_FailureMarker(t *testing.T) {
	b := broker.NewInMemoryBroker()
	store := cache.NewInMemoryStore()
	results := NewResults(store)

	r := RecommenderFunc(func(context.Context, orchestrator.Request) (string, error) {
		return "", errors.New("weather_rpc: timeout")
	})
	startWorker(t, b, r, store)

	_, err := NewProducer(b).Enqueue(context.Background(), sfRequest("u2"))
	require.NoError(t, err)

	e := waitSettled(t, results, "u2")
	assert.Equal(t, StatusFailed, e.Status)
	assert.Contains(t, e.Error, "weather_rpc")
}

func TestAsyncPath_WithoutFailureMarkers(t *testing.T) {
	b := broker.NewInMemoryBroker()
	store := cache.NewInMemoryStore()

	var calls atomic.Int32
	r := RecommenderFunc(func(context.Context, orchestrator.Request) (string, error) {
		calls.Add(1)
		return "", errors.New("boom")
	})
	startWorker(t, b, r, store, func(o *WorkerOptions) { o.RecordFailures = false })

	_, err := NewProducer(b).Enqueue(context.Background(), sfRequest("u3"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, store.Len())

	e, err := NewResults(store).Poll(context.Background(), "u3")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
}

func TestAsyncPath_EmptyTextBecomesNoSuggestion(t *testing.T) {
	b := broker.NewInMemoryBroker()
	store := cache.NewInMemoryStore()
	startWorker(t, b, RecommenderFunc(func(context.Context, orchestrator.Request) (string, error) {
		return "", nil
	}), store)

	_, err := NewProducer(b).Enqueue(context.Background(), sfRequest("u4"))
	require.NoError(t, err)

	e := waitSettled(t, NewResults(store), "u4")
	assert.Equal(t, model.NoSuggestion, e.Recommendation)
}

func TestWorker_MalformedJobDropped(t *testing.T) {
	ctx := context.Background()
	b := broker.NewInMemoryBroker()
	store := cache.NewInMemoryStore()
	require.NoError(t, b.DeclareQueue(ctx, DefaultQueue))

	var calls atomic.Int32
	startWorker(t, b, RecommenderFunc(func(context.Context, orchestrator.Request) (string, error) {
		calls.Add(1)
		return "ok", nil
	}), store)

	require.NoError(t, b.Publish(ctx, DefaultQueue, broker.Message{Body: []byte("not json")}))
	require.NoError(t, b.Publish(ctx, DefaultQueue, broker.Message{Body: []byte(`{"user_id":"","lat":1,"lon":1}`)}))
	_, err := NewProducer(b).Enqueue(ctx, sfRequest("u5"))
	require.NoError(t, err)

	e := waitSettled(t, NewResults(store), "u5")
	assert.Equal(t, StatusReady, e.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, b.Depth(DefaultQueue))
}

func TestWorker_JobTimeout(t *testing.T) {
	b := broker.NewInMemoryBroker()
	store := cache.NewInMemoryStore()
	startWorker(t, b, RecommenderFunc(func(ctx context.Context, _ orchestrator.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), store, func(o *WorkerOptions) { o.JobTimeout = 20 * time.Millisecond })

	_, err := NewProducer(b).Enqueue(context.Background(), sfRequest("u6"))
	require.NoError(t, err)

	e := waitSettled(t, NewResults(store), "u6")
	assert.Equal(t, StatusFailed, e.Status)
	assert.Contains(t, e.Error, context.DeadlineExceeded.Error())
}

func TestProducer_Validation(t *testing.T) {
	b := broker.NewInMemoryBroker()
	_, err := NewProducer(b).Enqueue(context.Background(), orchestrator.Request{Lat: 100})
	require.Error(t, err)
	assert.False(t, b.HasQueue(DefaultQueue))
}

func TestProducer_PublishesPersistentJob(t *testing.T) {
	ctx := context.Background()
	b := broker.NewInMemoryBroker()
	p := NewProducer(b, func(o *ProducerOptions) {
		o.Queue = "jobs_test"
		o.NewJobID = func() string { return "job-1" }
	})

	id, err := p.Enqueue(ctx, sfRequest("u7"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	deliveries, err := b.Consume(ctx, "jobs_test")
	require.NoError(t, err)
	select {
	case d := <-deliveries:
		assert.True(t, d.Persistent)
		assert.Equal(t, "job-1", d.CorrelationID)
		assert.JSONEq(t, `{"user_id":"u7","lat":37.77,"lon":-122.41}`, string(d.Body))
	case <-time.After(time.Second):
		t.Fatal("job not published")
	}
}

func TestProducer_ClosedBroker(t *testing.T) {
	b := broker.NewInMemoryBroker()
	require.NoError(t, b.Close())
	_, err := NewProducer(b).Enqueue(context.Background(), sfRequest("u8"))
	assert.ErrorIs(t, err, broker.ErrClosed)
}

func TestResults_PlainTextValue(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryStore()
	require.NoError(t, store.Set(ctx, "recommendation:u9", []byte("Visit the museum")))

	e, err := NewResults(store).Poll(ctx, "u9")
	require.NoError(t, err)
	assert.Equal(t, Entry{Status: StatusReady, Recommendation: "Visit the museum"}, e)

	_, err = NewResults(store).Poll(ctx, " ")
	assert.Error(t, err)
}

func TestNewWorker_Validation(t *testing.T) {
	b := broker.NewInMemoryBroker()
	r := RecommenderFunc(func(context.Context, orchestrator.Request) (string, error) { return "", nil })
	store := cache.NewInMemoryStore()

	_, err := NewWorker(nil, r, store)
	assert.Error(t, err)
	_, err = NewWorker(b, nil, store)
	assert.Error(t, err)
	_, err = NewWorker(b, r, nil)
	assert.Error(t, err)
}

func TestWorker_StopsWhenBrokerCloses(t *testing.T) {
	b := broker.NewInMemoryBroker()
	w, err := NewWorker(b, RecommenderFunc(func(context.Context, orchestrator.Request) (string, error) { return "", nil }), cache.NewInMemoryStore())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	require.Eventually(t, func() bool { return b.HasQueue(DefaultQueue) }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		// Close may land before Consume attaches.
		assert.True(t, errors.Is(err, ErrWorkerStopped) || errors.Is(err, broker.ErrClosed), "unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
