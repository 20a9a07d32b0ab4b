// Command recommendation-service runs the HTTP gateway and the async worker
// of the recommendation aggregator on RabbitMQ and Redis.
//
// Configuration is read from the environment and an optional .env file; see
// package config for the keys.
//
//	recommendation-service -mode all
//	recommendation-service -mode worker -env ./worker.env
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/brokermesh"
	"github.com/hupe1980/brokermesh/broker/amqp"
	"github.com/hupe1980/brokermesh/cache/redis"
	"github.com/hupe1980/brokermesh/config"
	"github.com/hupe1980/brokermesh/gateway"
	"github.com/hupe1980/brokermesh/jobs"
	"github.com/hupe1980/brokermesh/logging"
	"github.com/hupe1980/brokermesh/orchestrator"
)

const (
	modeAll     = "all"
	modeGateway = "gateway"
	modeWorker  = "worker"
)

func main() {
	envFile := flag.String("env", "", "optional .env file (defaults to ./.env when present)")
	mode := flag.String("mode", modeAll, "what to run: all, gateway or worker")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string) error {
	switch mode {
	case modeAll, modeGateway, modeWorker:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	logger := logging.NewLogger(cfg.LoggerConfig("recommendation-service"))

	b, err := amqp.Dial(cfg.RabbitMQURL, func(o *amqp.Options) {
		o.Prefetch = int(cfg.WorkerConcurrency)
		o.Logger = logger.WithComponent("broker")
	})
	if err != nil {
		return err
	}
	defer b.Close()

	store, err := redis.Open(ctx, cfg.RedisURL, func(o *redis.Options) { o.TTL = cfg.ResultTTL })
	if err != nil {
		return err
	}
	defer store.Close()

	gen, err := newGenerator(cfg.LLM)
	if err != nil {
		return err
	}

	mesh, err := brokermesh.New(ctx, b, func(o *brokermesh.Options) {
		o.Generator = gen
		o.Store = store
		o.WorkQueue = cfg.QueueName
		o.GenerateTimeout = cfg.GenerateTimeout
		o.Logger = logger
		o.OrchestratorOptions = []func(o *orchestrator.Options){func(o *orchestrator.Options) {
			o.Queues = cfg.OrchestratorQueues()
			o.LookupTimeout = cfg.LookupTimeout
			o.ScrapeTimeout = cfg.ScrapeTimeout
			o.ConcurrentLookups = cfg.ConcurrentLookups
		}}
	})
	if err != nil {
		return err
	}
	defer mesh.Close()

	g, ctx := errgroup.WithContext(ctx)

	if mode == modeAll || mode == modeWorker {
		w, err := mesh.NewWorker(func(o *jobs.WorkerOptions) {
			o.Concurrency = cfg.WorkerConcurrency
			o.JobTimeout = cfg.WorkerJobTimeout()
			o.RecordFailures = cfg.RecordFailures
			o.Logger = logger.WithComponent("jobs.worker")
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	if mode == modeAll || mode == modeGateway {
		h, err := gateway.New(mesh, func(o *gateway.Options) {
			o.RequestTimeout = cfg.GatewayTimeout()
			o.Logger = logger.WithComponent("gateway")
		})
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: cfg.Addr(), Handler: h, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			logger.Info("gateway.listening", "addr", srv.Addr, "llm", gen.Info().Name)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
