// Command server runs the loan pipeline service: the HTTP API, the
// background chain worker, and the outbox relay, all in one process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"loanflow/internal/history"
	"loanflow/internal/integration"
	"loanflow/internal/integration/clients"
	"loanflow/internal/lifecycle"
	"loanflow/internal/notify"
	"loanflow/internal/outbox"
	"loanflow/internal/pipeline"
	"loanflow/internal/pipeline/flow"
	flowmetrics "loanflow/internal/pipeline/flow/metrics"
	"loanflow/internal/platform/config"
	"loanflow/internal/platform/httpserver"
	"loanflow/internal/platform/kafka"
	"loanflow/internal/platform/logger"
	redisclient "loanflow/internal/platform/redis"
	"loanflow/internal/queue"
	"loanflow/internal/subject"
	httptransport "loanflow/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loanflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open pgx pool: %w", err)
	}
	defer pool.Close()

	rdb, err := redisclient.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	if producer != nil {
		defer producer.Close()
	}

	// Domain wiring.
	subjects := subject.NewPostgresStore(db)
	historyStore := history.NewPostgresStore(db)
	configStore := pipeline.NewPostgresStore(db)
	transitionStore := lifecycle.NewPostgresTransitionStore(db)

	registry := integration.NewRegistry()
	clients.RegisterAll(registry)

	machine := lifecycle.NewMachine(lifecycle.DefaultEdges(lifecycle.GraphDeps{
		Notifier: &notify.LogNotifier{Logger: log},
		Logger:   log,
	}), transitionStore, log)

	var lock flow.RunLock
	if rdb != nil {
		lock = flow.NewRedisLock(rdb.Client)
	}

	flowSvc := flow.New(flow.Deps{
		Config:   configStore,
		Subjects: subjects,
		Registry: registry,
		Runner:   integration.NewRunner(historyStore, log),
		History:  historyStore,
		Rejector: machine,
		Lock:     lock,
		Metrics:  flowmetrics.New(),
		Logger:   log,
	})
	machine.SetTriggerFirer(lifecycle.NewTriggers(configStore, flowSvc, log))

	var memChain *queue.InMemoryChain
	if producer != nil {
		flowSvc.SetChain(queue.NewKafkaChain(producer, cfg.Kafka.ChainTopic))
	} else {
		log.Warn("kafka not configured, task chains run in-process")
		memChain = queue.NewInMemoryChain(flowSvc, log)
		flowSvc.SetChain(memChain)
	}

	// HTTP surface.
	health := httptransport.NewHealthHandler(log)
	health.AddCheck("postgres", db.PingContext)
	if rdb != nil {
		health.AddCheck("redis", rdb.Health)
	}

	handler := httptransport.NewHandler(httptransport.HandlerDeps{
		Subjects:    subjects,
		History:     historyStore,
		Config:      configStore,
		Pipelines:   flowSvc,
		Lifecycle:   machine,
		Transitions: transitionStore,
		Registry:    registry,
		Logger:      log,
	})
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Handler:    handler,
		Health:     health,
		SigningKey: cfg.Server.JWTSigningKey,
		Logger:     log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	// Process lifecycle.
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting loanflow", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if memChain != nil {
			memChain.Wait()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if producer != nil {
		worker, err := queue.NewKafkaWorker(cfg.Kafka, producer, flowSvc, log)
		if err != nil {
			return fmt.Errorf("start chain worker: %w", err)
		}
		defer worker.Close()
		g.Go(func() error { return ignoreCancel(worker.Run(ctx)) })

		relay := outbox.NewRelay(pool, producer, cfg.Kafka.EventTopic, log)
		g.Go(func() error { return ignoreCancel(relay.Run(ctx)) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("loanflow stopped")
	return nil
}

// ignoreCancel filters the expected context error on shutdown.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
