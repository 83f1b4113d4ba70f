package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	collectorhandler "blaze/internal/collector/handler"
	collectormetrics "blaze/internal/collector/metrics"
	"blaze/internal/collector/publisher"
	collectorservice "blaze/internal/collector/service"
	eventstore "blaze/internal/collector/store"
	"blaze/internal/experiment/assignment"
	experimenthandler "blaze/internal/experiment/handler"
	experimentmetrics "blaze/internal/experiment/metrics"
	"blaze/internal/experiment/registry"
	"blaze/internal/platform/config"
	"blaze/internal/platform/httpserver"
	"blaze/internal/platform/kafka"
	"blaze/internal/platform/logger"
	"blaze/internal/platform/metrics"
	"blaze/internal/platform/postgres"
	"blaze/internal/platform/redis"
	ratelimitmetrics "blaze/internal/ratelimit/metrics"
	ratelimitmw "blaze/internal/ratelimit/middleware"
	ratelimitstore "blaze/internal/ratelimit/store"
	"blaze/internal/storage"
	httptransport "blaze/internal/transport/http"
)

const (
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 15 * time.Second
)

// main wires the experiment edge API and the event collector behind one router.
// Redis, Postgres and Kafka are optional; without them the in-memory stores are used.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.LoadFile(cfg.ExperimentsFile)
	if err != nil {
		return err
	}
	log.Info("experiments loaded", "file", cfg.ExperimentsFile, "active", len(reg.ListActive()))

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	backends, err := openBackends(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	promReg := prometheus.DefaultRegisterer
	engine := assignment.NewEngine(backends.assignments,
		assignment.WithLogger(log),
		assignment.WithMetrics(experimentmetrics.New(promReg)),
	)

	serviceOpts := []collectorservice.Option{
		collectorservice.WithLogger(log),
		collectorservice.WithMetrics(collectormetrics.New(promReg)),
	}
	if backends.producer != nil {
		serviceOpts = append(serviceOpts, collectorservice.WithPublisher(publisher.NewKafka(backends.producer)))
	}
	collector := collectorservice.New(backends.events, reg, serviceOpts...)

	limiter := ratelimitmw.New(backends.limits, cfg.RateLimit.IngestLimit, cfg.RateLimit.IngestWindow, log,
		ratelimitmw.WithMetrics(ratelimitmetrics.New(promReg)),
	)

	if cfg.AdminToken == "" {
		log.Warn("BLAZE_ADMIN_TOKEN not set; results endpoint will reject every request")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Metrics:  metrics.New(promReg),
		Gatherer: prometheus.DefaultGatherer,
		Routes: []httptransport.Registrar{
			experimenthandler.New(reg, engine, log),
			collectorhandler.New(collector, log, cfg.AdminToken,
				collectorhandler.WithIngestMiddleware(limiter.PerIP),
			),
		},
		Health: backends.health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting blaze", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type backends struct {
	assignments assignment.Store
	events      collectorservice.EventStore
	limits      ratelimitmw.Store
	producer    *kafka.Producer
	health      []httptransport.HealthCheck
	closers     []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects whichever stores are configured. Postgres, when present,
// takes assignments over from Redis.
func openBackends(ctx context.Context, cfg config.Server, log *slog.Logger) (*backends, error) {
	b := &backends{
		assignments: assignment.NewKVStore(storage.NewInMemoryStore(), assignment.WithVisitorNamespace()),
		events:      eventstore.NewInMemory(),
		limits:      ratelimitstore.NewInMemory(),
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.health = append(b.health, httptransport.HealthCheck{Name: "redis", Check: rdb.Health})
		b.assignments = assignment.NewKVStore(
			storage.NewRedisStore(rdb, storage.WithKeyPrefix("blaze:")),
			assignment.WithVisitorNamespace(),
		)
		b.limits = ratelimitstore.NewRedis(rdb)
		log.Info("assignments and rate limits stored in redis")
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		b.Close()
		return nil, err
	}
	if db != nil {
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
		b.health = append(b.health, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
		b.assignments = assignment.NewPostgres(db)
		b.events = eventstore.NewPostgres(db)
		log.Info("assignments and events stored in postgres")
	}

	producer, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		b.Close()
		return nil, err
	}
	if producer != nil {
		b.closers = append(b.closers, producer.Close)
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure kafka topic", "topic", producer.Topic(), "error", err)
		}
		b.producer = producer
		log.Info("publishing events to kafka", "topic", producer.Topic())
	}
	return b, nil
}
