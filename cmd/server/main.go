package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"esocial/internal/events/handler"
	"esocial/internal/events/lock"
	eventmetrics "esocial/internal/events/metrics"
	"esocial/internal/events/notifications"
	"esocial/internal/events/poller"
	"esocial/internal/events/policy"
	"esocial/internal/events/ports"
	"esocial/internal/events/schema"
	"esocial/internal/events/service"
	eventstore "esocial/internal/events/store/event"
	notificationstore "esocial/internal/events/store/notification"
	"esocial/internal/gateway/esocial"
	"esocial/internal/gateway/simulator"
	jwttoken "esocial/internal/jwt_token"
	"esocial/internal/platform/config"
	"esocial/internal/platform/httpserver"
	"esocial/internal/platform/kafka"
	"esocial/internal/platform/logger"
	"esocial/internal/platform/metrics"
	"esocial/internal/platform/middleware"
	"esocial/internal/platform/postgres"
	"esocial/internal/platform/redis"
	"esocial/pkg/platform/audit"
	"esocial/pkg/platform/audit/publishers/compliance"
	"esocial/pkg/platform/audit/relay"
	auditmemory "esocial/pkg/platform/audit/store/memory"
	auditpostgres "esocial/pkg/platform/audit/store/postgres"
	"esocial/pkg/platform/httputil"
	authmw "esocial/pkg/platform/middleware/auth"
	"esocial/pkg/platform/middleware/metadata"
	"esocial/pkg/platform/middleware/requesttime"
)

func main() {
	if err := run(); err != nil {
		slog.Error("esocial stopped with error", "error", err)
		os.Exit(1)
	}
}

// auditStore is what the compliance publisher writes to and the relay reads.
type auditStore interface {
	audit.Store
	audit.Outbox
}

// infra holds the optional backends selected by configuration.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var backends infra
	defer backends.close()

	registry, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("compile payload schemas: %w", err)
	}
	cancelPolicy, err := policy.Load(cfg.CancellationPolicyFile)
	if err != nil {
		return fmt.Errorf("load cancellation policy: %w", err)
	}

	var (
		events   ports.EventStore
		notes    ports.NotificationStore
		outbox   auditStore
		txRunner ports.TxRunner = ports.NopTx{}
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		backends.db = db
		if err := postgres.Migrate(ctx, db, log); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		events = eventstore.NewPostgres(db)
		notes = notificationstore.NewPostgres(db)
		outbox = auditpostgres.New(db)
		txRunner = newEventsPostgresTx(db, cfg.Database.TxTimeout)
		log.Info("using postgres persistence")
	} else {
		events = eventstore.NewInMemoryStore()
		notes = notificationstore.NewInMemoryStore()
		outbox = auditmemory.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory persistence")
	}

	var locker ports.Locker = lock.NewMemoryLocker()
	if cfg.Redis.URL != "" {
		rc, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		backends.redis = rc
		locker = lock.NewRedisLocker(rc.Client, lock.WithTTL(cfg.LockTTL), lock.WithLogger(log))
		log.Info("using redis event locks")
	}

	gateway, err := buildGateway(cfg.Gateway, log)
	if err != nil {
		return err
	}

	eventsMetrics := eventmetrics.New()
	publisher := compliance.New(outbox,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	svc := service.New(
		events,
		notifications.New(events, notes),
		schema.NewValidator(registry),
		gateway,
		cancelPolicy,
		service.WithLogger(log),
		service.WithMetrics(eventsMetrics),
		service.WithLocker(locker),
		service.WithTx(txRunner),
		service.WithAuditPublisher(publisher),
		service.WithGatewayTimeout(cfg.Gateway.Timeout),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Poller.Enabled {
		p, err := poller.New(svc,
			poller.WithLogger(log),
			poller.WithMetrics(eventsMetrics),
			poller.WithInterval(cfg.Poller.Interval),
			poller.WithBatchSize(cfg.Poller.BatchSize),
			poller.WithConcurrency(cfg.Poller.Concurrency),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return p.Run(gctx) })
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return err
		}
		backends.producer = producer
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		r := relay.New(outbox, producer,
			relay.WithLogger(log),
			relay.WithInterval(cfg.Kafka.RelayInterval),
			relay.WithBatchSize(cfg.Kafka.RelayBatch),
		)
		g.Go(func() error { return r.Run(gctx) })
	} else {
		log.Warn("KAFKA_BROKERS not set, compliance audit stays in the outbox")
	}

	router := newRouter(cfg, log, svc, &backends)
	srv := httpserver.New(cfg.Server.Addr, router)

	g.Go(func() error {
		log.Info("starting esocial", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildGateway(cfg config.GatewayConfig, log *slog.Logger) (ports.Gateway, error) {
	if cfg.Simulate {
		log.Warn("using the registry simulator", "pending_polls", cfg.SimulatorPendingPolls)
		return simulator.New(simulator.WithPendingPolls(cfg.SimulatorPendingPolls)), nil
	}
	client, err := esocial.New(esocial.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.Burst,
	}, esocial.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("registry client: %w", err)
	}
	return client, nil
}

func newRouter(cfg config.Config, log *slog.Logger, svc *service.Service, backends *infra) http.Handler {
	httpMetrics := metrics.New()
	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log))
	r.Use(httpMetrics.Middleware)

	r.Get("/healthz", healthHandler(backends))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwt), log))
		handler.New(svc, log).Register(r)
	})
	return r
}

// healthHandler reports 503 when any configured backend is unreachable.
func healthHandler(b *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		record := func(name string, err error) {
			if err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}
		if b.db != nil {
			record("postgres", b.db.PingContext(ctx))
		}
		if b.redis != nil {
			record("redis", b.redis.Health(ctx))
		}
		if b.producer != nil {
			record("kafka", b.producer.Health(ctx))
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	}
}
