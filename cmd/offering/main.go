package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/procat/backend/internal/auth"
	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/config"
	"github.com/procat/backend/internal/events"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/logging"
	"github.com/procat/backend/internal/middleware"
	"github.com/procat/backend/internal/offering"
	"github.com/procat/backend/internal/outbox"
	"github.com/procat/backend/internal/tracing"
)

func main() {
	cfg := config.LoadService("offering-service", ":8005")
	logging.Setup(cfg.ServiceName, cfg.LogLevel)
	camundaURL := config.String("CAMUNDA_URL", "http://localhost:8080/engine-rest")
	redisAddr := config.String("REDIS_ADDR", "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg.ServiceName, cfg.ZipkinEndpoint, cfg.TracingEnabled)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	verifier, err := auth.NewVerifier(cfg.JWTPublicKeyPEM)
	if err != nil {
		slog.Error("load verification key failed", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	obStore := outbox.NewStore(db)
	repo := offering.NewRepository(db)
	engine := camunda.NewClient(camundaURL, "offering-worker")
	service := offering.NewService(repo, obStore, engine)

	router := mux.NewRouter()
	router.Use(httpapi.CorrelationMiddleware, tracing.Middleware(cfg.ServiceName))
	if redisAddr != "" {
		router.Use(middleware.Idempotency(redis.NewClient(&redis.Options{Addr: redisAddr})))
	}
	router.HandleFunc("/health", httpapi.Health(cfg.ServiceName)).Methods(http.MethodGet)
	router.HandleFunc("/health/dependencies", httpapi.DependenciesHealth(cfg.ServiceName,
		httpapi.DependencyCheck{Name: "postgres", Probe: db.PingContext},
	)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	offering.NewHandlers(service).Register(router, verifier)

	publisher := events.NewPublisher(cfg.RabbitMQURL)
	defer publisher.Close()
	var notify outbox.Listener
	if listener, err := outbox.NewListener(cfg.DatabaseURL); err != nil {
		slog.Warn("outbox listener unavailable, polling only", "error", err)
	} else {
		notify = listener
	}
	dispatcher := outbox.NewDispatcher(obStore, publisher, notify, outbox.NewMetrics(registry))

	worker := camunda.NewWorker(engine, camunda.WorkerConfig{})
	offering.NewSagaHandlers(service).Register(worker)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("service exited", "error", err)
		os.Exit(1)
	}
}
