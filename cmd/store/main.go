package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/procat/backend/internal/camunda"
	"github.com/procat/backend/internal/config"
	"github.com/procat/backend/internal/events"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/logging"
	"github.com/procat/backend/internal/store"
	"github.com/procat/backend/internal/tracing"
)

func main() {
	cfg := config.LoadService("store-service", ":8006")
	logging.Setup(cfg.ServiceName, cfg.LogLevel)
	camundaURL := config.String("CAMUNDA_URL", "http://localhost:8080/engine-rest")
	mongoURI := config.String("MONGO_URI", "mongodb://localhost:27017")
	mongoDB := config.String("MONGO_DATABASE", "store")
	esAddrs := strings.Split(config.String("ELASTICSEARCH_ADDRS", "http://localhost:9200"), ",")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg.ServiceName, cfg.ZipkinEndpoint, cfg.TracingEnabled)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	mongo, err := store.NewMongoStore(ctx, mongoURI, mongoDB)
	if err != nil {
		slog.Error("mongo setup failed", "error", err)
		os.Exit(1)
	}
	index, err := store.NewElasticIndex(esAddrs)
	if err != nil {
		slog.Error("elasticsearch setup failed", "error", err)
		os.Exit(1)
	}

	composer := store.NewComposer(store.ComposerConfig{
		OfferingURL:       config.String("OFFERING_URL", "http://localhost:8005"),
		SpecificationURL:  config.String("SPECIFICATION_URL", "http://localhost:8003"),
		CharacteristicURL: config.String("CHARACTERISTIC_URL", "http://localhost:8002"),
		PricingURL:        config.String("PRICING_URL", "http://localhost:8004"),
		Timeout:           config.Duration("COMPOSE_TIMEOUT", 0),
		AuthToken:         config.String("SERVICE_TOKEN", ""),
	})

	registry := prometheus.NewRegistry()
	projector := store.NewProjector(composer, mongo, index, mongo, store.NewMetrics(registry))

	router := mux.NewRouter()
	router.Use(httpapi.CorrelationMiddleware, tracing.Middleware(cfg.ServiceName))
	router.HandleFunc("/health", httpapi.Health(cfg.ServiceName)).Methods(http.MethodGet)
	router.HandleFunc("/health/dependencies", httpapi.DependenciesHealth(cfg.ServiceName,
		httpapi.DependencyCheck{Name: "mongodb", Probe: mongo.Ping},
		httpapi.DependencyCheck{Name: "elasticsearch", Probe: index.Ping},
	)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	store.NewHandlers(mongo, index, projector).Register(router)

	worker := camunda.NewWorker(camunda.NewClient(camundaURL, "store-worker"), camunda.WorkerConfig{})
	store.NewSagaHandlers(projector).Register(worker)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range []string{
		events.TopicOfferings,
		events.TopicCharacteristics,
		events.TopicSpecifications,
		events.TopicPricing,
	} {
		consumer := events.NewConsumer(cfg.RabbitMQURL, "store-service", topic)
		g.Go(func() error { return consumer.Run(ctx, projector.HandleEvent) })
	}
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
