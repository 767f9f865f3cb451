package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/procat/backend/internal/config"
	"github.com/procat/backend/internal/gateway"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/logging"
	"github.com/procat/backend/internal/middleware"
	"github.com/procat/backend/internal/tracing"
)

func main() {
	cfg := config.LoadService("edge-gateway", ":8000")
	logging.Setup(cfg.ServiceName, cfg.LogLevel)
	routesPath := config.String("GATEWAY_ROUTES", "configs/gateway.yaml")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg.ServiceName, cfg.ZipkinEndpoint, cfg.TracingEnabled)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	routeConfig, err := gateway.LoadConfig(routesPath)
	if err != nil {
		slog.Error("load route config failed", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	proxy := gateway.NewProxy(routeConfig, gateway.NewMetrics(registry))

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxPerMinute: config.Int("RATE_LIMIT_PER_MINUTE", 300),
	})

	router := mux.NewRouter()
	router.Use(httpapi.CorrelationMiddleware, tracing.Middleware(cfg.ServiceName), limiter.Middleware)
	router.HandleFunc("/health", httpapi.Health(cfg.ServiceName)).Methods(http.MethodGet)
	router.HandleFunc("/health/dependencies", proxy.DependenciesHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(proxy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.HTTPAddr, "routes", len(routeConfig.Routes))
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
