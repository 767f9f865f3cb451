package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/procat/backend/internal/auth"
	"github.com/procat/backend/internal/config"
	"github.com/procat/backend/internal/httpapi"
	"github.com/procat/backend/internal/identity"
	"github.com/procat/backend/internal/logging"
	"github.com/procat/backend/internal/tracing"
)

func main() {
	seed := flag.Bool("seed", false, "create default admin/user accounts if absent")
	flag.Parse()

	cfg := config.LoadService("identity-service", ":8001")
	logging.Setup(cfg.ServiceName, cfg.LogLevel)

	privateKeyPEM := config.String("JWT_PRIVATE_KEY", "")
	tokenTTL := config.Duration("TOKEN_TTL", 30*time.Minute)

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

	issuer, err := auth.NewIssuer(privateKeyPEM, tokenTTL)
	if err != nil {
		slog.Error("load signing key failed", "error", err)
		os.Exit(1)
	}

	repo := identity.NewRepository(db)
	if *seed {
		adminPassword := config.String("SEED_ADMIN_PASSWORD", "admin")
		userPassword := config.String("SEED_USER_PASSWORD", "user")
		if err := repo.Seed(ctx, adminPassword, userPassword); err != nil {
			slog.Error("seed users failed", "error", err)
			os.Exit(1)
		}
		slog.Info("default accounts ensured")
	}

	registry := prometheus.NewRegistry()
	router := mux.NewRouter()
	router.Use(httpapi.CorrelationMiddleware, tracing.Middleware(cfg.ServiceName))
	router.HandleFunc("/health", httpapi.Health(cfg.ServiceName)).Methods(http.MethodGet)
	router.HandleFunc("/health/dependencies", httpapi.DependenciesHealth(cfg.ServiceName,
		httpapi.DependencyCheck{Name: "postgres", Probe: db.PingContext},
	)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	identity.NewHandlers(repo, issuer, cfg.JWTPublicKeyPEM).Register(router)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
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
