package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/procat/backend/internal/config"
	"github.com/procat/backend/internal/logging"
	"github.com/procat/backend/internal/migrations"
)

func main() {
	service := flag.String("service", "", "service schema to apply ("+strings.Join(migrations.Services(), ", ")+")")
	flag.Parse()

	config.Load()
	logging.Setup("migrate", config.String("LOG_LEVEL", "INFO"))

	if *service == "" {
		slog.Error("missing -service flag", "available", migrations.Services())
		os.Exit(2)
	}
	databaseURL := config.String("DATABASE_URL", "")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		slog.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(context.Background(), db, *service); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}
