// Command seed loads a starter catalog into the database. Items whose title
// already exists are skipped, so it is safe to run more than once.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/pricing"
	"github.com/josh-kwaku/pointstore/internal/repository"
	"github.com/josh-kwaku/pointstore/internal/service"
)

type seedConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
}

type seedItem struct {
	title, author, tag, price string
	quantity                  int64
}

var catalog = []seedItem{
	{"The Pragmatic Programmer", "Andrew Hunt", "programming", "42.50", 25},
	{"Designing Data-Intensive Applications", "Martin Kleppmann", "programming", "55.00", 15},
	{"Dune", "Frank Herbert", "science-fiction", "18.99", 40},
	{"The Left Hand of Darkness", "Ursula K. Le Guin", "science-fiction", "14.25", 30},
	{"Middlemarch", "George Eliot", "classics", "9.90", 20},
	{"The Master and Margarita", "Mikhail Bulgakov", "classics", "12.00", 12},
	{"Thinking, Fast and Slow", "Daniel Kahneman", "non-fiction", "21.40", 18},
	{"The Gene", "Siddhartha Mukherjee", "non-fiction", "24.75", 10},
}

func main() {
	cfg, err := env.ParseAs[seedConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("pointstore-seed", "info", cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns: 2,
		MaxIdleConns: 2,
	}, 30*time.Second)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	catalogSvc := service.NewCatalogService(repository.NewItemRepository(db))

	created, skipped := 0, 0
	for _, it := range catalog {
		price, err := pricing.ParsePoints(it.price)
		if err != nil {
			slog.Error("bad seed price", "title", it.title, "error", err)
			os.Exit(1)
		}

		_, err = catalogSvc.CreateItem(ctx, service.CreateItemRequest{
			Title:             it.title,
			Author:            it.author,
			Tag:               it.tag,
			AvailableQuantity: it.quantity,
			UnitPrice:         price,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrItemExists):
			skipped++
		default:
			slog.Error("failed to seed item", "title", it.title, "error", err)
			os.Exit(1)
		}
	}

	slog.Info("catalog seeded", "created", created, "skipped", skipped)
}
