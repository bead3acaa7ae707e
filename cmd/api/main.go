package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/pointstore/internal/cache"
	"github.com/josh-kwaku/pointstore/internal/config"
	"github.com/josh-kwaku/pointstore/internal/handler"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/messaging"
	"github.com/josh-kwaku/pointstore/internal/middleware"
	"github.com/josh-kwaku/pointstore/internal/pricing"
	"github.com/josh-kwaku/pointstore/internal/repository"
	"github.com/josh-kwaku/pointstore/internal/service"
	"github.com/josh-kwaku/pointstore/internal/service/settlement"
	"github.com/josh-kwaku/pointstore/internal/tracing"
)

const (
	serviceName     = "pointstore-api"
	serviceVersion  = "1.0.0"
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
	cleanupInterval = time.Hour
)

type publisher interface {
	service.Publisher
	Close() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	openingBalance, err := pricing.ParsePoints(cfg.OpeningBalance)
	if err != nil {
		return fmt.Errorf("OPENING_BALANCE: %w", err)
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, connectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	txDB := repository.NewDB(db)
	accountRepo := repository.NewAccountRepository(db)
	itemRepo := repository.NewItemRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	eventRepo := repository.NewSettlementEventRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	var (
		idempotencyStore middleware.IdempotencyStore = idempotencyRepo
		cachePinger      *cache.IdempotencyStore
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cachePinger = cache.NewIdempotencyStore(rdb)
		idempotencyStore = cachePinger
		slog.Info("idempotency store: redis", "addr", cfg.RedisAddr)
	}

	var pub publisher = messaging.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		pub = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		slog.Info("event publisher: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			slog.Warn("publisher close failed", "error", err)
		}
	}()

	settleCfg := settlement.DefaultConfig()
	settleCfg.MaxRetries = cfg.SettlementMaxRetries
	settlementSvc := settlement.NewService(txDB, accountRepo, itemRepo, settlementRepo, eventRepo, ledgerRepo, settleCfg)

	accountSvc := service.NewAccountService(accountRepo, service.AccountConfig{
		OpeningBalance: openingBalance,
		AdminSignupKey: cfg.AdminSignupKey,
		JWTSecret:      cfg.JWTSecret,
		JWTExpiry:      cfg.JWTExpiry,
	})
	catalogSvc := service.NewCatalogService(itemRepo)

	relay := service.NewOutboxRelay(eventRepo, txDB, pub, logger.With("component", "outbox_relay"), service.OutboxConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})

	var healthHandler *handler.HealthHandler
	if cachePinger != nil {
		healthHandler = handler.NewHealthHandler(db, cachePinger)
	} else {
		healthHandler = handler.NewHealthHandler(db, nil)
	}

	mux := routes(cfg.JWTSecret, idempotencyStore,
		healthHandler,
		handler.NewAuthHandler(accountSvc),
		handler.NewItemHandler(catalogSvc),
		handler.NewSettlementHandler(settlementSvc),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Tracing(middleware.Logging(middleware.Recovery(mux))),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		relay.Start(gctx)
		return nil
	})

	if cachePinger == nil {
		g.Go(func() error {
			cleanIdempotency(gctx, idempotencyRepo)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func cleanIdempotency(ctx context.Context, repo *repository.IdempotencyRepository) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Error("idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired idempotency entries removed", "count", n)
			}
		}
	}
}
