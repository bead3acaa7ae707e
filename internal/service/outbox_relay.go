package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

type outboxRepo interface {
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.SettlementEvent, error)
	RecordAttempt(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.SettlementEventStatus) error
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event domain.SettlementEvent) error
}

type OutboxConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// OutboxRelay forwards committed settlement events to a Publisher. Events
// that keep failing are parked as failed after MaxAttempts.
type OutboxRelay struct {
	events    outboxRepo
	db        txRunner
	publisher Publisher
	logger    *slog.Logger
	cfg       OutboxConfig
}

func NewOutboxRelay(events outboxRepo, db txRunner, publisher Publisher, logger *slog.Logger, cfg OutboxConfig) *OutboxRelay {
	return &OutboxRelay{
		events:    events,
		db:        db,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil {
				r.logger.Error("outbox poll failed", "error", err)
			}
		}
	}
}

// Poll claims one batch of pending events and tries to publish each of them.
// It returns how many were dispatched.
func (r *OutboxRelay) Poll(ctx context.Context) (int, error) {
	dispatched := 0
	err := r.db.RunInTx(ctx, func(tx *sql.Tx) error {
		events, err := r.events.ClaimPending(ctx, tx, r.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			status := r.publish(ctx, event)
			if err := r.events.RecordAttempt(ctx, tx, event.ID, status); err != nil {
				return err
			}
			if status == domain.SettlementEventStatusDispatched {
				dispatched++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Poll: %w", err)
	}
	return dispatched, nil
}

func (r *OutboxRelay) publish(ctx context.Context, event domain.SettlementEvent) domain.SettlementEventStatus {
	err := r.publisher.Publish(ctx, event)
	if err == nil {
		return domain.SettlementEventStatusDispatched
	}

	attempt := event.Attempts + 1
	if attempt >= r.cfg.MaxAttempts {
		r.logger.Error("settlement event parked after repeated failures",
			"event_id", event.ID,
			"settlement_id", event.SettlementID,
			"attempts", attempt,
			"error", err,
		)
		return domain.SettlementEventStatusFailed
	}

	r.logger.Warn("settlement event publish failed, will retry",
		"event_id", event.ID,
		"settlement_id", event.SettlementID,
		"attempt", attempt,
		"error", err,
	)
	return domain.SettlementEventStatusPending
}
