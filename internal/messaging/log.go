package messaging

import (
	"context"
	"log/slog"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

// LogPublisher stands in for a broker when none is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.SettlementEvent) error {
	p.logger.Info("settlement event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"settlement_id", event.SettlementID,
		"payload", string(event.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
