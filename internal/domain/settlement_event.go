package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SettlementEventType string

const (
	SettlementEventCreated   SettlementEventType = "settlement.created"
	SettlementEventCancelled SettlementEventType = "settlement.cancelled"
)

type SettlementEventStatus string

const (
	SettlementEventStatusPending    SettlementEventStatus = "pending"
	SettlementEventStatusDispatched SettlementEventStatus = "dispatched"
	SettlementEventStatusFailed     SettlementEventStatus = "failed"
)

type SettlementEvent struct {
	ID           uuid.UUID
	SettlementID uuid.UUID
	EventType    SettlementEventType
	Payload      json.RawMessage
	Status       SettlementEventStatus
	Attempts     int
	LastAttempt  *time.Time
	CreatedAt    time.Time
}
