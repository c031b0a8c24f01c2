package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies portal audit events
type EventType string

const (
	EventLogin         EventType = "login"
	EventLoginFailed   EventType = "login_failed"
	EventLogout        EventType = "logout"
	EventQuotaExceeded EventType = "quota_exceeded"
	EventTrustDenied   EventType = "trust_denied"
	EventCounterReset  EventType = "counter_reset"
)

// EventLevel is the severity of an event
type EventLevel string

const (
	EventInfo    EventLevel = "info"
	EventWarning EventLevel = "warning"
	EventError   EventLevel = "error"
)

// EventLog records a portal audit event
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Type  EventType  `json:"type" db:"type"`
	Level EventLevel `json:"level" db:"level"`

	UserID    *uuid.UUID `json:"userId,omitempty" db:"user_id"`
	GatewayID *uuid.UUID `json:"gatewayId,omitempty" db:"gateway_id"`
	SessionID *uuid.UUID `json:"sessionId,omitempty" db:"session_id"`

	Description string    `json:"description" db:"description"`
	Details     Variables `json:"details,omitempty" db:"details"`
}
