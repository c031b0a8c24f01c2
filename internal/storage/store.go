package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")

	// ErrCounterRegression is returned by TouchSession when a reported
	// delta is negative. The gateway counters went backwards, which means
	// the gateway rebooted; callers start a fresh accounting baseline
	// instead of rolling the session back.
	ErrCounterRegression = errors.New("counter regression")

	// ErrSessionNotActive is returned by TouchSession when the target
	// session has already been terminated.
	ErrSessionNotActive = errors.New("session not active")
)

// Store defines the storage interface
type Store interface {
	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error)

	// Gateway methods
	CreateGateway(ctx context.Context, gw *models.WifiGateway) error
	GetGateway(ctx context.Context, id uuid.UUID) (*models.WifiGateway, error)
	GetGatewayByGwID(ctx context.Context, gwID string) (*models.WifiGateway, error)
	UpdateGateway(ctx context.Context, gw *models.WifiGateway) error
	DeleteGateway(ctx context.Context, id uuid.UUID) error
	ListGateways(ctx context.Context, limit, offset int) ([]*models.WifiGateway, int64, error)
	TouchGateway(ctx context.Context, id uuid.UUID, seenAt time.Time) error

	// Policy methods
	CreatePolicy(ctx context.Context, policy *models.WifiPolicy) error
	GetPolicy(ctx context.Context, id uuid.UUID) (*models.WifiPolicy, error)
	UpdatePolicy(ctx context.Context, policy *models.WifiPolicy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error
	ListPolicies(ctx context.Context, limit, offset int) ([]*models.WifiPolicy, int64, error)
	// ResolvePolicyForRoles returns the highest-priority policy whose role
	// is in roles, or ErrNotFound when none matches.
	ResolvePolicyForRoles(ctx context.Context, roles []string) (*models.WifiPolicy, error)

	// Session methods. CreateSession supersedes: any active session for
	// the same (user, gateway, ip) is marked expired before the new row
	// is inserted, atomically.
	CreateSession(ctx context.Context, session *models.WifiSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.WifiSession, error)
	FindActiveSessionByToken(ctx context.Context, token, ip string) (*models.WifiSession, error)
	FindActiveSessionForUser(ctx context.Context, userID uuid.UUID, ip string) (*models.WifiSession, error)
	// TouchSession atomically increments the byte counters and refreshes
	// last_seen_at/uptime. Negative deltas return ErrCounterRegression
	// without writing; terminated sessions return ErrSessionNotActive.
	TouchSession(ctx context.Context, id uuid.UUID, inDelta, outDelta, uptime int64, seenAt time.Time) error
	// TerminateSession moves a session to a terminal status. Idempotent:
	// terminating an already-terminated session is a no-op.
	TerminateSession(ctx context.Context, id uuid.UUID, status models.SessionStatus) error
	ListSessions(ctx context.Context, filters SessionFilters, limit, offset int) ([]*models.WifiSession, int64, error)
	// SumUserUsage aggregates bytes_in+bytes_out over the user's sessions
	// whose last activity falls at or after since. A zero since means
	// lifetime usage.
	SumUserUsage(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	PurgeSessions(ctx context.Context, olderThan time.Time) (int64, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// SessionFilters represents filters for session listings
type SessionFilters struct {
	UserID    *uuid.UUID
	GatewayID *uuid.UUID
	Status    *models.SessionStatus
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	UserID    *uuid.UUID
	GatewayID *uuid.UUID
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
