package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a WifiSession. Transitions are
// one-directional: active -> expired or active -> logged_out, never back.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionExpired   SessionStatus = "expired"
	SessionLoggedOut SessionStatus = "logged_out"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	return s == SessionExpired || s == SessionLoggedOut
}

// WifiSession is one authenticated client attachment to a gateway. Byte
// counters are cumulative and only grow while the session is active.
type WifiSession struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// Token is the opaque credential handed to the gateway at login.
	// Unique among active sessions; a superseding session for a rebooted
	// gateway reuses the token of the row it replaces.
	Token string `json:"token" db:"token"`

	UserID    uuid.UUID `json:"userId" db:"user_id"`
	GatewayID uuid.UUID `json:"gatewayId" db:"gateway_id"`

	// IP is the client address as seen by the gateway.
	IP  string `json:"ip" db:"ip"`
	MAC string `json:"mac" db:"mac"`

	Status SessionStatus `json:"status" db:"status"`

	BytesIn  int64 `json:"bytesIn" db:"bytes_in"`
	BytesOut int64 `json:"bytesOut" db:"bytes_out"`

	// Uptime is the client uptime in seconds as last reported by the
	// gateway heartbeat.
	Uptime int64 `json:"uptime" db:"uptime"`

	LastSeenAt   time.Time  `json:"lastSeenAt" db:"last_seen_at"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty" db:"terminated_at"`

	// Meta holds gateway-supplied attachment attributes (ssid, gw port).
	Meta Variables `json:"meta,omitempty" db:"meta"`
}

// TotalBytes is the combined traffic of the session.
func (s *WifiSession) TotalBytes() int64 {
	return s.BytesIn + s.BytesOut
}
