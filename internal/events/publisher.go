package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/config"
	"github.com/kosthub/wifi-portal/internal/models"
)

// NATS subjects published by the portal.
const (
	SubjectSessionCreated    = "portal.session.created"
	SubjectSessionTerminated = "portal.session.terminated"
	SubjectQuotaExceeded     = "portal.quota.exceeded"
)

// Publisher publishes portal events to NATS. A nil *Publisher is valid
// and drops all events, so the server can run standalone.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS.
func NewPublisher(cfg *config.NATSConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Publisher{conn: conn}, nil
}

// SessionEvent is the payload for session lifecycle subjects.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	GatewayID string    `json:"gateway_id"`
	IP        string    `json:"ip"`
	MAC       string    `json:"mac,omitempty"`
	Status    string    `json:"status"`
	BytesIn   int64     `json:"bytes_in"`
	BytesOut  int64     `json:"bytes_out"`
	Timestamp time.Time `json:"timestamp"`
}

// QuotaEvent is the payload for quota denial subjects.
type QuotaEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	GatewayID string    `json:"gateway_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishSessionCreated publishes a session creation event.
func (p *Publisher) PublishSessionCreated(session *models.WifiSession) {
	p.publish(SubjectSessionCreated, sessionEvent(session))
}

// PublishSessionTerminated publishes a session termination event.
func (p *Publisher) PublishSessionTerminated(session *models.WifiSession) {
	p.publish(SubjectSessionTerminated, sessionEvent(session))
}

// PublishQuotaExceeded publishes a quota denial event.
func (p *Publisher) PublishQuotaExceeded(session *models.WifiSession, reason string) {
	p.publish(SubjectQuotaExceeded, QuotaEvent{
		SessionID: session.ID.String(),
		UserID:    session.UserID.String(),
		GatewayID: session.GatewayID.String(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

func sessionEvent(session *models.WifiSession) SessionEvent {
	return SessionEvent{
		SessionID: session.ID.String(),
		UserID:    session.UserID.String(),
		GatewayID: session.GatewayID.String(),
		IP:        session.IP,
		MAC:       session.MAC,
		Status:    string(session.Status),
		BytesIn:   session.BytesIn,
		BytesOut:  session.BytesOut,
		Timestamp: time.Now().UTC(),
	}
}

// publish marshals and sends an event. Failures are logged, never
// returned; event delivery is best effort.
func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to marshal event")
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
