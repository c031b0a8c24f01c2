package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
)

// ========== Session Methods ==========

const sessionColumns = `id, created_at, token, user_id, gateway_id, ip, mac,
       status, bytes_in, bytes_out, uptime, last_seen_at, terminated_at, meta`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.WifiSession, error) {
	session := &models.WifiSession{}
	err := row.Scan(
		&session.ID, &session.CreatedAt, &session.Token, &session.UserID,
		&session.GatewayID, &session.IP, &session.MAC, &session.Status,
		&session.BytesIn, &session.BytesOut, &session.Uptime,
		&session.LastSeenAt, &session.TerminatedAt, &session.Meta,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSession inserts a new active session. Any still-active session for
// the same (user, gateway, ip) is expired first, in the same transaction,
// so the partial unique index on active sessions never trips on a double
// login or a gateway reboot.
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.WifiSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	now := time.Now()
	session.CreatedAt = now
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = now
	}
	session.Status = models.SessionActive

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.tx.Rollback()

	_, err = tx.getDB().ExecContext(ctx, `
        UPDATE wifi_sessions
        SET status = $4, terminated_at = $5
        WHERE user_id = $1 AND gateway_id = $2 AND ip = $3 AND status = $6`,
		session.UserID, session.GatewayID, session.IP,
		models.SessionExpired, now, models.SessionActive,
	)
	if err != nil {
		return err
	}

	_, err = tx.getDB().ExecContext(ctx, `
        INSERT INTO wifi_sessions (
            id, created_at, token, user_id, gateway_id, ip, mac, status,
            bytes_in, bytes_out, uptime, last_seen_at, terminated_at, meta
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
        )`,
		session.ID, session.CreatedAt, session.Token, session.UserID,
		session.GatewayID, session.IP, session.MAC, session.Status,
		session.BytesIn, session.BytesOut, session.Uptime,
		session.LastSeenAt, session.TerminatedAt, session.Meta,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return tx.tx.Commit()
}

// GetSession gets a session by ID
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.WifiSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM wifi_sessions WHERE id = $1`
	return scanSession(s.getDB().QueryRowContext(ctx, query, id))
}

// FindActiveSessionByToken returns the active session matching both token
// and the observed client IP. The IP match defends against a token replayed
// from another network.
func (s *PostgresStore) FindActiveSessionByToken(ctx context.Context, token, ip string) (*models.WifiSession, error) {
	query := `SELECT ` + sessionColumns + `
        FROM wifi_sessions
        WHERE token = $1 AND ip = $2 AND status = $3
        ORDER BY last_seen_at DESC
        LIMIT 1`
	return scanSession(s.getDB().QueryRowContext(ctx, query, token, ip, models.SessionActive))
}

// FindActiveSessionForUser returns the most recently active session for the
// user on the given IP.
func (s *PostgresStore) FindActiveSessionForUser(ctx context.Context, userID uuid.UUID, ip string) (*models.WifiSession, error) {
	query := `SELECT ` + sessionColumns + `
        FROM wifi_sessions
        WHERE user_id = $1 AND ip = $2 AND status = $3
        ORDER BY last_seen_at DESC
        LIMIT 1`
	return scanSession(s.getDB().QueryRowContext(ctx, query, userID, ip, models.SessionActive))
}

// TouchSession applies counter deltas as an atomic in-place increment so
// concurrent heartbeats never lose an update.
func (s *PostgresStore) TouchSession(ctx context.Context, id uuid.UUID, inDelta, outDelta, uptime int64, seenAt time.Time) error {
	if inDelta < 0 || outDelta < 0 {
		return ErrCounterRegression
	}

	result, err := s.getDB().ExecContext(ctx, `
        UPDATE wifi_sessions
        SET bytes_in = bytes_in + $2,
            bytes_out = bytes_out + $3,
            uptime = $4,
            last_seen_at = $5
        WHERE id = $1 AND status = $6`,
		id, inDelta, outDelta, uptime, seenAt, models.SessionActive,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either missing or already terminated; disambiguate for callers.
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
		return ErrSessionNotActive
	}

	return nil
}

// TerminateSession moves an active session to a terminal status. The WHERE
// clause on status makes a second terminate a no-op.
func (s *PostgresStore) TerminateSession(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	if !status.Terminal() {
		return ErrInvalidData
	}

	result, err := s.getDB().ExecContext(ctx, `
        UPDATE wifi_sessions
        SET status = $2, terminated_at = $3
        WHERE id = $1 AND status = $4`,
		id, status, time.Now(), models.SessionActive,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Idempotent when the session exists but is already terminated.
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// ListSessions lists sessions with optional filters
func (s *PostgresStore) ListSessions(ctx context.Context, filters SessionFilters, limit, offset int) ([]*models.WifiSession, int64, error) {
	where := "1=1"
	args := []interface{}{}
	idx := 1

	if filters.UserID != nil {
		where += " AND user_id = $" + strconv.Itoa(idx)
		args = append(args, *filters.UserID)
		idx++
	}
	if filters.GatewayID != nil {
		where += " AND gateway_id = $" + strconv.Itoa(idx)
		args = append(args, *filters.GatewayID)
		idx++
	}
	if filters.Status != nil {
		where += " AND status = $" + strconv.Itoa(idx)
		args = append(args, *filters.Status)
		idx++
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM wifi_sessions WHERE "+where, args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + sessionColumns + `
        FROM wifi_sessions
        WHERE ` + where + `
        ORDER BY last_seen_at DESC
        LIMIT $` + strconv.Itoa(idx) + ` OFFSET $` + strconv.Itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*models.WifiSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}

	return sessions, count, rows.Err()
}

// SumUserUsage aggregates traffic across all of the user's sessions whose
// activity overlaps [since, now). Backed by the (user_id, last_seen_at)
// index; runs on every heartbeat so it must stay a single indexed scan.
func (s *PostgresStore) SumUserUsage(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.getDB().QueryRowContext(ctx, `
        SELECT SUM(bytes_in + bytes_out)
        FROM wifi_sessions
        WHERE user_id = $1 AND last_seen_at >= $2`,
		userID, since,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// PurgeSessions deletes terminated sessions older than the cutoff
func (s *PostgresStore) PurgeSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.getDB().ExecContext(ctx, `
        DELETE FROM wifi_sessions
        WHERE status <> $1 AND last_seen_at < $2`,
		models.SessionActive, olderThan,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
