package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
)

// ========== Event Log Methods ==========

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO event_logs (
            id, created_at, type, level, user_id, gateway_id, session_id,
            description, details
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.Type, event.Level, event.UserID,
		event.GatewayID, event.SessionID, event.Description, event.Details,
	)

	return err
}

// ListEventLogs lists event logs with filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	where := "1=1"
	args := []interface{}{}
	idx := 1

	addFilter := func(clause string, value interface{}) {
		where += " AND " + clause + " $" + strconv.Itoa(idx)
		args = append(args, value)
		idx++
	}

	if filters.UserID != nil {
		addFilter("user_id =", *filters.UserID)
	}
	if filters.GatewayID != nil {
		addFilter("gateway_id =", *filters.GatewayID)
	}
	if filters.Type != nil {
		addFilter("type =", *filters.Type)
	}
	if filters.Level != nil {
		addFilter("level =", *filters.Level)
	}
	if filters.StartTime != nil {
		addFilter("created_at >=", *filters.StartTime)
	}
	if filters.EndTime != nil {
		addFilter("created_at <=", *filters.EndTime)
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_logs WHERE "+where, args...,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, type, level, user_id, gateway_id, session_id,
               description, details
        FROM event_logs
        WHERE ` + where + `
        ORDER BY created_at DESC
        LIMIT $` + strconv.Itoa(idx) + ` OFFSET $` + strconv.Itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.Type, &event.Level,
			&event.UserID, &event.GatewayID, &event.SessionID,
			&event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	return events, count, rows.Err()
}
