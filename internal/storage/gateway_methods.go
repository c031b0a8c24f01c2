package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
)

// ========== Gateway Methods ==========

// CreateGateway creates a new gateway
func (s *PostgresStore) CreateGateway(ctx context.Context, gw *models.WifiGateway) error {
	if gw.ID == uuid.Nil {
		gw.ID = uuid.New()
	}

	now := time.Now()
	gw.CreatedAt = now
	gw.UpdatedAt = now

	query := `
        INSERT INTO wifi_gateways (
            id, created_at, updated_at, gw_id, name, mgmt_ip,
            mac_address, last_seen_at, meta
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		gw.ID, gw.CreatedAt, gw.UpdatedAt, gw.GwID, gw.Name, gw.MgmtIP,
		gw.MACAddress, gw.LastSeenAt, gw.Meta,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const gatewayColumns = `id, created_at, updated_at, gw_id, name, mgmt_ip,
       mac_address, last_seen_at, meta`

func scanGateway(row interface{ Scan(...interface{}) error }) (*models.WifiGateway, error) {
	gw := &models.WifiGateway{}
	err := row.Scan(
		&gw.ID, &gw.CreatedAt, &gw.UpdatedAt, &gw.GwID, &gw.Name,
		&gw.MgmtIP, &gw.MACAddress, &gw.LastSeenAt, &gw.Meta,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return gw, nil
}

// GetGateway gets a gateway by ID
func (s *PostgresStore) GetGateway(ctx context.Context, id uuid.UUID) (*models.WifiGateway, error) {
	query := `SELECT ` + gatewayColumns + ` FROM wifi_gateways WHERE id = $1`
	return scanGateway(s.getDB().QueryRowContext(ctx, query, id))
}

// GetGatewayByGwID gets a gateway by its firmware-supplied identifier
func (s *PostgresStore) GetGatewayByGwID(ctx context.Context, gwID string) (*models.WifiGateway, error) {
	query := `SELECT ` + gatewayColumns + ` FROM wifi_gateways WHERE gw_id = $1`
	return scanGateway(s.getDB().QueryRowContext(ctx, query, gwID))
}

// UpdateGateway updates a gateway
func (s *PostgresStore) UpdateGateway(ctx context.Context, gw *models.WifiGateway) error {
	gw.UpdatedAt = time.Now()

	query := `
        UPDATE wifi_gateways SET
            updated_at = $2, gw_id = $3, name = $4, mgmt_ip = $5,
            mac_address = $6, meta = $7
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		gw.ID, gw.UpdatedAt, gw.GwID, gw.Name, gw.MgmtIP,
		gw.MACAddress, gw.Meta,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteGateway deletes a gateway
func (s *PostgresStore) DeleteGateway(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM wifi_gateways WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListGateways lists gateways
func (s *PostgresStore) ListGateways(ctx context.Context, limit, offset int) ([]*models.WifiGateway, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM wifi_gateways").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + gatewayColumns + `
        FROM wifi_gateways
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var gateways []*models.WifiGateway
	for rows.Next() {
		gw, err := scanGateway(rows)
		if err != nil {
			return nil, 0, err
		}
		gateways = append(gateways, gw)
	}

	return gateways, count, rows.Err()
}

// TouchGateway records a heartbeat from the gateway backend
func (s *PostgresStore) TouchGateway(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	_, err := s.getDB().ExecContext(ctx,
		"UPDATE wifi_gateways SET last_seen_at = $2 WHERE id = $1", id, seenAt)
	return err
}
