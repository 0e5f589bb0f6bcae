package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both a pgx pool and a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL device repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateDevice(ctx context.Context, params CreateDeviceParams) (Device, error) {
	query := `
		INSERT INTO second_factor_device (id, user_id, type, name, secret, key_data, counter, confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		RETURNING id, user_id, type, name, secret, key_data, counter, confirmed, created_at`
	row := r.db.QueryRow(ctx, query,
		uuid.New(), params.UserID, string(params.Type), params.Name,
		params.Secret, params.KeyData, params.Confirmed, time.Now().UTC())

	var d Device
	if err := row.Scan(&d.ID, &d.UserID, &d.Type, &d.Name, &d.Secret, &d.KeyData, &d.Counter, &d.Confirmed, &d.CreatedAt); err != nil {
		return Device{}, fmt.Errorf("failed to create device: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM second_factor_device WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *PostgresRepository) ConfirmDevice(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE second_factor_device SET confirmed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to confirm device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateCounter(ctx context.Context, id uuid.UUID, counter uint32) error {
	tag, err := r.db.Exec(ctx, `UPDATE second_factor_device SET counter = $2 WHERE id = $1`, id, int64(counter))
	if err != nil {
		return fmt.Errorf("failed to update counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *PostgresRepository) FindConfirmedByType(ctx context.Context, userID uuid.UUID, deviceType DeviceType) ([]Device, error) {
	query := `
		SELECT id, user_id, type, name, secret, key_data, counter, confirmed, created_at
		FROM second_factor_device
		WHERE user_id = $1 AND type = $2 AND confirmed = true`
	rows, err := r.db.Query(ctx, query, userID, string(deviceType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Type, &d.Name, &d.Secret, &d.KeyData, &d.Counter, &d.Confirmed, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
