package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `id, email, full_name, password_hash, locale, timezone, active, require_2fa, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Locale,
		&u.Timezone, &u.Active, &u.Require2FA, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	query := `
		INSERT INTO users (id, email, full_name, password_hash, locale, timezone, active, require_2fa, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, true, false, $7, $7)
		RETURNING ` + userColumns
	now := time.Now().UTC()
	u, err := scanUser(r.pool.QueryRow(ctx, query,
		uuid.New(), params.Email, params.FullName, params.PasswordHash,
		params.Locale, params.Timezone, now))
	if err != nil {
		slog.Error("Failed to create user", "email", params.Email, "err", err)
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepository) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendAuditLog(ctx context.Context, entry AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to encode audit data: %w", err)
	}

	var teamID *uuid.UUID
	if entry.TeamID != uuid.Nil {
		teamID = &entry.TeamID
	}
	var userID *uuid.UUID
	if entry.UserID != uuid.Nil {
		userID = &entry.UserID
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_log (id, user_id, team_id, action, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, userID, teamID, entry.Action, data, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAuditLog(ctx context.Context, userID uuid.UUID) ([]AuditEntry, error) {
	query := `SELECT id, user_id, team_id, action, data, created_at FROM audit_log WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var data []byte
		var teamID *uuid.UUID
		if err := rows.Scan(&e.ID, &e.UserID, &teamID, &e.Action, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if teamID != nil {
			e.TeamID = *teamID
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				slog.Error("Failed to decode audit data", "id", e.ID, "err", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepository) GetTeamByID(ctx context.Context, id uuid.UUID) (Team, error) {
	query := `SELECT id, name, created_at FROM team WHERE id = $1`
	var t Team
	err := r.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Team{}, ErrTeamNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("failed to get team: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) GetInviteByToken(ctx context.Context, token string) (TeamInvite, error) {
	query := `SELECT id, team_id, email, token, created_at FROM team_invite WHERE token = $1`
	var inv TeamInvite
	err := r.pool.QueryRow(ctx, query, token).Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Token, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TeamInvite{}, ErrInviteNotFound
	}
	if err != nil {
		return TeamInvite{}, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) DeleteInvite(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM team_invite WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}
	return nil
}

func (r *PostgresRepository) IsTeamMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM team_member WHERE team_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, teamID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check team membership: %w", err)
	}
	return exists, nil
}

// AcceptInvite runs membership insert, audit append and invite
// deletion in one transaction.
func (r *PostgresRepository) AcceptInvite(ctx context.Context, params AcceptInviteParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM team_member WHERE team_id = $1 AND user_id = $2)`,
		params.Invite.TeamID, params.UserID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check team membership: %w", err)
	}
	if exists {
		return ErrAlreadyMember
	}

	_, err = tx.Exec(ctx, `INSERT INTO team_member (team_id, user_id, created_at) VALUES ($1, $2, $3)`,
		params.Invite.TeamID, params.UserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}

	entry := params.Audit
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to encode audit data: %w", err)
	}
	var auditUserID *uuid.UUID
	if entry.UserID != uuid.Nil {
		auditUserID = &entry.UserID
	}
	_, err = tx.Exec(ctx, `INSERT INTO audit_log (id, user_id, team_id, action, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, auditUserID, entry.TeamID, entry.Action, data, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM team_invite WHERE id = $1`, params.Invite.ID)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Invite was consumed concurrently; roll everything back.
		return ErrInviteNotFound
	}

	return tx.Commit(ctx)
}
