package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors shared by the repository implementations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrAlreadyMember     = errors.New("user is already a member of the team")
)

// AcceptInviteParams carries the pieces of the one multi-step mutation
// in the auth layer. Implementations must apply membership, audit
// entry and invite deletion atomically.
type AcceptInviteParams struct {
	Invite TeamInvite
	UserID uuid.UUID
	Audit  AuditEntry
}

// Repository is the persistent storage collaborator for principals,
// teams, invites and the audit log.
type Repository interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	AppendAuditLog(ctx context.Context, entry AuditEntry) error
	GetAuditLog(ctx context.Context, userID uuid.UUID) ([]AuditEntry, error)

	GetTeamByID(ctx context.Context, id uuid.UUID) (Team, error)
	GetInviteByToken(ctx context.Context, token string) (TeamInvite, error)
	DeleteInvite(ctx context.Context, id uuid.UUID) error
	IsTeamMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error)

	// AcceptInvite adds the user to the invite's team, appends the
	// audit entry and deletes the invite in a single transaction.
	AcceptInvite(ctx context.Context, params AcceptInviteParams) error
}
