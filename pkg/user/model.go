package user

import (
	"time"

	"github.com/google/uuid"
)

// User is a control panel principal.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `json:"-"`
	Locale       string    `json:"locale,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	Active       bool      `json:"active"`
	Require2FA   bool      `json:"require_2fa"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Team is a group of users sharing access to the same resources.
type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamInvite is a single-use invitation bound to one team and one
// invitee email address. It is deleted exactly once when consumed.
type TeamInvite struct {
	ID        uuid.UUID `json:"id"`
	TeamID    uuid.UUID `json:"team_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry is one record of the append-only action log. Exactly one
// of UserID and TeamID identifies the subject.
type AuditEntry struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id,omitempty"`
	TeamID    uuid.UUID         `json:"team_id,omitempty"`
	Action    string            `json:"action"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Audit action names recorded by the auth layer.
const (
	ActionUserCreated        = "auth.user.created"
	ActionForgotDeniedRepeat = "auth.user.forgot_password.denied.repeated"
	ActionForgotMailSent     = "auth.user.forgot_password.mail_sent"
	ActionPasswordRecovered  = "auth.user.forgot_password.recovered"
	ActionTeamMemberJoined   = "team.member.joined"
)

// CreateUserParams are the fields required to create a principal.
type CreateUserParams struct {
	Email        string
	FullName     string
	PasswordHash string
	Locale       string
	Timezone     string
}
