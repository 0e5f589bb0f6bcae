package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/panelkit/panelauth/pkg/config"
	"github.com/panelkit/panelauth/pkg/cooldown"
	"github.com/panelkit/panelauth/pkg/credential"
	"github.com/panelkit/panelauth/pkg/errs"
	"github.com/panelkit/panelauth/pkg/notification"
	"github.com/panelkit/panelauth/pkg/signedtoken"
	"github.com/panelkit/panelauth/pkg/user"
)

// Service handles the account lifecycle: registration, team invites
// and the password reset round trip.
type Service struct {
	repo     user.Repository
	notifier notification.Notifier
	tokens   *signedtoken.Service
	guard    *cooldown.Guard
	features config.Features
}

// ServiceOption is a functional option for configuring Service
type ServiceOption func(*Service)

// NewService creates a new account Service with the given options
func NewService(repo user.Repository, tokens *signedtoken.Service, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		tokens: tokens,
		guard:  cooldown.NewGuard(nil),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithNotifier sets the outbound notification transport
func WithNotifier(n notification.Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithCooldownGuard sets the reset request cooldown store
func WithCooldownGuard(g *cooldown.Guard) ServiceOption {
	return func(s *Service) {
		s.guard = g
	}
}

// WithFeatures sets the feature switches
func WithFeatures(f config.Features) ServiceOption {
	return func(s *Service) {
		s.features = f
	}
}

// RegisterParams represents a self-service registration request
type RegisterParams struct {
	Email    string
	FullName string
	Password string
	Locale   string
	Timezone string
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Register creates a new principal from a self-service signup. The
// caller authenticates the session afterwards; a fresh account never
// has a second factor enrolled.
func (s *Service) Register(ctx context.Context, params RegisterParams) (user.User, error) {
	if !s.features.RegistrationEnabled {
		return user.User{}, errs.FeatureDisabled("registration")
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	if !validEmail(email) {
		return user.User{}, errs.New(errs.ErrCodeInvalidInput, "invalid email address")
	}
	if len(params.Password) < 8 {
		return user.User{}, errs.New(errs.ErrCodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := credential.HashPassword(params.Password)
	if err != nil {
		return user.User{}, errs.Internal(err, "failed to hash password")
	}

	created, err := s.repo.CreateUser(ctx, user.CreateUserParams{
		Email:        email,
		FullName:     params.FullName,
		PasswordHash: hash,
		Locale:       params.Locale,
		Timezone:     params.Timezone,
	})
	if err != nil {
		if errors.Is(err, user.ErrUserAlreadyExists) {
			return user.User{}, errs.New(errs.ErrCodeConflict, "an account with this email address already exists")
		}
		return user.User{}, errs.Internal(err, "failed to create user")
	}

	if err := s.repo.AppendAuditLog(ctx, user.AuditEntry{
		UserID: created.ID,
		Action: user.ActionUserCreated,
	}); err != nil {
		slog.Error("Failed to append audit log", "action", user.ActionUserCreated, "user_id", created.ID, "err", err)
	}

	if s.notifier != nil {
		err := s.notifier.Send(notification.NotificationData{
			To:     created.Email,
			Type:   notification.WelcomeNotice,
			Locale: created.Locale,
			Data:   map[string]string{"Email": created.Email, "Name": created.FullName},
		})
		if err != nil {
			slog.Error("Failed to send welcome notice", "user_id", created.ID, "err", err)
		}
	}

	slog.Info("User registered", "user_id", created.ID)
	return created, nil
}

// AcceptInvite joins an existing, signed-in user to the inviting team.
// The membership, the audit entry and the invite deletion are applied
// in one transaction; the invite token is consumed exactly once.
func (s *Service) AcceptInvite(ctx context.Context, token string, current user.User) (user.Team, error) {
	invite, err := s.repo.GetInviteByToken(ctx, token)
	if err != nil {
		return user.Team{}, errs.TokenInvalid()
	}

	team, err := s.repo.GetTeamByID(ctx, invite.TeamID)
	if err != nil {
		return user.Team{}, errs.TokenInvalid()
	}

	err = s.repo.AcceptInvite(ctx, user.AcceptInviteParams{
		Invite: invite,
		UserID: current.ID,
		Audit: user.AuditEntry{
			TeamID: invite.TeamID,
			Action: user.ActionTeamMemberJoined,
			Data: map[string]string{
				"email":   invite.Email,
				"user_id": current.ID.String(),
			},
		},
	})
	if err != nil {
		if errors.Is(err, user.ErrAlreadyMember) {
			return user.Team{}, errs.New(errs.ErrCodeConflict, "you are already a member of this team")
		}
		if errors.Is(err, user.ErrInviteNotFound) {
			return user.Team{}, errs.TokenInvalid()
		}
		return user.Team{}, errs.Internal(err, "failed to accept invite")
	}

	slog.Info("Team invite accepted", "team_id", team.ID, "user_id", current.ID)
	return team, nil
}

// RegisterWithInvite creates a fresh account from an invite token and
// joins it to the inviting team in the same call. The registration
// feature switch does not apply here; an invite is its own permission.
func (s *Service) RegisterWithInvite(ctx context.Context, token string, params RegisterParams) (user.User, user.Team, error) {
	invite, err := s.repo.GetInviteByToken(ctx, token)
	if err != nil {
		return user.User{}, user.Team{}, errs.TokenInvalid()
	}

	if len(params.Password) < 8 {
		return user.User{}, user.Team{}, errs.New(errs.ErrCodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := credential.HashPassword(params.Password)
	if err != nil {
		return user.User{}, user.Team{}, errs.Internal(err, "failed to hash password")
	}

	created, err := s.repo.CreateUser(ctx, user.CreateUserParams{
		Email:        strings.ToLower(strings.TrimSpace(invite.Email)),
		FullName:     params.FullName,
		PasswordHash: hash,
		Locale:       params.Locale,
		Timezone:     params.Timezone,
	})
	if err != nil {
		if errors.Is(err, user.ErrUserAlreadyExists) {
			return user.User{}, user.Team{}, errs.New(errs.ErrCodeConflict, "an account with this email address already exists")
		}
		return user.User{}, user.Team{}, errs.Internal(err, "failed to create user")
	}

	if err := s.repo.AppendAuditLog(ctx, user.AuditEntry{
		UserID: created.ID,
		Action: user.ActionUserCreated,
	}); err != nil {
		slog.Error("Failed to append audit log", "action", user.ActionUserCreated, "user_id", created.ID, "err", err)
	}

	team, err := s.AcceptInvite(ctx, token, created)
	if err != nil {
		return user.User{}, user.Team{}, err
	}

	return created, team, nil
}

// RequestPasswordReset starts the reset round trip for the given
// address. An unknown address reports success without doing anything,
// so the endpoint does not reveal which addresses have accounts. A
// repeat request inside the cooldown window is denied and audited.
//
// The cooldown is armed before the mail goes out. A transport failure
// after that point leaves the cooldown in place; retrying immediately
// would hit the same transport again anyway.
func (s *Service) RequestPasswordReset(ctx context.Context, email, baseURL string) error {
	if !s.features.PasswordResetEnabled {
		return errs.FeatureDisabled("password reset")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		slog.Info("Password reset requested for unknown address")
		return nil
	}

	if s.guard.Active(ctx, u.ID) {
		if err := s.repo.AppendAuditLog(ctx, user.AuditEntry{
			UserID: u.ID,
			Action: user.ActionForgotDeniedRepeat,
		}); err != nil {
			slog.Error("Failed to append audit log", "action", user.ActionForgotDeniedRepeat, "user_id", u.ID, "err", err)
		}
		return errs.RateLimited("a password reset mail was sent recently, please check your inbox or try again later")
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return errs.Internal(err, "failed to issue recovery token")
	}

	s.guard.Set(ctx, u.ID)

	err = s.notifier.Send(notification.NotificationData{
		To:     u.Email,
		Type:   notification.PasswordRecoveryNotice,
		Locale: u.Locale,
		Data: map[string]string{
			"Name": u.FullName,
			"Link": fmt.Sprintf("%s/recover?id=%s&token=%s", baseURL, u.ID, token),
		},
	})
	if err != nil {
		slog.Error("Failed to send password recovery mail", "user_id", u.ID, "err", err)
		return errs.TransportFailure(err)
	}

	if err := s.repo.AppendAuditLog(ctx, user.AuditEntry{
		UserID: u.ID,
		Action: user.ActionForgotMailSent,
	}); err != nil {
		slog.Error("Failed to append audit log", "action", user.ActionForgotMailSent, "user_id", u.ID, "err", err)
	}

	slog.Info("Password recovery mail sent", "user_id", u.ID)
	return nil
}

// ConfirmPasswordReset finishes the round trip. Unknown user and bad
// token are indistinguishable to the caller. A token stops verifying
// the moment the password changes, so it cannot be replayed.
func (s *Service) ConfirmPasswordReset(ctx context.Context, userID uuid.UUID, token, newPassword string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return errs.TokenInvalid()
	}

	if !s.tokens.Verify(u, token) {
		return errs.TokenInvalid()
	}

	if len(newPassword) < 8 {
		return errs.New(errs.ErrCodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := credential.HashPassword(newPassword)
	if err != nil {
		return errs.Internal(err, "failed to hash password")
	}

	if err := s.repo.SetPassword(ctx, u.ID, hash); err != nil {
		return errs.Internal(err, "failed to update password")
	}

	if err := s.repo.AppendAuditLog(ctx, user.AuditEntry{
		UserID: u.ID,
		Action: user.ActionPasswordRecovered,
	}); err != nil {
		slog.Error("Failed to append audit log", "action", user.ActionPasswordRecovered, "user_id", u.ID, "err", err)
	}

	slog.Info("Password recovered", "user_id", u.ID)
	return nil
}
