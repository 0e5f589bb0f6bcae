package authflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/tstranex/u2f"

	"github.com/panelkit/panelauth/pkg/config"
	"github.com/panelkit/panelauth/pkg/credential"
	"github.com/panelkit/panelauth/pkg/errs"
	"github.com/panelkit/panelauth/pkg/session"
	"github.com/panelkit/panelauth/pkg/twofa"
	"github.com/panelkit/panelauth/pkg/user"
)

// Service drives the session elevation state machine: anonymous to
// pending-2FA to authenticated. All transitions of a visitor session
// happen here; handlers only translate HTTP to these calls.
type Service struct {
	verifier *credential.Verifier
	users    user.Repository
	engine   *twofa.Engine
	features config.Features
	now      func() time.Time
}

// ServiceOption is a functional option for configuring Service
type ServiceOption func(*Service)

// NewService creates a new auth flow Service with the given options
func NewService(users user.Repository, verifier *credential.Verifier, engine *twofa.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		users:    users,
		verifier: verifier,
		engine:   engine,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithFeatures sets the feature switches
func WithFeatures(f config.Features) ServiceOption {
	return func(s *Service) {
		s.features = f
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// LoginResult is the outcome of a successful password check.
type LoginResult struct {
	User                 user.User
	SecondFactorRequired bool
}

// Login verifies the password and advances the session. Principals
// with a second factor requirement end up pending; everyone else is
// authenticated immediately. The long session preference is recorded
// at password entry and only honored when the feature is on.
func (s *Service) Login(ctx context.Context, state *session.State, email, password string, long bool) (LoginResult, error) {
	u, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}

	long = long && s.features.LongSessionsEnabled
	state.BeginPending(u.ID, long, s.now())

	if u.Require2FA {
		slog.Info("Password verified, second factor required", "user_id", u.ID)
		return LoginResult{User: u, SecondFactorRequired: true}, nil
	}

	state.CompleteLogin(s.now())
	slog.Info("User logged in", "user_id", u.ID)
	return LoginResult{User: u}, nil
}

// Authenticate upgrades the session for an already-verified principal,
// skipping the password check. Used right after registration.
func (s *Service) Authenticate(state *session.State, u user.User, long bool) {
	state.BeginPending(u.ID, long && s.features.LongSessionsEnabled, s.now())
	state.CompleteLogin(s.now())
}

// PendingUser guards every pending-2FA operation. The pending
// principal must still exist, still be active and still be inside the
// elevation window. Any violation resets the session to anonymous.
func (s *Service) PendingUser(ctx context.Context, state *session.State) (user.User, error) {
	if state.Phase() != session.PhasePending2FA {
		return user.User{}, errs.New(errs.ErrCodeInvalidCredentials, "please log in first")
	}

	if state.PendingExpired(s.now()) {
		state.Reset()
		return user.User{}, errs.New(errs.ErrCodeInvalidCredentials, "your login attempt expired, please start over")
	}

	u, err := s.users.GetUserByID(ctx, state.PendingUserID)
	if err != nil || !u.Active {
		state.Reset()
		return user.User{}, errs.New(errs.ErrCodeInvalidCredentials, "please log in first")
	}

	return u, nil
}

// SecondFactorChallenge issues a fresh hardware challenge for the
// pending principal, or nil when only one-time codes are enrolled.
func (s *Service) SecondFactorChallenge(ctx context.Context, state *session.State, appID string) (*u2f.WebSignRequest, error) {
	u, err := s.PendingUser(ctx, state)
	if err != nil {
		return nil, err
	}
	return s.engine.IssueChallenge(ctx, state, u, appID)
}

// CompleteSecondFactor checks the submitted proof and either finishes
// the login or records the failure. Hitting the attempt cap drops the
// session back to anonymous.
func (s *Service) CompleteSecondFactor(ctx context.Context, state *session.State, token, appID string) (user.User, error) {
	u, err := s.PendingUser(ctx, state)
	if err != nil {
		return user.User{}, err
	}

	if !s.engine.VerifyToken(ctx, state, u, token, appID) {
		if state.FailAttempt() {
			slog.Info("Second factor attempt cap reached", "user_id", u.ID)
			return user.User{}, errs.New(errs.ErrCodeInvalidCredentials, "too many failed attempts, please log in again")
		}
		return user.User{}, errs.TwoFAInvalid()
	}

	state.CompleteLogin(s.now())
	slog.Info("User logged in with second factor", "user_id", u.ID)
	return u, nil
}

// CurrentUser resolves the authenticated principal for a session, if
// any. An authenticated session whose principal vanished or was
// deactivated is logged out.
func (s *Service) CurrentUser(ctx context.Context, state *session.State) (user.User, bool) {
	if !state.IsAuthenticated() {
		return user.User{}, false
	}
	u, err := s.users.GetUserByID(ctx, state.UserID)
	if err != nil || !u.Active {
		state.Logout()
		return user.User{}, false
	}
	return u, true
}

// Logout ends the session.
func (s *Service) Logout(state *session.State) {
	state.Logout()
}
