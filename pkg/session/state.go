package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/tstranex/u2f"
)

// Phase is the elevation phase of a visitor session.
type Phase string

const (
	PhaseAnonymous     Phase = "anonymous"
	PhasePending2FA    Phase = "pending_2fa"
	PhaseAuthenticated Phase = "authenticated"
)

// ElevationWindow is how long a password-verified session may stay in
// the pending-2FA phase before it is forced back to anonymous.
const ElevationWindow = 300 * time.Second

// MaxSecondFactorAttempts caps failed code submissions for one pending
// session before it is reset to anonymous.
const MaxSecondFactorAttempts = 5

// State is the server-side per-visitor session state. All elevation
// transitions go through the methods below; handlers never mutate
// fields directly.
type State struct {
	UserID         uuid.UUID      `json:"user_id,omitempty"`
	PendingUserID  uuid.UUID      `json:"pending_user_id,omitempty"`
	PendingSince   time.Time      `json:"pending_since,omitempty"`
	LoginTime      time.Time      `json:"login_time,omitempty"`
	LongSession    bool           `json:"long_session,omitempty"`
	Challenge      *u2f.Challenge `json:"challenge,omitempty"`
	FailedAttempts int            `json:"failed_attempts,omitempty"`
}

// Phase derives the current phase. A zero LoginTime means no
// authenticated session.
func (s *State) Phase() Phase {
	if !s.LoginTime.IsZero() {
		return PhaseAuthenticated
	}
	if s.PendingUserID != uuid.Nil {
		return PhasePending2FA
	}
	return PhaseAnonymous
}

// IsAuthenticated reports whether the session is fully authenticated.
func (s *State) IsAuthenticated() bool {
	return s.Phase() == PhaseAuthenticated
}

// PendingExpired reports whether the pending-2FA state has outlived
// the elevation window.
func (s *State) PendingExpired(now time.Time) bool {
	if s.PendingUserID == uuid.Nil {
		return true
	}
	return now.Sub(s.PendingSince) > ElevationWindow
}

// BeginPending records a password-verified principal awaiting a second
// factor. No authenticated session exists yet.
func (s *State) BeginPending(userID uuid.UUID, longSession bool, now time.Time) {
	s.PendingUserID = userID
	s.PendingSince = now
	s.LoginTime = time.Time{}
	s.LongSession = longSession
	s.FailedAttempts = 0
}

// CompleteLogin upgrades the session to authenticated for the pending
// principal. Pending fields and any in-flight challenge are cleared in
// the same step; the long session preference recorded at password
// entry is preserved.
func (s *State) CompleteLogin(now time.Time) {
	s.UserID = s.PendingUserID
	s.PendingUserID = uuid.Nil
	s.PendingSince = time.Time{}
	s.Challenge = nil
	s.FailedAttempts = 0
	s.LoginTime = now
}

// FailAttempt records a failed second-factor submission. When the
// attempt cap is reached the pending state is discarded and the
// session drops back to anonymous; the return value reports that.
func (s *State) FailAttempt() bool {
	s.FailedAttempts++
	if s.FailedAttempts >= MaxSecondFactorAttempts {
		s.Reset()
		return true
	}
	return false
}

// Reset clears all pending fields together, returning the session to
// anonymous without touching an authenticated login.
func (s *State) Reset() {
	s.PendingUserID = uuid.Nil
	s.PendingSince = time.Time{}
	s.Challenge = nil
	s.FailedAttempts = 0
}

// Logout ends the authenticated session. LoginTime zero is the
// sentinel for "no session"; nothing else is deleted.
func (s *State) Logout() {
	s.UserID = uuid.Nil
	s.LoginTime = time.Time{}
	s.Reset()
}
