package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tstranex/u2f"
)

func TestPhaseDerivation(t *testing.T) {
	s := &State{}
	assert.Equal(t, PhaseAnonymous, s.Phase())
	assert.False(t, s.IsAuthenticated())

	s.BeginPending(uuid.New(), false, time.Now())
	assert.Equal(t, PhasePending2FA, s.Phase())

	s.CompleteLogin(time.Now())
	assert.Equal(t, PhaseAuthenticated, s.Phase())
	assert.True(t, s.IsAuthenticated())

	s.Logout()
	assert.Equal(t, PhaseAnonymous, s.Phase())
	assert.True(t, s.LoginTime.IsZero())
}

func TestBeginPendingDoesNotAuthenticate(t *testing.T) {
	s := &State{}
	s.BeginPending(uuid.New(), true, time.Now())

	assert.True(t, s.LoginTime.IsZero())
	assert.True(t, s.LongSession)
	assert.False(t, s.IsAuthenticated())
}

func TestCompleteLoginClearsPendingAtomically(t *testing.T) {
	s := &State{}
	id := uuid.New()
	s.BeginPending(id, true, time.Now())
	s.Challenge = &u2f.Challenge{}
	s.FailedAttempts = 2

	now := time.Now()
	s.CompleteLogin(now)

	assert.Equal(t, id, s.UserID)
	assert.Equal(t, uuid.Nil, s.PendingUserID)
	assert.True(t, s.PendingSince.IsZero())
	assert.Nil(t, s.Challenge)
	assert.Zero(t, s.FailedAttempts)
	assert.Equal(t, now, s.LoginTime)
	// Long session preference from password entry survives.
	assert.True(t, s.LongSession)
}

func TestPendingExpired(t *testing.T) {
	now := time.Now()

	s := &State{}
	assert.True(t, s.PendingExpired(now), "no pending id counts as expired")

	s.BeginPending(uuid.New(), false, now)
	assert.False(t, s.PendingExpired(now))
	assert.False(t, s.PendingExpired(now.Add(ElevationWindow)))
	assert.True(t, s.PendingExpired(now.Add(ElevationWindow+time.Second)))
}

func TestFailAttemptLockout(t *testing.T) {
	s := &State{}
	s.BeginPending(uuid.New(), false, time.Now())

	for i := 0; i < MaxSecondFactorAttempts-1; i++ {
		assert.False(t, s.FailAttempt())
		assert.Equal(t, PhasePending2FA, s.Phase())
	}

	// The final failed attempt drops the session back to anonymous.
	assert.True(t, s.FailAttempt())
	assert.Equal(t, PhaseAnonymous, s.Phase())
	assert.Equal(t, uuid.Nil, s.PendingUserID)
	assert.Zero(t, s.FailedAttempts)
}

func TestResetClearsChallenge(t *testing.T) {
	s := &State{}
	s.BeginPending(uuid.New(), false, time.Now())
	s.Challenge = &u2f.Challenge{}

	s.Reset()
	assert.Nil(t, s.Challenge)
	assert.True(t, s.PendingSince.IsZero())
}

func TestLogoutPreservesNothingPending(t *testing.T) {
	s := &State{}
	s.BeginPending(uuid.New(), false, time.Now())
	s.CompleteLogin(time.Now())
	s.Logout()

	assert.True(t, s.LoginTime.IsZero())
	assert.Equal(t, uuid.Nil, s.UserID)
	assert.Equal(t, PhaseAnonymous, s.Phase())
}
