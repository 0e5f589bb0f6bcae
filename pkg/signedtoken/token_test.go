package signedtoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelkit/panelauth/pkg/user"
)

func testUser() user.User {
	return user.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$originalhash",
	}
}

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("secret", "panelauth")
	u := testUser()

	token, err := svc.Issue(u)
	require.NoError(t, err)
	assert.True(t, svc.Verify(u, token))
}

func TestVerifyWrongUser(t *testing.T) {
	svc := NewService("secret", "panelauth")
	a := testUser()
	b := testUser()
	b.PasswordHash = a.PasswordHash

	token, err := svc.Issue(a)
	require.NoError(t, err)

	// Token for user A submitted against user B fails even with the
	// same password hash.
	assert.False(t, svc.Verify(b, token))
}

func TestVerifyInvalidatedByPasswordChange(t *testing.T) {
	svc := NewService("secret", "panelauth")
	u := testUser()

	token, err := svc.Issue(u)
	require.NoError(t, err)

	u.PasswordHash = "$2a$10$changedhash"
	assert.False(t, svc.Verify(u, token))
}

func TestVerifyExpired(t *testing.T) {
	svc := NewServiceWithValidity("secret", "panelauth", -time.Minute)
	u := testUser()

	token, err := svc.Issue(u)
	require.NoError(t, err)
	assert.False(t, svc.Verify(u, token))
}

func TestVerifyWrongSecret(t *testing.T) {
	u := testUser()
	token, err := NewService("secret-a", "panelauth").Issue(u)
	require.NoError(t, err)

	assert.False(t, NewService("secret-b", "panelauth").Verify(u, token))
}

func TestVerifyGarbageToken(t *testing.T) {
	svc := NewService("secret", "panelauth")
	assert.False(t, svc.Verify(testUser(), "not-a-token"))
	assert.False(t, svc.Verify(testUser(), ""))
}
