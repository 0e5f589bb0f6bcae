package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelkit/panelauth/pkg/errs"
	"github.com/panelkit/panelauth/pkg/user"
)

func newUser(t *testing.T, repo *user.InMemoryRepository, email, password string, active bool) user.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	u, err := repo.CreateUser(context.Background(), user.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	if !active {
		repo.SetActive(u.ID, false)
	}
	return u
}

func TestVerifyInactiveAccount(t *testing.T) {
	repo := user.NewInMemoryRepository()
	newUser(t, repo, "gone@example.com", "correct horse", false)

	v := NewVerifier(repo)
	_, err := v.Verify(context.Background(), "gone@example.com", "correct horse")
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ErrCodeInvalidCredentials))
}

func TestVerifySuccess(t *testing.T) {
	repo := user.NewInMemoryRepository()
	created := newUser(t, repo, "alice@example.com", "correct horse", true)

	v := NewVerifier(repo)
	got, err := v.Verify(context.Background(), "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestVerifyFailuresAreIndistinguishable(t *testing.T) {
	repo := user.NewInMemoryRepository()
	newUser(t, repo, "alice@example.com", "correct horse", true)
	v := NewVerifier(repo)

	_, errWrongPassword := v.Verify(context.Background(), "alice@example.com", "battery staple")
	_, errUnknownEmail := v.Verify(context.Background(), "nobody@example.com", "battery staple")

	require.Error(t, errWrongPassword)
	require.Error(t, errUnknownEmail)
	assert.True(t, errs.IsCode(errWrongPassword, errs.ErrCodeInvalidCredentials))
	assert.True(t, errs.IsCode(errUnknownEmail, errs.ErrCodeInvalidCredentials))
	// Same message, no user-existence leak.
	assert.Equal(t, errWrongPassword.Error(), errUnknownEmail.Error())
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	repo := user.NewInMemoryRepository()
	_, err = repo.CreateUser(context.Background(), user.CreateUserParams{
		Email:        "bob@example.com",
		PasswordHash: hash,
	})
	require.NoError(t, err)

	v := NewVerifier(repo)
	_, err = v.Verify(context.Background(), "bob@example.com", "s3cret")
	assert.NoError(t, err)
}
