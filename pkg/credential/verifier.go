package credential

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/panelkit/panelauth/pkg/errs"
	"github.com/panelkit/panelauth/pkg/user"
)

// dummyHash is compared against when no account matches, so that the
// unknown-email path costs the same bcrypt work as a wrong password.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("panelauth-dummy"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// Verifier checks email+password pairs against stored credentials.
type Verifier struct {
	repo user.Repository
}

// NewVerifier creates a new credential verifier
func NewVerifier(repo user.Repository) *Verifier {
	return &Verifier{repo: repo}
}

// Verify returns the matching active principal or a generic
// INVALID_CREDENTIALS error. Unknown email, wrong password and
// inactive account are indistinguishable to the caller.
func (v *Verifier) Verify(ctx context.Context, email, password string) (user.User, error) {
	u, err := v.repo.GetUserByEmail(ctx, email)
	if err != nil {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return user.User{}, errs.InvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return user.User{}, errs.InvalidCredentials()
	}

	if !u.Active {
		slog.Info("Login attempt for inactive account", "user_id", u.ID)
		return user.User{}, errs.InvalidCredentials()
	}

	return u, nil
}

// HashPassword hashes the plain-text password using bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
