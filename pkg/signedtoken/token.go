package signedtoken

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/panelkit/panelauth/pkg/user"
)

// DefaultValidity is how long a recovery token stays usable.
const DefaultValidity = 72 * time.Hour

// Service issues and verifies signed, time-limited recovery tokens.
// A token is bound to one user and to a fingerprint of that user's
// current password hash, so any password change invalidates every
// token issued before it.
type Service struct {
	secret   []byte
	issuer   string
	validity time.Duration
}

// NewService creates a token service with the default validity window
func NewService(secret, issuer string) *Service {
	return &Service{
		secret:   []byte(secret),
		issuer:   issuer,
		validity: DefaultValidity,
	}
}

// NewServiceWithValidity creates a token service with a custom window
func NewServiceWithValidity(secret, issuer string, validity time.Duration) *Service {
	return &Service{
		secret:   []byte(secret),
		issuer:   issuer,
		validity: validity,
	}
}

type recoveryClaims struct {
	PasswordFingerprint string `json:"pwfp"`
	jwt.RegisteredClaims
}

func passwordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:])
}

// Issue creates a recovery token for the user.
func (s *Service) Issue(u user.User) (string, error) {
	now := time.Now().UTC()
	claims := recoveryClaims{
		PasswordFingerprint: passwordFingerprint(u.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		slog.Error("Failed to sign recovery token", "user_id", u.ID, "err", err)
		return "", err
	}
	return signed, nil
}

// Verify reports whether the token is valid for exactly this user and
// this user's current password hash. All failure modes collapse to
// false; callers surface one generic error.
func (s *Service) Verify(u user.User, tokenStr string) bool {
	claims := &recoveryClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil || !token.Valid {
		return false
	}

	if claims.Subject != u.ID.String() {
		return false
	}

	want := passwordFingerprint(u.PasswordHash)
	return subtle.ConstantTimeCompare([]byte(claims.PasswordFingerprint), []byte(want)) == 1
}
