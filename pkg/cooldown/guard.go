package cooldown

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pwreset"

// DefaultTTL is the suppression window for repeated reset emails.
const DefaultTTL = 24 * time.Hour

// Guard suppresses repeated password-reset emails using shared
// ephemeral storage. The store is optional: with a nil client every
// check answers "not active" and the reset flow is never throttled.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGuard creates a cooldown guard. client may be nil.
func NewGuard(client *redis.Client) *Guard {
	return &Guard{client: client, ttl: DefaultTTL}
}

// NewGuardWithTTL creates a cooldown guard with a custom window.
func NewGuardWithTTL(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl}
}

func key(userID uuid.UUID) string {
	return keyPrefix + ":" + userID.String()
}

// Active reports whether a cooldown record exists for the user.
// Storage errors degrade to "not active" rather than blocking resets.
func (g *Guard) Active(ctx context.Context, userID uuid.UUID) bool {
	if g.client == nil {
		return false
	}
	n, err := g.client.Exists(ctx, key(userID)).Result()
	if err != nil {
		slog.Warn("Cooldown store unavailable, allowing reset", "user_id", userID, "err", err)
		return false
	}
	return n > 0
}

// Set records a cooldown for the user. The check-then-set against
// Active is a benign race: the worst case is one extra email.
func (g *Guard) Set(ctx context.Context, userID uuid.UUID) {
	if g.client == nil {
		return
	}
	if err := g.client.Set(ctx, key(userID), "1", g.ttl).Err(); err != nil {
		slog.Warn("Failed to set reset cooldown", "user_id", userID, "err", err)
	}
}
