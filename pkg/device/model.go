package device

import (
	"time"

	"github.com/google/uuid"
)

// DeviceType distinguishes the two second-factor mechanisms.
type DeviceType string

const (
	TypeTOTP DeviceType = "totp"
	TypeU2F  DeviceType = "u2f"
)

// Device is a second-factor enrollment belonging to exactly one user.
// A TOTP device carries a shared secret; a U2F device carries the
// hardware registration blob. Only confirmed U2F devices participate
// in challenges.
type Device struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      DeviceType `json:"type"`
	Name      string     `json:"name,omitempty"`
	Secret    string     `json:"-"`
	KeyData   []byte     `json:"-"`
	Counter   uint32     `json:"-"`
	Confirmed bool       `json:"confirmed"`
	CreatedAt time.Time  `json:"created_at"`
}
