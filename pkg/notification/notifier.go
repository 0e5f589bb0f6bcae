package notification

import "errors"

// ErrSendFailed wraps every transport-level delivery failure. Callers
// map it to a retryable user-facing error; partial state already
// committed before the send stays committed.
var ErrSendFailed = errors.New("failed to send notification")

// NotificationType names a registered message template.
type NotificationType string

const (
	PasswordRecoveryNotice NotificationType = "password_recovery"
	WelcomeNotice          NotificationType = "welcome"
)

// NotificationData is one outbound message.
type NotificationData struct {
	To     string
	Type   NotificationType
	Locale string
	Data   map[string]string
}

// Notifier delivers notifications over one transport.
type Notifier interface {
	Send(notification NotificationData) error
}
