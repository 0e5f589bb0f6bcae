package notification

import "sync"

// MockNotifier records sent notifications for tests. When Fail is set
// every Send returns ErrSendFailed after recording nothing.
type MockNotifier struct {
	mu   sync.Mutex
	Fail bool
	sent []NotificationData
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(notification NotificationData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return ErrSendFailed
	}
	m.sent = append(m.sent, notification)
	return nil
}

// Sent returns a copy of all recorded notifications.
func (m *MockNotifier) Sent() []NotificationData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NotificationData(nil), m.sent...)
}
