package testutils

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendTemplate(templateName string, to []string, subject string, data map[string]any) (string, error) {
	args := m.Called(templateName, to, subject, data)
	return args.String(0), args.Error(1)
}

// CapturingNotifier records every send and can hand the secrets back to
// tests without SMTP. Safe for concurrent use.
type CapturingNotifier struct {
	mu    sync.Mutex
	Sends []CapturedSend
	Err   error
}

type CapturedSend struct {
	Template string
	To       []string
	Subject  string
	Data     map[string]any
}

func (n *CapturingNotifier) SendTemplate(templateName string, to []string, subject string, data map[string]any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return "", n.Err
	}
	n.Sends = append(n.Sends, CapturedSend{Template: templateName, To: to, Subject: subject, Data: data})
	return "", nil
}

func (n *CapturingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Sends)
}

func (n *CapturingNotifier) Last() CapturedSend {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Sends[len(n.Sends)-1]
}
