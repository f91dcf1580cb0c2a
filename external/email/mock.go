package email

import (
	"context"
	"sync"

	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
)

// SentMessage is one email captured by MockProvider.
type SentMessage struct {
	To      string
	Subject string
	HTML    string
}

// MockProvider logs emails instead of sending them and keeps them for
// inspection.
type MockProvider struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []SentMessage
}

func NewMockProvider(logger *logging.Logger) *MockProvider {
	if logger == nil {
		logger = logging.Default()
	}
	return &MockProvider{logger: logger}
}

func (m *MockProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.logger.InfoContext(ctx, "mock email",
		"to", to,
		"subject", subject,
		"body_length", len(htmlBody),
	)

	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Subject: subject, HTML: htmlBody})
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the captured emails.
func (m *MockProvider) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
