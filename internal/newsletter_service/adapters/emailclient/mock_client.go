package emailclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MockEmailSender is a test implementation of EmailSender. Errors are served
// per recipient in FIFO order; once a recipient's scripted errors run out,
// sends succeed.
type MockEmailSender struct {
	logger         *slog.Logger
	SimulatedDelay time.Duration

	mu        sync.Mutex
	scripted  map[string][]error
	calls     []SendEmailRequest
}

func NewMockEmailSender(logger *slog.Logger) *MockEmailSender {
	return &MockEmailSender{
		logger:   logger.With("transport", "mock"),
		scripted: make(map[string][]error),
	}
}

// FailNext queues errs to be returned for the recipient's next sends.
func (m *MockEmailSender) FailNext(recipient string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[recipient] = append(m.scripted[recipient], errs...)
}

// Calls returns a copy of every send attempt observed so far.
func (m *MockEmailSender) Calls() []SendEmailRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendEmailRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo counts send attempts for one recipient.
func (m *MockEmailSender) CallsTo(recipient string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.To == recipient {
			n++
		}
	}
	return n
}

func (m *MockEmailSender) Send(ctx context.Context, req SendEmailRequest) error {
	if m.SimulatedDelay > 0 {
		select {
		case <-time.After(m.SimulatedDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var err error
	if queue := m.scripted[req.To]; len(queue) > 0 {
		err, m.scripted[req.To] = queue[0], queue[1:]
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.WarnContext(ctx, "mock email sender: simulated failure", "recipient", req.To, "error", err)
		return err
	}
	m.logger.InfoContext(ctx, "mock email sender: email sent (simulated)", "recipient", req.To, "subject", req.Subject)
	return nil
}
