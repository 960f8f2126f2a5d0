package mailer

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryMailer records messages for tests and can be told to fail specific
// recipients to exercise the skip-and-continue paths.
type MemoryMailer struct {
	mu       sync.Mutex
	sent     []Message
	failWith map[string]error
}

func NewMemory() *MemoryMailer {
	return &MemoryMailer{failWith: make(map[string]error)}
}

// FailFor makes Send return err for the given recipient.
func (m *MemoryMailer) FailFor(to string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith[to] = err
}

func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failWith[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of every delivered message.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// LogMailer is the no-SMTP fallback for local development. It logs the
// recipient only; the credential plaintext stays out of the logs.
type LogMailer struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "credential mail (dev mode, not sent)",
		"to", msg.To,
	)
	return nil
}
