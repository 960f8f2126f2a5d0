// Package mailer is the outbound gate for credential delivery. The core
// treats any non-nil Send error as a terminal failure for that item; retry
// policy beyond that belongs to the gateway behind the SMTP relay.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/pkg/email"
)

// Message carries everything a credential delivery template needs.
type Message struct {
	To          string
	DisplayName string
	// Credential is the plaintext. It exists only in this message and the
	// mail body; it must never be logged or persisted.
	Credential string
}

// Mailer delivers one credential message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	from string
}

func NewSMTP(cfg config.SMTP) *SMTPMailer {
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from: cfg.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your voting credential\r\n\r\n"+
			"Dear %s,\r\n\r\nYour one-time voting credential is: %s\r\n\r\n"+
			"It can be used exactly once. Do not share it.\r\n",
		m.from, msg.To, email.Salutation(msg.DisplayName, msg.To), msg.Credential,
	)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("send credential mail: %w", err)
	}
	return nil
}
