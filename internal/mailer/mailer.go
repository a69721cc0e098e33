// Package mailer dispatches transactional email. Sending is best-effort
// everywhere it is used: a failed or slow send is logged and never aborts
// the operation that triggered it.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
)

// Sender dispatches a single message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends through a plain SMTP relay.
type SMTPSender struct {
	cfg *config.MailConfig
}

// NewSMTPSender creates an SMTP-backed sender.
func NewSMTPSender(cfg *config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return fmt.Errorf("mail: SMTP host not configured")
	}

	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort
	msg := []byte("From: " + s.cfg.FromAddress + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}

	// net/smtp has no context support; run the send in a goroutine and
	// bound it with the config timeout so a stuck relay cannot hold the
	// caller.
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("mail: send timed out: %w", sendCtx.Err())
	}
}

// SendAsync fires the send in the background and logs the outcome. This is
// the form registration and report flows use.
func SendAsync(sender Sender, log *zap.Logger, to, subject, body string) {
	go func() {
		if err := sender.Send(context.Background(), to, subject, body); err != nil {
			log.Warn("email dispatch failed",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(err))
			return
		}
		log.Debug("email dispatched", zap.String("to", to), zap.String("subject", subject))
	}()
}
