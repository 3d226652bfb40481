// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/wneessen/go-mail"
)

// Message is an outbound plain-text e-mail.
type Message struct {
	Subject    string
	Sender     string
	ReplyTo    string
	Recipients []string
	Body       string
}

// Mailer delivers messages. Implementations do not retry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// =============================================================================
// SMTP
// =============================================================================

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string

	// Password is moved into a memguard enclave by NewSMTPMailer. The
	// caller's copy is not wiped.
	Password string
}

// SMTPMailer delivers messages through an SMTP relay.
//
// # Description
//
// A new connection is opened per message. STARTTLS is used when the relay
// offers it. The relay password is sealed in a memguard enclave and only
// decrypted for the duration of a send.
//
// # Thread Safety
//
// Safe for concurrent use.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password *memguard.Enclave
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	m := &SMTPMailer{host: cfg.Host, port: port, username: cfg.Username}
	if cfg.Password != "" {
		m.password = memguard.NewEnclave([]byte(cfg.Password))
	}
	return m, nil
}

// Send delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.username != "" && m.password != nil {
		buf, err := m.password.Open()
		if err != nil {
			return fmt.Errorf("open smtp credentials: %w", err)
		}
		defer buf.Destroy()
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(buf.String()),
		)
	}

	client, err := mail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	out, err := buildMsg(msg)
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail via %s: %w", m.host, err)
	}
	return nil
}

func buildMsg(msg Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(msg.Sender); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.Sender, err)
	}
	if err := out.To(msg.Recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := out.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to %q: %w", msg.ReplyTo, err)
		}
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

// =============================================================================
// Log and Capture Mailers
// =============================================================================

// LogMailer logs messages instead of sending them. Used when mail delivery
// is disabled.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the envelope. The body is not logged.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail delivery disabled, message dropped",
		slog.String("subject", msg.Subject),
		slog.Int("recipients", len(msg.Recipients)),
	)
	return nil
}

// CaptureMailer records messages in memory.
type CaptureMailer struct {
	mu   sync.Mutex
	sent []Message

	// Err, when set, is returned by Send and nothing is recorded.
	Err error
}

// Send records msg.
func (m *CaptureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *CaptureMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
	_ Mailer = (*CaptureMailer)(nil)
)
