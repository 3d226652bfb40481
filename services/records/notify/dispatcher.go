// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify validates abuse reports and access requests and turns
// them into e-mails.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/store"
)

// ErrNoRecipients is returned when an access request has nobody to go to.
var ErrNoRecipients = errors.New("record has no contact address")

// AccountDirectory resolves owner account ids to e-mail addresses.
type AccountDirectory interface {
	AccountEmails(ctx context.Context, ids []int64) ([]string, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Sender is the From address. When empty the requester's address is
	// used.
	Sender string

	// SupportAddress receives abuse reports.
	SupportAddress string
}

// Dispatcher validates notification forms and delivers them.
//
// # Description
//
// Each call validates the body, composes the message and hands it to the
// Mailer once. Delivery failures are returned to the caller and not
// retried.
//
// # Thread Safety
//
// Safe for concurrent use. SetSupportAddress may be called while requests
// are in flight.
type Dispatcher struct {
	mailer   Mailer
	accounts AccountDirectory
	sender   string
	support  atomic.Pointer[string]
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(mailer Mailer, accounts AccountDirectory, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		mailer:   mailer,
		accounts: accounts,
		sender:   cfg.Sender,
		logger:   slog.Default(),
	}
	d.SetSupportAddress(cfg.SupportAddress)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetSupportAddress replaces the abuse report recipient.
func (d *Dispatcher) SetSupportAddress(addr string) {
	addr = strings.TrimSpace(addr)
	d.support.Store(&addr)
}

// SupportAddress returns the current abuse report recipient.
func (d *Dispatcher) SupportAddress() string {
	if p := d.support.Load(); p != nil {
		return *p
	}
	return ""
}

// ReportAbuse validates an abuse report about the record at link and mails
// it to the support address.
//
// # Outputs
//
//   - *ValidationError: missing field or not exactly one reason set.
//   - ErrNoRecipients: no support address is configured.
//   - other: delivery failure.
func (d *Dispatcher) ReportAbuse(ctx context.Context, link string, body []byte) error {
	report, reason, err := DecodeAbuseReport(body)
	if err != nil {
		d.metrics.RecordNotification(observability.NotificationAbuse, observability.NotificationInvalid)
		return err
	}

	support := d.SupportAddress()
	if support == "" {
		d.metrics.RecordNotification(observability.NotificationAbuse, observability.NotificationFailed)
		return fmt.Errorf("abuse report: %w", ErrNoRecipients)
	}

	requester := str(report.Email)
	msg := Message{
		Subject:    SubjectAbuse,
		Sender:     d.from(requester),
		ReplyTo:    requester,
		Recipients: []string{support},
		Body:       ComposeAbuseBody(link, reason, report),
	}
	return d.send(ctx, observability.NotificationAbuse, msg)
}

// RequestAccess validates an access request for the record at link and
// mails it to the record's contact address, or to its owners when no
// contact_email is set.
func (d *Dispatcher) RequestAccess(ctx context.Context, link string, data map[string]any, body []byte) error {
	req, err := DecodeAccessRequest(body)
	if err != nil {
		d.metrics.RecordNotification(observability.NotificationAccessRequest, observability.NotificationInvalid)
		return err
	}

	recipients, err := d.accessRecipients(ctx, data)
	if err != nil {
		d.metrics.RecordNotification(observability.NotificationAccessRequest, observability.NotificationFailed)
		return err
	}

	requester := str(req.Email)
	msg := Message{
		Subject:    SubjectAccess,
		Sender:     d.from(requester),
		ReplyTo:    requester,
		Recipients: recipients,
		Body:       ComposeAccessBody(link, req),
	}
	return d.send(ctx, observability.NotificationAccessRequest, msg)
}

func (d *Dispatcher) accessRecipients(ctx context.Context, data map[string]any) ([]string, error) {
	if contact, ok := data["contact_email"].(string); ok && strings.TrimSpace(contact) != "" {
		return []string{strings.TrimSpace(contact)}, nil
	}
	owners := store.Owners(data)
	if len(owners) == 0 || d.accounts == nil {
		return nil, fmt.Errorf("access request: %w", ErrNoRecipients)
	}
	emails, err := d.accounts.AccountEmails(ctx, owners)
	if err != nil {
		return nil, fmt.Errorf("look up owner addresses: %w", err)
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("access request: %w", ErrNoRecipients)
	}
	return emails, nil
}

func (d *Dispatcher) from(requester string) string {
	if d.sender != "" {
		return d.sender
	}
	return requester
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg Message) error {
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.metrics.RecordNotification(kind, observability.NotificationFailed)
		d.logger.ErrorContext(ctx, "notification delivery failed",
			slog.String("kind", kind),
			slog.Int("recipients", len(msg.Recipients)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deliver %s notification: %w", kind, err)
	}
	d.metrics.RecordNotification(kind, observability.NotificationSent)
	d.logger.InfoContext(ctx, "notification sent",
		slog.String("kind", kind),
		slog.Int("recipients", len(msg.Recipients)),
	)
	return nil
}
