// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// AuditEvent is a security relevant action on a record.
type AuditEvent struct {
	// EventType is "category.action", e.g. "record.create", "record.delete",
	// "notify.abuse", "notify.access".
	EventType string

	// Timestamp is when the event occurred. Zero means now.
	Timestamp time.Time

	// UserID is the acting account, "anonymous" when unknown.
	UserID string

	// Action is the permission action (see Action* constants).
	Action string

	// ResourceType is the endpoint pid type.
	ResourceType string

	// ResourceID is the persistent identifier value.
	ResourceID string

	// Outcome is one of the Outcome* constants.
	Outcome string

	// Metadata holds event specific details (e.g. "version_of", "error").
	Metadata map[string]any
}

// AuditLogger records AuditEvents.
//
// # Description
//
// Log is called after the outcome of an action is known. Implementations must
// not block request handling for long and must be safe for concurrent use.
// A Log failure is never surfaced to the client.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

// Log does nothing.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// SlogAuditLogger writes events as structured log lines.
type SlogAuditLogger struct {
	Logger *slog.Logger
}

// Log emits one INFO line per event under the "audit" message.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	user := event.UserID
	if user == "" {
		user = "anonymous"
	}
	logger.InfoContext(ctx, "audit",
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", ts),
		slog.String("user_id", user),
		slog.String("action", event.Action),
		slog.String("resource_type", event.ResourceType),
		slog.String("resource_id", event.ResourceID),
		slog.String("outcome", event.Outcome),
		slog.Any("metadata", event.Metadata),
	)
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
