// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resource implements the record REST operations of one endpoint.
//
// # Description
//
// A Resource ties an Endpoint to its collaborators: the identifier
// resolver, the relational store, the search index and the notification
// dispatcher. Operations take the caller's *extensions.AuthInfo (nil for
// anonymous callers) and return store values or sentinel errors. HTTP
// concerns live in the handlers package.
//
// # Thread Safety
//
// A Resource is safe for concurrent use.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/index"
	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/store"
	"github.com/eudat/b2share/services/records/versioning"
)

// =============================================================================
// Collaborators
// =============================================================================

// Resolver resolves identifier values of the endpoint's pid type.
type Resolver interface {
	Resolve(ctx context.Context, value string, opts ...pid.ResolveOption) (store.Identifier, store.Record, error)
}

// Writer persists records. *store.Store implements it.
type Writer interface {
	CreateRecord(ctx context.Context, p store.CreateParams) (store.Change, error)
	DeleteRecord(ctx context.Context, pidType, value string, versionID int) (store.Change, error)
}

// Searcher queries the search index. *index.Index implements it.
type Searcher interface {
	Search(ctx context.Context, q index.Query) (index.Result, error)
}

// Notifier sends abuse reports and access requests.
type Notifier interface {
	ReportAbuse(ctx context.Context, link string, body []byte) error
	RequestAccess(ctx context.Context, link string, data map[string]any, body []byte) error
}

// VersionLister lists a record's lineage.
type VersionLister interface {
	ListVersions(ctx context.Context, value string, urlFor func(pidValue string) string) ([]versioning.Version, error)
}

// Deps bundles the collaborators of a Resource.
type Deps struct {
	Resolver Resolver
	Store    Writer
	Search   Searcher
	Notifier Notifier
	Versions VersionLister
}

// Item is a resolved record with its identifier.
type Item struct {
	PID    store.Identifier
	Record store.Record
}

// =============================================================================
// Resource
// =============================================================================

// Resource serves the record operations of one Endpoint.
type Resource struct {
	ep      Endpoint
	deps    Deps
	perms   map[string]extensions.Permission
	audit   extensions.AuditLogger
	metrics *observability.Metrics
	logger  *slog.Logger
	newUUID func() uuid.UUID
}

// Option configures a Resource.
type Option func(*Resource)

// WithPermissions overrides the default permission of the given actions.
func WithPermissions(perms map[string]extensions.Permission) Option {
	return func(r *Resource) {
		for action, p := range perms {
			if p != nil {
				r.perms[action] = p
			}
		}
	}
}

// WithAudit sets the audit logger.
func WithAudit(a extensions.AuditLogger) Option {
	return func(r *Resource) {
		if a != nil {
			r.audit = a
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resource) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resource) { r.logger = l }
}

// withUUIDSource replaces the record id generator in tests.
func withUUIDSource(f func() uuid.UUID) Option {
	return func(r *Resource) { r.newUUID = f }
}

// New creates a Resource for ep.
func New(ep Endpoint, deps Deps, opts ...Option) *Resource {
	r := &Resource{
		ep:      ep.normalize(),
		deps:    deps,
		perms:   DefaultPermissions(),
		audit:   &extensions.NopAuditLogger{},
		logger:  slog.Default(),
		newUUID: uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint returns the normalized endpoint configuration.
func (r *Resource) Endpoint() Endpoint { return r.ep }

// =============================================================================
// Permissions
// =============================================================================

// DefaultPermissions returns the built-in policy: anyone may list and read,
// authenticated accounts may create, and only owners or admins may delete.
// Updates are never allowed.
func DefaultPermissions() map[string]extensions.Permission {
	return map[string]extensions.Permission{
		extensions.ActionList:   extensions.AllowAll,
		extensions.ActionRead:   extensions.AllowAll,
		extensions.ActionCreate: extensions.PermissionFunc(authenticated),
		extensions.ActionUpdate: extensions.DenyAll,
		extensions.ActionDelete: extensions.PermissionFunc(ownerOrAdmin),
	}
}

func authenticated(_ context.Context, req extensions.AuthzRequest) bool {
	return req.User != nil
}

func ownerOrAdmin(_ context.Context, req extensions.AuthzRequest) bool {
	if req.User == nil {
		return false
	}
	if req.User.HasRole(extensions.RoleAdmin) {
		return true
	}
	id, err := strconv.ParseInt(req.User.UserID, 10, 64)
	if err != nil {
		return false
	}
	return slices.Contains(store.Owners(req.Record), id)
}

// authorize runs the permission of req.Action. A refusal is ErrUnauthorized
// for anonymous callers and ErrForbidden otherwise.
func (r *Resource) authorize(ctx context.Context, req extensions.AuthzRequest) error {
	req.ResourceType = r.ep.PIDType
	p, ok := r.perms[req.Action]
	if ok && p.Can(ctx, req) {
		return nil
	}
	if req.User == nil {
		return ErrUnauthorized
	}
	return ErrForbidden
}

// =============================================================================
// Audit
// =============================================================================

func (r *Resource) auditEvent(ctx context.Context, eventType, action string, user *extensions.AuthInfo, pidValue string, err error, meta map[string]any) {
	ev := extensions.AuditEvent{
		EventType:    eventType,
		Action:       action,
		ResourceType: r.ep.PIDType,
		ResourceID:   pidValue,
		Outcome:      extensions.OutcomeSuccess,
		Metadata:     meta,
	}
	if user != nil {
		ev.UserID = user.UserID
	}
	if err != nil {
		ev.Outcome = extensions.OutcomeFailure
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
			ev.Outcome = extensions.OutcomeDenied
		}
		if ev.Metadata == nil {
			ev.Metadata = map[string]any{}
		}
		ev.Metadata["error"] = err.Error()
	}
	if aerr := r.audit.Log(ctx, ev); aerr != nil {
		r.logger.WarnContext(ctx, "audit log failed",
			slog.String("event_type", eventType),
			slog.String("error", aerr.Error()),
		)
	}
}
