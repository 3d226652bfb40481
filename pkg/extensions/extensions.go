// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable collaborators of the records
// service: authentication, per-action permissions and audit logging.
//
// Deployments swap implementations through ServiceOptions without touching
// the service code:
//
//	opts := extensions.DefaultOptions().
//	    WithAuth(tokenProvider).
//	    WithAudit(&extensions.SlogAuditLogger{})
//	svc, err := records.New(cfg, &opts)
package extensions

// ServiceOptions carries the extension implementations.
//
// Nil fields are replaced by the DefaultOptions value when the service
// starts.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	// Default: NopAuthProvider (every caller is anonymous)
	AuthProvider AuthProvider

	// Permissions overrides the permission strategy for an action, keyed by
	// the Action* constants. Actions missing here use the endpoint default
	// policy.
	Permissions map[string]Permission

	// AuditLogger records record and notification events.
	// Default: NopAuditLogger
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		Permissions:  map[string]Permission{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithPermission returns a copy of opts with p installed for action.
func (opts ServiceOptions) WithPermission(action string, p Permission) ServiceOptions {
	perms := make(map[string]Permission, len(opts.Permissions)+1)
	for k, v := range opts.Permissions {
		perms[k] = v
	}
	perms[action] = p
	opts.Permissions = perms
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// Normalize fills nil fields with defaults.
func (opts ServiceOptions) Normalize() ServiceOptions {
	def := DefaultOptions()
	if opts.AuthProvider == nil {
		opts.AuthProvider = def.AuthProvider
	}
	if opts.Permissions == nil {
		opts.Permissions = def.Permissions
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = def.AuditLogger
	}
	return opts
}
