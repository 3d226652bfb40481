// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"slices"
)

// ErrUnauthorized is returned by an AuthProvider when a presented token is
// invalid. A missing token is not an error: providers return a nil AuthInfo
// and the request continues anonymously.
var ErrUnauthorized = errors.New("unauthorized")

// Well-known roles.
const (
	RoleAdmin = "admin"
)

// Permission actions evaluated by the records service.
const (
	ActionList   = "list"
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// AuthInfo describes an authenticated account.
type AuthInfo struct {
	// UserID is the account id as a decimal string. Never empty.
	UserID string

	// Email is the account's e-mail address.
	Email string

	// Roles contains role memberships, e.g. "admin".
	Roles []string
}

// HasRole reports whether the account holds role.
func (a *AuthInfo) HasRole(role string) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Roles, role)
}

// AuthProvider validates bearer tokens.
//
// # Description
//
// Validate maps a token to the account it belongs to. The empty token is the
// anonymous caller: implementations return (nil, nil) for it so that
// permission checks can tell "not logged in" (401) apart from "not allowed"
// (403).
//
// # Outputs
//
//   - *AuthInfo: The account, or nil for anonymous callers
//   - error: ErrUnauthorized (or wrapped) for unknown or revoked tokens
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest is the input of a permission check.
type AuthzRequest struct {
	// User is the caller. Nil for anonymous requests.
	User *AuthInfo

	// Action is one of the Action* constants.
	Action string

	// ResourceType names the endpoint, e.g. "b2rec".
	ResourceType string

	// ResourceID is the persistent identifier value, empty on create and list.
	ResourceID string

	// Record is the record metadata the action applies to. On create it is
	// the candidate data that has not been persisted yet.
	Record map[string]any

	// Previous is the metadata of the version a new record branches from.
	// Nil unless the request creates a new version.
	Previous map[string]any
}

// Permission is a capability check strategy injected per endpoint and action.
//
// # Description
//
// Can answers whether req.User may perform req.Action. It never returns an
// error: a check that cannot be evaluated must answer false.
type Permission interface {
	Can(ctx context.Context, req AuthzRequest) bool
}

// PermissionFunc adapts a plain function to Permission.
type PermissionFunc func(ctx context.Context, req AuthzRequest) bool

// Can calls f.
func (f PermissionFunc) Can(ctx context.Context, req AuthzRequest) bool {
	return f(ctx, req)
}

// NopAuthProvider treats every caller as anonymous.
type NopAuthProvider struct{}

// Validate always returns a nil AuthInfo.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return nil, nil
}

// AllowAll permits every action.
var AllowAll Permission = PermissionFunc(func(context.Context, AuthzRequest) bool { return true })

// DenyAll refuses every action.
var DenyAll Permission = PermissionFunc(func(context.Context, AuthzRequest) bool { return false })

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ Permission   = PermissionFunc(nil)
)
