// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pid resolves persistent identifier values to records.
package pid

import (
	"context"
	"errors"
	"fmt"

	"github.com/eudat/b2share/services/records/store"
)

// Resolution errors.
var (
	// ErrNotFound means no registered identifier matches the value.
	ErrNotFound = errors.New("persistent identifier not found")

	// ErrDeleted means the identifier is a tombstone. It matches ErrNotFound.
	ErrDeleted = fmt.Errorf("%w: identifier deleted", ErrNotFound)

	// ErrRedirected means the identifier points at another identifier.
	// The concrete error is a *RedirectedError.
	ErrRedirected = errors.New("persistent identifier redirected")
)

// RedirectedError carries the redirected identifier and its target.
type RedirectedError struct {
	PID    store.Identifier
	Target store.Identifier
}

func (e *RedirectedError) Error() string {
	return fmt.Sprintf("persistent identifier %s:%s redirected to %s",
		e.PID.PIDType, e.PID.PIDValue, e.Target.PIDValue)
}

// Is makes errors.Is(err, ErrRedirected) succeed.
func (e *RedirectedError) Is(target error) bool {
	return target == ErrRedirected
}

// Backend is the identifier and record lookup the resolver needs.
// *store.Store implements it.
type Backend interface {
	IdentifierByValue(ctx context.Context, pidType, value string) (store.Identifier, error)
	IdentifierByID(ctx context.Context, id int64) (store.Identifier, error)
	Record(ctx context.Context, id string) (store.Record, error)
}

// ResolveOption modifies a single Resolve call.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	includeDeleted bool
}

// IncludeDeleted makes tombstoned identifiers and their soft-deleted records
// resolvable.
func IncludeDeleted() ResolveOption {
	return func(o *resolveOptions) { o.includeDeleted = true }
}

// Resolver maps identifier values of one pid type to records.
//
// # Thread Safety
//
// Safe for concurrent use if the Backend is.
type Resolver struct {
	backend Backend
	pidType string
}

// NewResolver creates a Resolver bound to pidType.
func NewResolver(backend Backend, pidType string) *Resolver {
	return &Resolver{backend: backend, pidType: pidType}
}

// PIDType returns the identifier type the resolver is bound to.
func (r *Resolver) PIDType() string { return r.pidType }

// Resolve maps value to its identifier and record.
//
// # Description
//
// Registered identifiers return their record. Redirected identifiers, such
// as a lineage root, fail with *RedirectedError. Unregistered identifiers
// fail with ErrNotFound, and tombstones fail with ErrDeleted unless
// IncludeDeleted is passed.
//
// # Outputs
//
//   - store.Identifier: The identifier in its current status.
//   - store.Record: The bound record. Data is nil for soft-deleted records.
//   - error: ErrNotFound, ErrDeleted, *RedirectedError, or a backend error.
func (r *Resolver) Resolve(ctx context.Context, value string, opts ...ResolveOption) (store.Identifier, store.Record, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	ident, err := r.backend.IdentifierByValue(ctx, r.pidType, value)
	if errors.Is(err, store.ErrNotFound) {
		return store.Identifier{}, store.Record{}, fmt.Errorf("%s:%s: %w", r.pidType, value, ErrNotFound)
	}
	if err != nil {
		return store.Identifier{}, store.Record{}, fmt.Errorf("resolve %s:%s: %w", r.pidType, value, err)
	}

	switch {
	case ident.IsRegistered():
	case ident.IsDeleted():
		if !o.includeDeleted || ident.ObjectType != store.ObjectTypeRecord {
			return ident, store.Record{}, fmt.Errorf("%s:%s: %w", r.pidType, value, ErrDeleted)
		}
	case ident.IsRedirected():
		target, err := r.backend.IdentifierByID(ctx, ident.RedirectID)
		if err != nil {
			return ident, store.Record{}, fmt.Errorf("resolve redirect of %s:%s: %w", r.pidType, value, err)
		}
		return ident, store.Record{}, &RedirectedError{PID: ident, Target: target}
	default:
		return ident, store.Record{}, fmt.Errorf("%s:%s is not registered: %w", r.pidType, value, ErrNotFound)
	}

	rec, err := r.backend.Record(ctx, ident.ObjectUUID)
	if errors.Is(err, store.ErrNotFound) {
		return ident, store.Record{}, fmt.Errorf("record of %s:%s: %w", r.pidType, value, ErrNotFound)
	}
	if err != nil {
		return ident, store.Record{}, fmt.Errorf("resolve %s:%s: %w", r.pidType, value, err)
	}
	if rec.Deleted && !o.includeDeleted {
		return ident, store.Record{}, fmt.Errorf("%s:%s: %w", r.pidType, value, ErrDeleted)
	}
	return ident, rec, nil
}
