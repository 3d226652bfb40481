// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package versioning reads record lineages.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/store"
)

// Version is one entry of a lineage listing.
type Version struct {
	// Number is the 1-based rank in creation order. It is derived on every
	// call and never stored.
	Number  int
	PID     string
	URL     string
	Created time.Time
	Updated time.Time
}

// Backend is the lineage lookup the reader needs. *store.Store implements it.
type Backend interface {
	IdentifierByValue(ctx context.Context, pidType, value string) (store.Identifier, error)
	VersionParent(ctx context.Context, childID int64) (store.Identifier, error)
	VersionChildren(ctx context.Context, parentID int64) ([]store.Version, error)
}

// Reader lists the versions of records of one pid type.
type Reader struct {
	backend Backend
	pidType string
}

// NewReader creates a Reader for pidType.
func NewReader(backend Backend, pidType string) *Reader {
	return &Reader{backend: backend, pidType: pidType}
}

// ListVersions returns the lineage of value, oldest first.
//
// # Description
//
// value may name a concrete version or the lineage root itself; the status
// of the identifier is not checked. Versions created at the same instant
// are ordered by identifier value. Tombstoned versions are listed.
//
// # Inputs
//
//   - value: Identifier value.
//   - urlFor: Builds the item URL of a version from its identifier value.
//
// # Outputs
//
//   - []Version: Never nil. Empty when the root has no members.
//   - error: pid.ErrNotFound for unknown values.
func (r *Reader) ListVersions(ctx context.Context, value string, urlFor func(pidValue string) string) ([]Version, error) {
	ident, err := r.backend.IdentifierByValue(ctx, r.pidType, value)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s:%s: %w", r.pidType, value, pid.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	root := ident
	parent, err := r.backend.VersionParent(ctx, ident.ID)
	switch {
	case err == nil:
		root = parent
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("list versions: %w", err)
	}

	children, err := r.backend.VersionChildren(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	versions := make([]Version, 0, len(children))
	for i, child := range children {
		v := Version{
			Number:  i + 1,
			PID:     child.Identifier.PIDValue,
			Created: child.Created,
			Updated: child.Updated,
		}
		if urlFor != nil {
			v.URL = urlFor(child.Identifier.PIDValue)
		}
		versions = append(versions, v)
	}
	return versions, nil
}
