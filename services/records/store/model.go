// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"errors"
	"time"
)

// Errors returned by the store.
var (
	// ErrNotFound indicates the identifier, record or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionMismatch indicates the record changed since the caller read
	// its version token.
	ErrVersionMismatch = errors.New("record version mismatch")

	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("already exists")
)

// Status is the lifecycle state of a persistent identifier.
type Status string

const (
	StatusNew        Status = "N"
	StatusReserved   Status = "K"
	StatusRegistered Status = "R"
	StatusRedirected Status = "M"
	StatusDeleted    Status = "D"
)

// ObjectTypeRecord is the object_type of identifiers assigned to records.
const ObjectTypeRecord = "rec"

// RelationVersion is the relation_type of lineage memberships.
const RelationVersion = 0

// Identifier is a row of pidstore_pid.
type Identifier struct {
	ID         int64
	PIDType    string
	PIDValue   string
	Status     Status
	ObjectType string
	ObjectUUID string

	// RedirectID is the target identifier id, 0 when not redirected.
	RedirectID int64

	Created time.Time
	Updated time.Time
}

// IsRegistered reports whether the identifier points at a live object.
func (i Identifier) IsRegistered() bool { return i.Status == StatusRegistered }

// IsDeleted reports whether the identifier is a tombstone.
func (i Identifier) IsDeleted() bool { return i.Status == StatusDeleted }

// IsRedirected reports whether the identifier redirects elsewhere.
func (i Identifier) IsRedirected() bool { return i.Status == StatusRedirected }

// Record is a row of records_metadata.
type Record struct {
	ID string

	// Data is the decoded metadata document, nil when Deleted.
	Data map[string]any

	Created time.Time
	Updated time.Time

	// VersionID is the optimistic concurrency token.
	VersionID int

	Deleted bool
}

// Version is one member of a lineage, joined with its record timestamps.
type Version struct {
	Identifier Identifier
	Created    time.Time
	Updated    time.Time
}

// Account is a row of accounts_user.
type Account struct {
	ID      int64
	Email   string
	Active  bool
	Roles   []string
	Created time.Time
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
