// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/store"
)

// ETag renders a version token as a quoted entity tag.
func ETag(versionID int) string {
	return `"` + strconv.Itoa(versionID) + `"`
}

// ParseETag reads a version token from an If-Match value. Quoted, bare and
// weak forms are accepted.
func ParseETag(v string) (int, bool) {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Get resolves value and checks the read permission.
//
// # Outputs
//
//   - Item: The registered identifier and its record.
//   - error: pid.ErrNotFound (also for tombstones), *pid.RedirectedError,
//     ErrUnauthorized or ErrForbidden.
func (r *Resource) Get(ctx context.Context, user *extensions.AuthInfo, value string) (Item, error) {
	ident, rec, err := r.deps.Resolver.Resolve(ctx, value)
	if err != nil {
		return Item{}, err
	}
	if err := r.authorize(ctx, extensions.AuthzRequest{
		User: user, Action: extensions.ActionRead, ResourceID: value, Record: rec.Data,
	}); err != nil {
		return Item{}, err
	}
	return Item{PID: ident, Record: rec}, nil
}

// Update always fails. Published records are immutable; changes go
// through a new version.
func (r *Resource) Update(context.Context, *extensions.AuthInfo, string) error {
	return ErrMethodNotAllowed
}

// Delete soft-deletes the record behind value.
//
// # Description
//
// ifMatch must carry the record's current version token, otherwise the
// call fails with ErrPreconditionFailed before anything else is checked.
// The delete permission is checked next. The store re-checks the token in
// its transaction, so a concurrent writer also yields
// ErrPreconditionFailed.
//
// # Outputs
//
//   - error: pid.ErrNotFound, *pid.RedirectedError, ErrPreconditionFailed,
//     ErrUnauthorized, ErrForbidden, or a store error.
func (r *Resource) Delete(ctx context.Context, user *extensions.AuthInfo, value, ifMatch string) error {
	ctx, span := observability.StartSpan(ctx, "resource.Delete")
	defer span.End()

	err := r.delete(ctx, user, value, ifMatch)
	r.auditEvent(ctx, "record.delete", extensions.ActionDelete, user, value, err, nil)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	r.metrics.RecordOperation(r.ep.PIDType, "delete")
	r.logger.InfoContext(ctx, "record deleted",
		slog.String("pid_type", r.ep.PIDType),
		slog.String("pid_value", value),
	)
	observability.SetSpanOK(span)
	return nil
}

func (r *Resource) delete(ctx context.Context, user *extensions.AuthInfo, value, ifMatch string) error {
	_, rec, err := r.deps.Resolver.Resolve(ctx, value)
	if err != nil {
		return err
	}

	token, ok := ParseETag(ifMatch)
	if !ok {
		return fmt.Errorf("%w: If-Match header with the record version is required", ErrPreconditionFailed)
	}
	if token != rec.VersionID {
		return fmt.Errorf("%w: record is at version %d", ErrPreconditionFailed, rec.VersionID)
	}

	if err := r.authorize(ctx, extensions.AuthzRequest{
		User: user, Action: extensions.ActionDelete, ResourceID: value, Record: rec.Data,
	}); err != nil {
		return err
	}

	_, err = r.deps.Store.DeleteRecord(ctx, r.ep.PIDType, value, token)
	switch {
	case errors.Is(err, store.ErrVersionMismatch):
		return fmt.Errorf("%w: record changed concurrently", ErrPreconditionFailed)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", value, pid.ErrNotFound)
	}
	return err
}
