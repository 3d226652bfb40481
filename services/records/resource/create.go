// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resource

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/store"
)

// versionUniqueFields are not carried over when a version copies the
// metadata of its predecessor.
var versionUniqueFields = []string{
	"_pid", "_deposit", "_files", "_oai", "_internal",
	"publication_state", "DOI", "ePIC_PID",
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	// ContentType is the request Content-Type header.
	ContentType string

	// Body is the raw request body.
	Body []byte

	// VersionOf is the pid value of the version to branch from. Empty
	// starts a new lineage.
	VersionOf string
}

// Create mints an identifier and stores a new record.
//
// # Description
//
// The content type must have a registered loader. With VersionOf set the
// target must be a concrete version; an empty body then copies the
// previous metadata minus version-unique fields. The create permission is
// checked against the candidate data before anything is written. The
// identifier, record and lineage membership are stored in one
// transaction.
//
// # Outputs
//
//   - Item: The created identifier and record.
//   - error: ErrUnsupportedMediaType, ErrVersioningTargetNotFound,
//     ErrIncorrectVersioningTarget, ErrBadRequest, ErrUnauthorized,
//     ErrForbidden, or a store error.
func (r *Resource) Create(ctx context.Context, user *extensions.AuthInfo, req CreateRequest) (Item, error) {
	ctx, span := observability.StartSpan(ctx, "resource.Create")
	defer span.End()

	item, err := r.create(ctx, user, req)
	meta := map[string]any{}
	if req.VersionOf != "" {
		meta["version_of"] = req.VersionOf
	}
	r.auditEvent(ctx, "record.create", extensions.ActionCreate, user, item.PID.PIDValue, err, meta)
	if err != nil {
		observability.RecordError(span, err)
		return Item{}, err
	}
	r.metrics.RecordOperation(r.ep.PIDType, "create")
	r.logger.InfoContext(ctx, "record created",
		slog.String("pid_type", r.ep.PIDType),
		slog.String("pid_value", item.PID.PIDValue),
		slog.String("version_of", req.VersionOf),
	)
	observability.SetSpanOK(span)
	return item, nil
}

func (r *Resource) create(ctx context.Context, user *extensions.AuthInfo, req CreateRequest) (Item, error) {
	load, err := r.ep.loader(req.ContentType)
	if err != nil {
		return Item{}, err
	}

	var (
		previous  *Item
		data      map[string]any
		versionOf int64
	)
	if req.VersionOf != "" {
		prevPID, prevRec, err := r.deps.Resolver.Resolve(ctx, req.VersionOf)
		switch {
		case errors.Is(err, pid.ErrNotFound):
			return Item{}, fmt.Errorf("%w: %s", ErrVersioningTargetNotFound, req.VersionOf)
		case errors.Is(err, pid.ErrRedirected):
			return Item{}, fmt.Errorf("%w: %s", ErrIncorrectVersioningTarget, req.VersionOf)
		case err != nil:
			return Item{}, fmt.Errorf("resolve version_of: %w", err)
		}
		previous = &Item{PID: prevPID, Record: prevRec}
		versionOf = prevPID.ID
		if len(req.Body) == 0 {
			data = copyFromPrevious(prevRec.Data)
		}
	}

	if data == nil {
		data, err = load(req.Body)
		if err != nil {
			return Item{}, err
		}
		if data == nil {
			return Item{}, fmt.Errorf("%w: request body holds no record data", ErrBadRequest)
		}
	}

	authz := extensions.AuthzRequest{User: user, Action: extensions.ActionCreate, Record: data}
	if previous != nil {
		authz.Previous = previous.Record.Data
	}
	if err := r.authorize(ctx, authz); err != nil {
		return Item{}, err
	}

	recordID := r.newUUID()
	pidValue := hex.EncodeToString(recordID[:])
	mint(data, r.ep.PIDType, pidValue, user)

	change, err := r.deps.Store.CreateRecord(ctx, store.CreateParams{
		PIDType:   r.ep.PIDType,
		PIDValue:  pidValue,
		RecordID:  recordID.String(),
		Data:      data,
		VersionOf: versionOf,
	})
	if err != nil {
		return Item{}, err
	}
	return Item{PID: change.Identifier, Record: change.Record}, nil
}

// copyFromPrevious returns a shallow copy of data without version-unique
// fields. A soft-deleted predecessor yields an empty document.
func copyFromPrevious(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	maps.Copy(out, data)
	for _, f := range versionUniqueFields {
		delete(out, f)
	}
	return out
}

// mint stamps the identifier and deposit block into data.
func mint(data map[string]any, pidType, pidValue string, user *extensions.AuthInfo) {
	owners := []any{}
	if user != nil {
		if id, err := strconv.ParseInt(user.UserID, 10, 64); err == nil {
			owners = append(owners, id)
		}
	}
	data["_pid"] = []any{map[string]any{"type": pidType, "value": pidValue}}
	data["_deposit"] = map[string]any{"id": pidValue, "owners": owners}
}
