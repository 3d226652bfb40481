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
	"strconv"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/index"
)

// SearchParams are the list query parameters.
type SearchParams struct {
	Query       string
	Page        int
	Size        int
	Sort        string
	AllVersions bool
	Drafts      bool
}

// Search runs a list query against the endpoint's index.
//
// # Description
//
// Page and Size default to 1 and the endpoint page size. Published
// records are searched unless Drafts is set. Draft search requires an
// authenticated caller, and only admins see drafts they do not own.
//
// # Outputs
//
//   - index.Result: Total and the requested page of hits.
//   - error: ErrBadRequest, ErrMaxResultWindow, ErrUnauthorized,
//     ErrForbidden, or an index error.
func (r *Resource) Search(ctx context.Context, user *extensions.AuthInfo, p SearchParams) (index.Result, error) {
	if err := r.authorize(ctx, extensions.AuthzRequest{User: user, Action: extensions.ActionList}); err != nil {
		return index.Result{}, err
	}

	if p.Page == 0 {
		p.Page = 1
	}
	if p.Size == 0 {
		p.Size = r.ep.DefaultPageSize
	}
	if p.Page < 1 || p.Size < 1 {
		return index.Result{}, fmt.Errorf("%w: page and size must be positive", ErrBadRequest)
	}
	// page*size > window without the multiplication overflowing
	if p.Page > r.ep.MaxResultWindow/p.Size {
		return index.Result{}, fmt.Errorf("%w: page * size must not exceed %d", ErrMaxResultWindow, r.ep.MaxResultWindow)
	}

	q := index.Query{
		Index:       r.ep.SearchIndex,
		Text:        p.Query,
		Page:        p.Page,
		Size:        p.Size,
		Sort:        p.Sort,
		AllVersions: p.AllVersions,
	}
	if p.Drafts {
		if err := r.draftScope(user, &q); err != nil {
			return index.Result{}, err
		}
	}

	res, err := r.deps.Search.Search(ctx, q)
	if errors.Is(err, index.ErrInvalidSort) {
		return index.Result{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err != nil {
		return index.Result{}, fmt.Errorf("search %s: %w", q.Index, err)
	}
	return res, nil
}

func (r *Resource) draftScope(user *extensions.AuthInfo, q *index.Query) error {
	if r.ep.DraftsIndex == "" {
		return fmt.Errorf("%w: drafts are not searchable on this endpoint", ErrBadRequest)
	}
	if user == nil {
		return ErrUnauthorized
	}
	q.Index = r.ep.DraftsIndex
	q.AllVersions = true
	if user.HasRole(extensions.RoleAdmin) {
		return nil
	}
	owner, err := strconv.ParseInt(user.UserID, 10, 64)
	if err != nil {
		return ErrForbidden
	}
	q.Owner = owner
	return nil
}
