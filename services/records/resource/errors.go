// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resource

import "errors"

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrBadRequest means the request could not be interpreted.
	ErrBadRequest = errors.New("bad request")

	// ErrUnsupportedMediaType means no loader handles the content type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrUnauthorized means an anonymous caller failed a permission check.
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden means an authenticated caller failed a permission check.
	ErrForbidden = errors.New("permission denied")

	// ErrMethodNotAllowed is returned for record updates.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrPreconditionFailed means the If-Match token is missing or stale.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrVersioningTargetNotFound means version_of names no record.
	ErrVersioningTargetNotFound = errors.New("the record to version does not exist")

	// ErrIncorrectVersioningTarget means version_of names a lineage root
	// instead of a concrete version.
	ErrIncorrectVersioningTarget = errors.New("version_of must name a record version, not its version group")

	// ErrMaxResultWindow means page*size exceeds the endpoint's window.
	ErrMaxResultWindow = errors.New("maximum number of results has been reached")
)
