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

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/versioning"
)

// ReportAbuse forwards an abuse report about the record at value. link is
// the record URL quoted in the message.
func (r *Resource) ReportAbuse(ctx context.Context, user *extensions.AuthInfo, value, link string, body []byte) error {
	if _, _, err := r.deps.Resolver.Resolve(ctx, value); err != nil {
		return err
	}
	if r.deps.Notifier == nil {
		return errors.New("notifications are not configured")
	}
	err := r.deps.Notifier.ReportAbuse(ctx, link, body)
	r.auditEvent(ctx, "notify.abuse", "", user, value, err, nil)
	return err
}

// RequestAccess forwards a data access request to the record's contact.
func (r *Resource) RequestAccess(ctx context.Context, user *extensions.AuthInfo, value, link string, body []byte) error {
	_, rec, err := r.deps.Resolver.Resolve(ctx, value)
	if err != nil {
		return err
	}
	if r.deps.Notifier == nil {
		return errors.New("notifications are not configured")
	}
	err = r.deps.Notifier.RequestAccess(ctx, link, rec.Data, body)
	r.auditEvent(ctx, "notify.access", "", user, value, err, nil)
	return err
}

// Versions lists the lineage of value. urlFor renders each version's URL.
func (r *Resource) Versions(ctx context.Context, value string, urlFor func(pidValue string) string) ([]versioning.Version, error) {
	return r.deps.Versions.ListVersions(ctx, value, urlFor)
}
