// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/eudat/b2share/services/records/index"
	"github.com/eudat/b2share/services/records/resource"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine readable error code.
	Code string `json:"code,omitempty"`
}

// MessageResponse acknowledges a notification.
type MessageResponse struct {
	Message string `json:"message"`
}

// RecordResponse is a serialized record.
type RecordResponse struct {
	ID       string            `json:"id"`
	Created  strfmt.DateTime   `json:"created"`
	Updated  strfmt.DateTime   `json:"updated"`
	Metadata map[string]any    `json:"metadata"`
	Links    map[string]string `json:"links"`
}

// SearchHits holds one page of search results.
type SearchHits struct {
	Hits  []RecordResponse `json:"hits"`
	Total int              `json:"total"`
}

// SearchResponse is the list endpoint response.
type SearchResponse struct {
	Hits  SearchHits        `json:"hits"`
	Links map[string]string `json:"links"`
}

// VersionResponse is one entry of a version listing.
type VersionResponse struct {
	Version int             `json:"version"`
	ID      string          `json:"id"`
	URL     string          `json:"url"`
	Created strfmt.DateTime `json:"created"`
	Updated strfmt.DateTime `json:"updated"`
}

// VersionsResponse is the version listing response.
type VersionsResponse struct {
	Versions []VersionResponse `json:"versions"`
}

// =============================================================================
// Links
// =============================================================================

// Links renders the URLs of one endpoint.
type Links struct {
	// BaseURL is prepended to every route, e.g. "https://b2share.eu/api".
	// Empty yields host-relative links.
	BaseURL string

	ListRoute     string
	ItemRoute     string
	VersionsRoute string
}

func fill(route, pidValue string) string {
	return strings.Replace(route, ":pid_value", url.PathEscape(pidValue), 1)
}

// Item returns the URL of a record.
func (l Links) Item(pidValue string) string {
	return strings.TrimSuffix(l.BaseURL, "/") + fill(l.ItemRoute, pidValue)
}

// Versions returns the version listing URL of a record.
func (l Links) Versions(pidValue string) string {
	return strings.TrimSuffix(l.BaseURL, "/") + fill(l.VersionsRoute, pidValue)
}

// List returns the list URL with the given query.
func (l Links) List(query url.Values) string {
	u := strings.TrimSuffix(l.BaseURL, "/") + l.ListRoute
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (l Links) record(pidValue string) map[string]string {
	links := map[string]string{"self": l.Item(pidValue)}
	if l.VersionsRoute != "" {
		links["versions"] = l.Versions(pidValue)
	}
	return links
}

// =============================================================================
// Serializers
// =============================================================================

func toDateTime(t time.Time) strfmt.DateTime {
	return strfmt.DateTime(t.UTC())
}

func serializeItem(item resource.Item, links Links) RecordResponse {
	return RecordResponse{
		ID:       item.PID.PIDValue,
		Created:  toDateTime(item.Record.Created),
		Updated:  toDateTime(item.Record.Updated),
		Metadata: item.Record.Data,
		Links:    links.record(item.PID.PIDValue),
	}
}

func serializeHit(doc index.Document, links Links) RecordResponse {
	return RecordResponse{
		ID:       doc.PID,
		Created:  toDateTime(doc.Created),
		Updated:  toDateTime(doc.Updated),
		Metadata: doc.Metadata,
		Links:    links.record(doc.PID),
	}
}
