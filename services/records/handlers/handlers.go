// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers of the records service.
package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eudat/b2share/services/records/index"
	"github.com/eudat/b2share/services/records/middleware"
	"github.com/eudat/b2share/services/records/resource"
)

// Response messages of the notification endpoints.
const (
	AbuseReportedMessage = "The record is reported."
	AccessRequestMessage = "An email was sent to the record owner."
)

// Handlers serves one record endpoint.
type Handlers struct {
	res    *resource.Resource
	links  Links
	logger *slog.Logger
}

// NewHandlers creates handlers for res. links renders the endpoint URLs.
func NewHandlers(res *resource.Resource, links Links, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{res: res, links: links, logger: logger}
}

// HandleSearch handles GET {list_route}.
//
// Description:
//
//	Searches the endpoint's index. Drafts are searched in the drafts
//	index instead.
//
// Query Parameters:
//
//	q: Free text query (optional)
//	page: 1-based page (optional, default 1)
//	size: Page size (optional, default 10)
//	sort: bestmatch, mostrecent or oldest (optional)
//	all_versions: Include superseded versions (optional)
//	drafts: Search drafts (optional)
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: Invalid parameters or result window exceeded
//	401 Unauthorized: Anonymous draft search
func (h *Handlers) HandleSearch(c *gin.Context) {
	page, err := intQuery(c, "page")
	if err != nil {
		h.writeError(c, err)
		return
	}
	size, err := intQuery(c, "size")
	if err != nil {
		h.writeError(c, err)
		return
	}
	params := resource.SearchParams{
		Query:       c.Query("q"),
		Page:        page,
		Size:        size,
		Sort:        c.Query("sort"),
		AllVersions: boolQuery(c, "all_versions"),
		Drafts:      boolQuery(c, "drafts"),
	}

	res, err := h.res.Search(c.Request.Context(), middleware.GetAuthInfo(c), params)
	if err != nil {
		h.writeError(c, err)
		return
	}

	hits := make([]RecordResponse, 0, len(res.Hits))
	for _, doc := range res.Hits {
		hits = append(hits, serializeHit(doc, h.links))
	}
	c.JSON(http.StatusOK, SearchResponse{
		Hits:  SearchHits{Hits: hits, Total: res.Total},
		Links: h.pageLinks(c, params, res),
	})
}

// HandleCreate handles POST {list_route}.
//
// Description:
//
//	Creates a record, optionally as a new version of version_of.
//
// Response:
//
//	201 Created: RecordResponse with Location and ETag headers
//	400 Bad Request: Empty or invalid body, bad version_of
//	401/403: Create permission denied
//	415 Unsupported Media Type: No loader for the content type
func (h *Handlers) HandleCreate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, err)
		return
	}
	item, err := h.res.Create(c.Request.Context(), middleware.GetAuthInfo(c), resource.CreateRequest{
		ContentType: c.GetHeader("Content-Type"),
		Body:        body,
		VersionOf:   c.Query("version_of"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Location", h.links.Item(item.PID.PIDValue))
	c.Header("ETag", resource.ETag(item.Record.VersionID))
	c.JSON(http.StatusCreated, serializeItem(item, h.links))
}

// HandleGet handles GET {item_route}.
//
// Response:
//
//	200 OK: RecordResponse with ETag header
//	301 Moved Permanently: Identifier redirected, e.g. a version group
//	404 Not Found: Unknown or deleted record
func (h *Handlers) HandleGet(c *gin.Context) {
	item, err := h.res.Get(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("pid_value"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("ETag", resource.ETag(item.Record.VersionID))
	c.JSON(http.StatusOK, serializeItem(item, h.links))
}

// HandlePut handles PUT {item_route}. Always 405.
func (h *Handlers) HandlePut(c *gin.Context) {
	h.writeError(c, h.res.Update(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("pid_value")))
}

// HandleDelete handles DELETE {item_route}.
//
// Response:
//
//	204 No Content: Record deleted
//	401/403: Delete permission denied
//	404 Not Found: Unknown or already deleted record
//	412 Precondition Failed: Missing or stale If-Match
func (h *Handlers) HandleDelete(c *gin.Context) {
	err := h.res.Delete(c.Request.Context(), middleware.GetAuthInfo(c), c.Param("pid_value"), c.GetHeader("If-Match"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleAbuse handles POST {item_route}/abuse.
//
// Response:
//
//	200 OK: MessageResponse
//	400 Bad Request: Missing field or not exactly one reason
//	404 Not Found: Unknown record
//	500 Internal Server Error: Delivery failed
func (h *Handlers) HandleAbuse(c *gin.Context) {
	value := c.Param("pid_value")
	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.res.ReportAbuse(c.Request.Context(), middleware.GetAuthInfo(c), value, h.links.Item(value), body); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: AbuseReportedMessage})
}

// HandleAccessRequest handles POST {item_route}/accessrequests.
//
// Response:
//
//	200 OK: MessageResponse
//	400 Bad Request: Missing field
//	404 Not Found: Unknown record
//	500 Internal Server Error: No recipient or delivery failed
func (h *Handlers) HandleAccessRequest(c *gin.Context) {
	value := c.Param("pid_value")
	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.res.RequestAccess(c.Request.Context(), middleware.GetAuthInfo(c), value, h.links.Item(value), body); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: AccessRequestMessage})
}

// HandleVersions handles GET {versions_route}.
//
// Response:
//
//	200 OK: VersionsResponse, versions in creation order
//	404 Not Found: Unknown identifier
func (h *Handlers) HandleVersions(c *gin.Context) {
	versions, err := h.res.Versions(c.Request.Context(), c.Param("pid_value"), h.links.Item)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := VersionsResponse{Versions: make([]VersionResponse, 0, len(versions))}
	for _, v := range versions {
		out.Versions = append(out.Versions, VersionResponse{
			Version: v.Number,
			ID:      v.PID,
			URL:     v.URL,
			Created: toDateTime(v.Created),
			Updated: toDateTime(v.Updated),
		})
	}
	c.JSON(http.StatusOK, out)
}

// =============================================================================
// Helpers
// =============================================================================

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badParam(name)
	}
	return n, nil
}

// boolQuery treats a present parameter as true unless it is "0" or "false".
func boolQuery(c *gin.Context, name string) bool {
	raw, ok := c.GetQuery(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(raw)
	return err != nil || b
}

func (h *Handlers) pageLinks(c *gin.Context, p resource.SearchParams, res index.Result) map[string]string {
	page, size := p.Page, p.Size
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = h.res.Endpoint().DefaultPageSize
	}
	at := func(n int) string {
		q := url.Values{}
		for k, vs := range c.Request.URL.Query() {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(size))
		return h.links.List(q)
	}

	links := map[string]string{"self": at(page)}
	if page > 1 {
		links["prev"] = at(page - 1)
	}
	if page*size < res.Total && (page+1)*size <= h.res.Endpoint().MaxResultWindow {
		links["next"] = at(page + 1)
	}
	return links
}
