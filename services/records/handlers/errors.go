// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eudat/b2share/services/records/middleware"
	"github.com/eudat/b2share/services/records/notify"
	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/resource"
)

func badParam(name string) error {
	return fmt.Errorf("%w: %s must be an integer", resource.ErrBadRequest, name)
}

// errorStatus maps a client error to its status and code. ok is false for
// errors that are not the client's fault.
func errorStatus(err error) (status int, code string, ok bool) {
	var verr *notify.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "VALIDATION_FAILED", true
	case errors.Is(err, resource.ErrVersioningTargetNotFound):
		return http.StatusBadRequest, "VERSIONING_TARGET_NOT_FOUND", true
	case errors.Is(err, resource.ErrIncorrectVersioningTarget):
		return http.StatusBadRequest, "INCORRECT_VERSIONING_TARGET", true
	case errors.Is(err, resource.ErrMaxResultWindow):
		return http.StatusBadRequest, "MAX_RESULT_WINDOW", true
	case errors.Is(err, resource.ErrBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST", true
	case errors.Is(err, resource.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", true
	case errors.Is(err, resource.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", true
	case errors.Is(err, pid.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", true
	case errors.Is(err, resource.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", true
	case errors.Is(err, resource.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "PRECONDITION_FAILED", true
	case errors.Is(err, resource.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", true
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", false
}

// writeError writes err as an ErrorResponse. Redirected identifiers answer
// 301 pointing at the target record. Server errors are logged and their
// message is not exposed.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var redirect *pid.RedirectedError
	if errors.As(err, &redirect) {
		c.Header("Location", h.links.Item(redirect.Target.PIDValue))
		c.JSON(http.StatusMovedPermanently, ErrorResponse{
			Error: err.Error(),
			Code:  "REDIRECTED",
		})
		return
	}

	status, code, ok := errorStatus(err)
	if ok {
		msg := err.Error()
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		c.JSON(status, ErrorResponse{Error: msg, Code: code})
		return
	}

	h.logger.ErrorContext(c.Request.Context(), "request failed",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("request_id", middleware.GetRequestID(c)),
		slog.String("error", err.Error()),
	)
	c.JSON(status, ErrorResponse{Error: "internal server error", Code: code})
}
