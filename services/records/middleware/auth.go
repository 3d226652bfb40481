// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the records service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header
// (or the access_token query parameter), validates it with the configured
// AuthProvider and stores the resulting AuthInfo in the Gin context.
//
//	Request
//	   │
//	   ▼
//	Auth
//	   │
//	   ├─► Extract token
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context (nil for anonymous callers)
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// Anonymous requests pass through. Whether they may proceed is decided by
// the endpoint permissions, which answer 401 for anonymous callers.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eudat/b2share/pkg/extensions"
)

// authInfoKey is the Gin context key for the caller's AuthInfo.
const authInfoKey = "b2share_auth_info"

// errorBody mirrors handlers.ErrorResponse for responses written here.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SetAuthInfo stores the caller in the Gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the caller stored by Auth, or nil for anonymous
// requests.
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// Auth creates a Gin middleware that authenticates requests.
//
// # Description
//
// The token is taken from "Authorization: Bearer <token>" or, when that
// header is absent, from the access_token query parameter. A missing token
// is an anonymous request. A token the provider rejects ends the request
// with 401.
//
// # Inputs
//
//   - provider: AuthProvider to validate tokens. Must not be nil.
//
// # Limitations
//
//   - Only Bearer tokens are understood
//   - Validation results are not cached
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func Auth(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			token = c.Query("access_token")
		}

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, extensions.ErrUnauthorized) {
				slog.ErrorContext(c.Request.Context(), "token validation failed", slog.String("error", err.Error()))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Error: "invalid access token",
				Code:  "UNAUTHORIZED",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// extractBearerToken returns the token of an "Authorization: Bearer"
// header, or "" when the header is missing or uses another scheme. The
// scheme is matched case-insensitively per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
