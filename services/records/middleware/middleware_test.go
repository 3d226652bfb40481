// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/observability"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// mockAuthProvider accepts one token.
type mockAuthProvider struct {
	token string
	info  *extensions.AuthInfo
	err   error
	seen  string
}

func (m *mockAuthProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	m.seen = token
	if m.err != nil {
		return nil, m.err
	}
	if token == "" {
		return nil, nil
	}
	if token != m.token {
		return nil, extensions.ErrUnauthorized
	}
	return m.info, nil
}

func authRouter(provider extensions.AuthProvider, got **extensions.AuthInfo) *gin.Engine {
	r := gin.New()
	r.Use(Auth(provider))
	r.GET("/", func(c *gin.Context) {
		*got = GetAuthInfo(c)
		c.Status(http.StatusOK)
	})
	return r
}

// =============================================================================
// extractBearerToken Tests
// =============================================================================

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"mixed case scheme", "BeArEr abc123", "abc123"},
		{"missing", "", ""},
		{"no scheme", "abc123", ""},
		{"basic auth", "Basic abc123", ""},
		{"empty bearer", "Bearer ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}

// =============================================================================
// Auth Tests
// =============================================================================

func TestAuth_ValidToken(t *testing.T) {
	user := &extensions.AuthInfo{UserID: "1", Email: "a@example.org"}
	var got *extensions.AuthInfo
	r := authRouter(&mockAuthProvider{token: "tok", info: user}, &got)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, user, got)
}

func TestAuth_QueryToken(t *testing.T) {
	user := &extensions.AuthInfo{UserID: "1"}
	var got *extensions.AuthInfo
	r := authRouter(&mockAuthProvider{token: "tok", info: user}, &got)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?access_token=tok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, user, got)
}

func TestAuth_AnonymousPassesThrough(t *testing.T) {
	got := &extensions.AuthInfo{}
	r := authRouter(&mockAuthProvider{token: "tok"}, &got)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got)
}

func TestAuth_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockAuthProvider
	}{
		{"unknown token", &mockAuthProvider{token: "tok"}},
		{"provider failure", &mockAuthProvider{err: errors.New("db down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *extensions.AuthInfo
			r := authRouter(tt.provider, &got)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer wrong")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"invalid access token","code":"UNAUTHORIZED"}`, w.Body.String())
		})
	}
}

func TestGetAuthInfo_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(authInfoKey, "not auth info")
	assert.Nil(t, GetAuthInfo(c))
}

// =============================================================================
// RateLimit Tests
// =============================================================================

func TestClientLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewClientLimiter(RateLimitConfig{Every: time.Minute, Burst: 2})
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate budgets")

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("a"))

	now = now.Add(time.Hour)
	l.Allow("c")
	assert.NotContains(t, l.clients, "a", "idle clients are evicted")
}

func TestClientLimiter_Disabled(t *testing.T) {
	l := NewClientLimiter(RateLimitConfig{})
	for range 100 {
		require.True(t, l.Allow("a"))
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewClientLimiter(RateLimitConfig{Every: 30 * time.Second, Burst: 1})))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for range 2 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "30", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	r := gin.New()
	r.Use(RequestID(), Metrics(m, nil))
	r.GET("/records/:pid_value", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/abc", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/records/:pid_value", "GET", "404")))
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) { seen = GetRequestID(c) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}
