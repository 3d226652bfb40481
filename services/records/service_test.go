// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package records

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eudat/b2share/services/records/accounts"
	"github.com/eudat/b2share/services/records/config"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.BaseURL = "https://b2share.test/api"
	cfg.Storage.Database = filepath.Join(t.TempDir(), "records.db")
	cfg.Storage.IndexDir = ""
	cfg.Mail.SupportAddress = "support@example.org"
	return cfg
}

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := New(testConfig(t), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func serve(svc Service, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

// =============================================================================
// Service Tests
// =============================================================================

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Endpoints = nil

	_, err := New(cfg, nil, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestService_CreateWithAccountToken(t *testing.T) {
	svc := newTestService(t)
	token, hash, err := accounts.NewToken()
	require.NoError(t, err)
	_, err = svc.Store().CreateAccount(context.Background(), "alice@example.org", nil, hash)
	require.NoError(t, err)

	w := serve(svc, http.MethodPost, "/records/", token, `{"title": "Ocean"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://b2share.test/api/records/"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(svc, http.MethodPost, "/records/", "wrong", `{"title": "Ocean"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(svc, http.MethodGet, "/records/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestService_MetricsExposed(t *testing.T) {
	svc := newTestService(t)
	serve(svc, http.MethodGet, "/records/missing", "", "")

	w := serve(svc, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "b2share_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestService_Health(t *testing.T) {
	svc := newTestService(t)
	w := serve(svc, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestService_Reindex(t *testing.T) {
	svc := newTestService(t)
	token, hash, err := accounts.NewToken()
	require.NoError(t, err)
	_, err = svc.Store().CreateAccount(context.Background(), "alice@example.org", nil, hash)
	require.NoError(t, err)
	for range 3 {
		w := serve(svc, http.MethodPost, "/records/", token, `{"title": "x"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	n, err := svc.Reindex(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestService_ApplyConfig(t *testing.T) {
	svc := newTestService(t)
	cfg := testConfig(t)
	cfg.Mail.SupportAddress = " abuse@example.org "

	svc.ApplyConfig(cfg)

	assert.Equal(t, "abuse@example.org", svc.(*service).dispatcher.SupportAddress())
}

func TestService_RunStopsOnCancel(t *testing.T) {
	svc, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.Run(ctx))

	// Run released the resources, a second Close is a no-op
	assert.NoError(t, svc.Close())
}
