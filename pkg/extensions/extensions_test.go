// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ServiceOptions Tests
// =============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.IsType(t, &NopAuthProvider{}, opts.AuthProvider)
	assert.IsType(t, &NopAuditLogger{}, opts.AuditLogger)
	assert.NotNil(t, opts.Permissions)
	assert.Empty(t, opts.Permissions)
}

func TestServiceOptions_WithPermission_DoesNotAlias(t *testing.T) {
	base := DefaultOptions()
	a := base.WithPermission(ActionDelete, DenyAll)
	b := a.WithPermission(ActionCreate, AllowAll)

	assert.Len(t, base.Permissions, 0)
	assert.Len(t, a.Permissions, 1)
	assert.Len(t, b.Permissions, 2)
}

func TestServiceOptions_Normalize(t *testing.T) {
	opts := ServiceOptions{}.Normalize()

	require.NotNil(t, opts.AuthProvider)
	require.NotNil(t, opts.AuditLogger)
	require.NotNil(t, opts.Permissions)
}

// =============================================================================
// Auth Tests
// =============================================================================

func TestNopAuthProvider_IsAnonymous(t *testing.T) {
	info, err := (&NopAuthProvider{}).Validate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestAuthInfo_HasRole(t *testing.T) {
	tests := []struct {
		name string
		info *AuthInfo
		role string
		want bool
	}{
		{"nil info", nil, RoleAdmin, false},
		{"no roles", &AuthInfo{UserID: "1"}, RoleAdmin, false},
		{"has role", &AuthInfo{UserID: "1", Roles: []string{"curator", RoleAdmin}}, RoleAdmin, true},
		{"case sensitive", &AuthInfo{UserID: "1", Roles: []string{"Admin"}}, RoleAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.HasRole(tt.role))
		})
	}
}

func TestPermissionFunc(t *testing.T) {
	var seen AuthzRequest
	p := PermissionFunc(func(_ context.Context, req AuthzRequest) bool {
		seen = req
		return req.Action == ActionRead
	})

	assert.True(t, p.Can(context.Background(), AuthzRequest{Action: ActionRead, ResourceID: "abc"}))
	assert.Equal(t, "abc", seen.ResourceID)
	assert.False(t, p.Can(context.Background(), AuthzRequest{Action: ActionDelete}))
	assert.True(t, AllowAll.Can(context.Background(), AuthzRequest{}))
	assert.False(t, DenyAll.Can(context.Background(), AuthzRequest{}))
}

// =============================================================================
// Audit Tests
// =============================================================================

func TestSlogAuditLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := &SlogAuditLogger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := logger.Log(context.Background(), AuditEvent{
		EventType:    "record.delete",
		Action:       ActionDelete,
		ResourceType: "b2rec",
		ResourceID:   "0123",
		Outcome:      OutcomeSuccess,
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "record.delete", line["event_type"])
	assert.Equal(t, "anonymous", line["user_id"])
	assert.Equal(t, "success", line["outcome"])
}

func TestNopAuditLogger_Log(t *testing.T) {
	assert.NoError(t, (&NopAuditLogger{}).Log(context.Background(), AuditEvent{}))
}
