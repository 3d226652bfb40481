// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenInMemory verifies an in-memory index accepts writes.
func TestOpenInMemory(t *testing.T) {
	idx, err := OpenInMemory()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Put(context.Background(), "records", Document{PID: "a"}))
	doc, err := idx.Get(context.Background(), "records", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.PID)
}

// TestOpen_PersistsAcrossReopen verifies documents survive a restart.
func TestOpen_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.Logger = slog.New(slog.DiscardHandler)

	idx, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Put(context.Background(), "records", Document{PID: "kept", Revision: 3}))
	require.NoError(t, idx.Close())

	idx, err = Open(cfg)
	require.NoError(t, err)
	defer idx.Close()

	doc, err := idx.Get(context.Background(), "records", "kept")
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Revision)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestConfigFunctions(t *testing.T) {
	def := DefaultConfig()
	assert.False(t, def.InMemory)
	assert.Equal(t, 10*time.Minute, def.GCInterval)
	assert.Equal(t, 0.5, def.GCDiscardRatio)

	mem := InMemoryConfig()
	assert.True(t, mem.InMemory)
	assert.Zero(t, mem.GCInterval)
}

func TestStartGC_Validation(t *testing.T) {
	idx, err := OpenInMemory()
	require.NoError(t, err)
	defer idx.Close()

	_, err = startGC(idx.db, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = startGC(idx.db, time.Minute, 1.5, nil)
	assert.Error(t, err)

	r, err := startGC(idx.db, time.Hour, 0.5, nil)
	require.NoError(t, err)
	r.stop()
}
