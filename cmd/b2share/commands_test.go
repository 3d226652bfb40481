// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eudat/b2share/services/records/accounts"
	"github.com/eudat/b2share/services/records/config"
	"github.com/eudat/b2share/services/records/store"
)

// execute runs the CLI with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// tempConfig writes a default config whose storage lives in a temp dir.
func tempConfig(t *testing.T) (path, db string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, config.FileName)
	require.NoError(t, config.WriteDefault(path, false))
	db = filepath.Join(dir, "records.db")
	t.Setenv("B2SHARE_STORAGE_DATABASE", db)
	t.Setenv("B2SHARE_STORAGE_INDEX_DIR", filepath.Join(dir, "index"))
	t.Setenv("B2SHARE_LOGGING_LEVEL", "error")
	return path, db
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "b2share.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err)

	_, err = execute(t, "config", "init", path, "--force")
	assert.NoError(t, err)
}

func TestUsersAdd(t *testing.T) {
	cfgPath, db := tempConfig(t)

	out, err := execute(t, "users", "add", "--config", cfgPath, "--email", "admin@example.org", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "created account 1 for admin@example.org")

	m := regexp.MustCompile(`token: ([0-9a-f]{64})`).FindStringSubmatch(out)
	require.Len(t, m, 2)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	acc, err := st.AccountByTokenHash(context.Background(), accounts.HashToken(m[1]))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, acc.Roles)
}

func TestUsersAdd_RequiresEmail(t *testing.T) {
	cfgPath, _ := tempConfig(t)
	_, err := execute(t, "users", "add", "--config", cfgPath)
	assert.Error(t, err)
}

func TestReindex_EmptyDatabase(t *testing.T) {
	cfgPath, _ := tempConfig(t)

	out, err := execute(t, "reindex", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "reindexed 0 records")
}

func TestLoad_MissingConfig(t *testing.T) {
	_, err := execute(t, "reindex", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReindex_FailureClosesLogFile(t *testing.T) {
	cfgPath, _ := tempConfig(t)
	logDir := t.TempDir()
	t.Setenv("B2SHARE_LOGGING_DIR", logDir)
	// a directory cannot be opened as the database
	t.Setenv("B2SHARE_STORAGE_DATABASE", t.TempDir())

	c := &cli{}
	root := c.rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"reindex", "--config", cfgPath})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Nil(t, c.logger)

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
