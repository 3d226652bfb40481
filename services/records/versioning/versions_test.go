// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package versioning

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/store"
)

func openStore(t *testing.T, now func() time.Time) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "versions.db"), store.WithClock(now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stepping() func() time.Time {
	t0 := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Minute)
	}
}

func create(t *testing.T, s *store.Store, value string, versionOf int64) store.Change {
	t.Helper()
	c, err := s.CreateRecord(context.Background(), store.CreateParams{
		PIDType:   "b2rec",
		PIDValue:  value,
		RecordID:  "uuid-" + value,
		Data:      map[string]any{},
		VersionOf: versionOf,
	})
	require.NoError(t, err)
	return c
}

func urlFor(v string) string { return "https://b2share.example/api/records/" + v }

func TestListVersions_NumberedInCreationOrder(t *testing.T) {
	s := openStore(t, stepping())
	v1 := create(t, s, "c-first", 0)
	create(t, s, "b-second", v1.Identifier.ID)
	create(t, s, "a-third", v1.Identifier.ID)
	r := NewReader(s, "b2rec")

	for _, from := range []string{"c-first", "a-third"} {
		t.Run(from, func(t *testing.T) {
			versions, err := r.ListVersions(context.Background(), from, urlFor)
			require.NoError(t, err)
			require.Len(t, versions, 3)

			for i, v := range versions {
				assert.Equal(t, i+1, v.Number)
				assert.Equal(t, v.PID, strings.TrimPrefix(v.URL, "https://b2share.example/api/records/"))
			}
			assert.Equal(t, "c-first", versions[0].PID)
			assert.Equal(t, "b-second", versions[1].PID)
			assert.Equal(t, "a-third", versions[2].PID)
			assert.True(t, versions[0].Created.Before(versions[1].Created))
		})
	}
}

func TestListVersions_URLsResolveBack(t *testing.T) {
	s := openStore(t, stepping())
	v1 := create(t, s, "one", 0)
	create(t, s, "two", v1.Identifier.ID)

	versions, err := NewReader(s, "b2rec").ListVersions(context.Background(), "two", urlFor)
	require.NoError(t, err)

	resolver := pid.NewResolver(s, "b2rec")
	for _, v := range versions {
		value := v.URL[strings.LastIndex(v.URL, "/")+1:]
		ident, _, err := resolver.Resolve(context.Background(), value)
		require.NoError(t, err)
		assert.Equal(t, v.PID, ident.PIDValue)
	}
}

func TestListVersions_FromLineageRoot(t *testing.T) {
	s := openStore(t, stepping())
	v1 := create(t, s, "one", 0)
	create(t, s, "two", v1.Identifier.ID)
	root, err := s.IdentifierByID(context.Background(), v1.ParentID)
	require.NoError(t, err)

	versions, err := NewReader(s, "b2rec").ListVersions(context.Background(), root.PIDValue, nil)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Empty(t, versions[0].URL)
}

func TestListVersions_IdenticalTimestampsTieBreakOnValue(t *testing.T) {
	fixed := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openStore(t, func() time.Time { return fixed })
	v1 := create(t, s, "zz", 0)
	create(t, s, "aa", v1.Identifier.ID)

	versions, err := NewReader(s, "b2rec").ListVersions(context.Background(), "zz", urlFor)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "aa", versions[0].PID)
	assert.Equal(t, 1, versions[0].Number)
	assert.Equal(t, "zz", versions[1].PID)
}

func TestListVersions_KeepsTombstones(t *testing.T) {
	s := openStore(t, stepping())
	v1 := create(t, s, "one", 0)
	create(t, s, "two", v1.Identifier.ID)
	_, err := s.DeleteRecord(context.Background(), "b2rec", "one", 1)
	require.NoError(t, err)

	versions, err := NewReader(s, "b2rec").ListVersions(context.Background(), "one", urlFor)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestListVersions_Unknown(t *testing.T) {
	_, err := NewReader(openStore(t, stepping()), "b2rec").ListVersions(context.Background(), "nope", urlFor)
	assert.ErrorIs(t, err, pid.ErrNotFound)
}

// noChildren reports an identifier without parent or members.
type noChildren struct{}

func (noChildren) IdentifierByValue(context.Context, string, string) (store.Identifier, error) {
	return store.Identifier{ID: 1, PIDValue: "legacy", Status: store.StatusRegistered}, nil
}

func (noChildren) VersionParent(context.Context, int64) (store.Identifier, error) {
	return store.Identifier{}, store.ErrNotFound
}

func (noChildren) VersionChildren(context.Context, int64) ([]store.Version, error) {
	return []store.Version{}, nil
}

func TestListVersions_NoLineageIsEmptyNotError(t *testing.T) {
	versions, err := NewReader(noChildren{}, "b2rec").ListVersions(context.Background(), "legacy", urlFor)
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}
