// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func pids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.PID
	}
	return out
}

// =============================================================================
// Projection Tests
// =============================================================================

func TestProject_RenamesFiles(t *testing.T) {
	files := []any{map[string]any{"key": "data.csv"}}
	doc := map[string]any{"_files": files, "title": "x"}

	got := Project(doc)

	assert.Equal(t, map[string]any{"files": files, "title": "x"}, got)
	assert.Contains(t, doc, "_files", "input must not be modified")
}

func TestProject_Idempotent(t *testing.T) {
	once := Project(map[string]any{"_files": []any{"a"}, "title": "x"})
	twice := Project(once)
	assert.Equal(t, once, twice)
}

func TestProject_NoFiles(t *testing.T) {
	assert.Equal(t, map[string]any{"title": "x"}, Project(map[string]any{"title": "x"}))
	assert.Nil(t, Project(nil))
}

// =============================================================================
// Index Tests
// =============================================================================

func TestGet_NotFound(t *testing.T) {
	_, err := openTestIndex(t).Get(context.Background(), "records", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_RequiresNameAndPID(t *testing.T) {
	idx := openTestIndex(t)
	assert.Error(t, idx.Put(context.Background(), "", Document{PID: "a"}))
	assert.Error(t, idx.Put(context.Background(), "records", Document{}))
}

func TestDelete_Missing(t *testing.T) {
	assert.NoError(t, openTestIndex(t).Delete(context.Background(), "records", "nope"))
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{PID: "a", Created: base.Add(1 * time.Hour), IsLastVersion: true, Owners: []int64{1},
			Metadata: map[string]any{"title": "Ocean temperature", "keywords": []any{"ocean", "ocean"}}},
		{PID: "b", Created: base.Add(2 * time.Hour), IsLastVersion: true, Owners: []int64{2},
			Metadata: map[string]any{"title": "Ocean salinity"}},
		{PID: "c", Created: base.Add(3 * time.Hour), IsLastVersion: false, Owners: []int64{1},
			Metadata: map[string]any{"title": "Ocean old draft"}},
		{PID: "d", Created: base.Add(4 * time.Hour), IsLastVersion: true,
			Metadata: map[string]any{"title": "Forest cover"}},
	}
	for _, d := range docs {
		require.NoError(t, idx.Put(context.Background(), "records", d))
	}
	require.NoError(t, idx.Put(context.Background(), "deposits", Document{PID: "z", IsLastVersion: true}))
}

func TestSearch(t *testing.T) {
	idx := openTestIndex(t)
	seed(t, idx)

	tests := []struct {
		name  string
		query Query
		total int
		want  []string
	}{
		{"default hides old versions, newest first", Query{Index: "records"}, 3, []string{"d", "b", "a"}},
		{"all versions", Query{Index: "records", AllVersions: true}, 4, []string{"d", "c", "b", "a"}},
		{"text uses bestmatch", Query{Index: "records", Text: "OCEAN"}, 2, []string{"a", "b"}},
		{"all terms must match", Query{Index: "records", Text: "ocean salinity"}, 1, []string{"b"}},
		{"oldest", Query{Index: "records", Sort: SortOldest}, 3, []string{"a", "b", "d"}},
		{"paging", Query{Index: "records", Page: 2, Size: 2}, 3, []string{"a"}},
		{"page past end", Query{Index: "records", Page: 5, Size: 2}, 3, []string{}},
		{"owner filter", Query{Index: "records", Owner: 1, AllVersions: true}, 2, []string{"c", "a"}},
		{"other index", Query{Index: "deposits"}, 1, []string{"z"}},
		{"unknown index", Query{Index: "nothing"}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := idx.Search(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, tt.want, pids(res.Hits))
		})
	}
}

func TestSearch_InvalidSort(t *testing.T) {
	_, err := openTestIndex(t).Search(context.Background(), Query{Index: "records", Sort: "random"})
	assert.ErrorIs(t, err, ErrInvalidSort)
}

func TestSearch_CancelledContext(t *testing.T) {
	idx := openTestIndex(t)
	seed(t, idx)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, Query{Index: "records"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_DefaultPageSize(t *testing.T) {
	idx := openTestIndex(t)
	for i := range 15 {
		require.NoError(t, idx.Put(context.Background(), "records",
			Document{PID: fmt.Sprintf("p%02d", i), IsLastVersion: true}))
	}
	res, err := idx.Search(context.Background(), Query{Index: "records"})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Total)
	assert.Len(t, res.Hits, DefaultPageSize)
}

func TestSearch_PageBeyondResults(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Put(context.Background(), "records", Document{PID: "p1", IsLastVersion: true}))

	for _, page := range []int{2, 1 << 62, math.MaxInt} {
		res, err := idx.Search(context.Background(), Query{Index: "records", Page: page, Size: 4})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Empty(t, res.Hits)
	}
}
