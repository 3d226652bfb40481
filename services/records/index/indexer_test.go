// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/store"
)

type indexerFixture struct {
	store   *store.Store
	idx     *Index
	indexer *Indexer
	metrics *observability.Metrics
}

func newIndexerFixture(t *testing.T) *indexerFixture {
	t.Helper()
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s, err := store.Open(filepath.Join(t.TempDir(), "idx.db"), store.WithClock(func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	idx := openTestIndex(t)
	m := observability.NewMetrics(prometheus.NewRegistry())
	x := NewIndexer(idx, s, map[string]string{"b2rec": "records"}, WithIndexerMetrics(m))
	s.Subscribe(x)
	return &indexerFixture{store: s, idx: idx, indexer: x, metrics: m}
}

func (f *indexerFixture) create(t *testing.T, value string, versionOf int64, data map[string]any) store.Change {
	t.Helper()
	c, err := f.store.CreateRecord(context.Background(), store.CreateParams{
		PIDType:   "b2rec",
		PIDValue:  value,
		RecordID:  "uuid-" + value,
		Data:      data,
		VersionOf: versionOf,
	})
	require.NoError(t, err)
	return c
}

func TestIndexer_IndexesProjectedDocument(t *testing.T) {
	f := newIndexerFixture(t)
	f.create(t, "v1", 0, map[string]any{
		"title":    "x",
		"_files":   []any{"a.csv"},
		"_deposit": map[string]any{"owners": []any{float64(7)}},
	})

	doc, err := f.idx.Get(context.Background(), "records", "v1")
	require.NoError(t, err)
	assert.True(t, doc.IsLastVersion)
	assert.Equal(t, []any{"a.csv"}, doc.Metadata["files"])
	assert.NotContains(t, doc.Metadata, "_files")
	assert.Equal(t, []int64{7}, doc.Owners)
	assert.Equal(t, 1, doc.Revision)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexOperationsTotal.WithLabelValues("put", "success")))
}

func TestIndexer_OnlyNewestVersionIsLast(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	v1 := f.create(t, "v1", 0, map[string]any{"title": "first"})
	f.create(t, "v2", v1.Identifier.ID, map[string]any{"title": "second"})

	res, err := f.idx.Search(ctx, Query{Index: "records"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, pids(res.Hits))

	res, err = f.idx.Search(ctx, Query{Index: "records", AllVersions: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestIndexer_DeleteRemovesAndPromotesPrevious(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	v1 := f.create(t, "v1", 0, map[string]any{"title": "first"})
	f.create(t, "v2", v1.Identifier.ID, map[string]any{"title": "second"})

	_, err := f.store.DeleteRecord(ctx, "b2rec", "v2", 1)
	require.NoError(t, err)

	_, err = f.idx.Get(ctx, "records", "v2")
	assert.ErrorIs(t, err, ErrNotFound)

	doc, err := f.idx.Get(ctx, "records", "v1")
	require.NoError(t, err)
	assert.True(t, doc.IsLastVersion)
}

func TestIndexer_IgnoresUnknownPIDType(t *testing.T) {
	f := newIndexerFixture(t)
	err := f.indexer.RecordChanged(context.Background(), store.Change{
		Kind:       store.ChangeCreated,
		Identifier: store.Identifier{PIDType: "other", PIDValue: "x", Status: store.StatusRegistered},
	})
	assert.NoError(t, err)
}

func TestIndexer_Reindex(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	v1 := f.create(t, "v1", 0, map[string]any{"title": "first"})
	f.create(t, "v2", v1.Identifier.ID, map[string]any{"title": "second"})
	f.create(t, "solo", 0, map[string]any{"title": "solo"})

	fresh := openTestIndex(t)
	x := NewIndexer(fresh, f.store, map[string]string{"b2rec": "records"})

	n, err := x.Reindex(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := fresh.Search(ctx, Query{Index: "records", Sort: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "solo"}, pids(res.Hits))
}

// gatedSource blocks the first Record call after arm until release is
// closed.
type gatedSource struct {
	*store.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) Record(ctx context.Context, id string) (store.Record, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Store.Record(ctx, id)
}

func TestIndexer_SameLineageChangesDoNotInterleave(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	src := &gatedSource{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	idx := openTestIndex(t)
	x := NewIndexer(idx, src, map[string]string{"b2rec": "records"})
	f.store.Subscribe(x)

	v1 := f.create(t, "v1", 0, map[string]any{"title": "first"})
	require.NotZero(t, v1.ParentID)

	// a slow indexing of v1 holds a snapshot in which v1 is the newest
	src.armed.Store(true)
	slow := make(chan error, 1)
	go func() { slow <- x.RecordChanged(ctx, v1) }()
	<-src.entered

	created := make(chan error, 1)
	go func() {
		_, err := f.store.CreateRecord(ctx, store.CreateParams{
			PIDType: "b2rec", PIDValue: "v2", RecordID: "uuid-v2",
			Data: map[string]any{"title": "second"}, VersionOf: v1.Identifier.ID,
		})
		created <- err
	}()

	// v2's indexing waits for the slow one instead of finishing first
	assert.Never(t, func() bool { return len(created) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	close(src.release)
	require.NoError(t, <-slow)
	require.NoError(t, <-created)

	res, err := idx.Search(ctx, Query{Index: "records"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, pids(res.Hits))
	assert.Zero(t, x.lineages.len())
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex
	unlock := k.lock(1)

	other := k.lock(2)
	other()

	acquired := make(chan struct{})
	go func() {
		u := k.lock(1)
		close(acquired)
		u()
	}()
	assert.Never(t, func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return k.len() == 0 }, time.Second, 5*time.Millisecond)
}
