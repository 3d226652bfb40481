// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/store"
)

// Source is the store view the Indexer reads from. *store.Store implements
// it.
type Source interface {
	IdentifierByID(ctx context.Context, id int64) (store.Identifier, error)
	IdentifierByValue(ctx context.Context, pidType, value string) (store.Identifier, error)
	VersionParent(ctx context.Context, childID int64) (store.Identifier, error)
	VersionChildren(ctx context.Context, parentID int64) ([]store.Version, error)
	Record(ctx context.Context, id string) (store.Record, error)
	ListPIDValues(ctx context.Context, pidType string, status store.Status) ([]string, error)
}

// Indexer keeps an Index in sync with the record store.
//
// # Description
//
// Subscribed as a store.Observer, it rewrites every member of the changed
// record's lineage so that exactly the newest live version carries
// IsLastVersion. Tombstoned members are removed from the index.
//
// # Thread Safety
//
// Safe for concurrent use. Changes to the same lineage are indexed one at a
// time, so the last writer always works from a snapshot taken after every
// earlier commit.
type Indexer struct {
	idx      *Index
	src      Source
	indexes  map[string]string
	logger   *slog.Logger
	metrics  *observability.Metrics
	lineages keyedMutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithIndexerLogger sets the logger.
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(x *Indexer) { x.logger = logger }
}

// WithIndexerMetrics records index writes on m.
func WithIndexerMetrics(m *observability.Metrics) IndexerOption {
	return func(x *Indexer) { x.metrics = m }
}

// NewIndexer creates an Indexer.
//
// # Inputs
//
//   - idx: Target index.
//   - src: Record store.
//   - indexes: Index name per pid type. Changes of other pid types are
//     ignored.
func NewIndexer(idx *Index, src Source, indexes map[string]string, opts ...IndexerOption) *Indexer {
	copied := make(map[string]string, len(indexes))
	for k, v := range indexes {
		copied[k] = v
	}
	x := &Indexer{idx: idx, src: src, indexes: copied, logger: slog.Default()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// RecordChanged implements store.Observer.
func (x *Indexer) RecordChanged(ctx context.Context, change store.Change) error {
	name, ok := x.indexes[change.Identifier.PIDType]
	if !ok {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, "index.RecordChanged")
	defer span.End()

	var err error
	if change.ParentID == 0 {
		err = x.indexOne(ctx, name, change.Identifier, change.Identifier.IsRegistered())
	} else {
		err = x.indexLineage(ctx, name, change.ParentID)
	}
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("index %s: %w", change.Identifier.PIDValue, err)
	}
	x.logger.DebugContext(ctx, "record indexed",
		slog.String("index", name),
		slog.String("pid_value", change.Identifier.PIDValue),
		slog.String("change", change.Kind.String()),
	)
	return nil
}

func (x *Indexer) indexLineage(ctx context.Context, name string, parentID int64) error {
	unlock := x.lineages.lock(parentID)
	defer unlock()

	root, err := x.src.IdentifierByID(ctx, parentID)
	if err != nil {
		return err
	}
	children, err := x.src.VersionChildren(ctx, parentID)
	if err != nil {
		return err
	}
	var errs []error
	for _, child := range children {
		isLast := child.Identifier.IsRegistered() && child.Identifier.ID == root.RedirectID
		if err := x.indexOne(ctx, name, child.Identifier, isLast); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (x *Indexer) indexOne(ctx context.Context, name string, ident store.Identifier, isLast bool) error {
	if !ident.IsRegistered() {
		err := x.idx.Delete(ctx, name, ident.PIDValue)
		x.metrics.RecordIndexOperation("delete", err)
		return err
	}
	rec, err := x.src.Record(ctx, ident.ObjectUUID)
	if err != nil {
		return err
	}
	if rec.Deleted {
		err := x.idx.Delete(ctx, name, ident.PIDValue)
		x.metrics.RecordIndexOperation("delete", err)
		return err
	}
	err = x.idx.Put(ctx, name, Document{
		PID:           ident.PIDValue,
		RecordID:      rec.ID,
		Created:       rec.Created,
		Updated:       rec.Updated,
		Revision:      rec.VersionID,
		IsLastVersion: isLast,
		Owners:        store.Owners(rec.Data),
		Metadata:      Project(rec.Data),
	})
	x.metrics.RecordIndexOperation("put", err)
	return err
}

// isLastVersion reports whether ident is the redirect target of its
// lineage root. Records without a lineage are always the last version.
func (x *Indexer) isLastVersion(ctx context.Context, ident store.Identifier) (bool, error) {
	parent, err := x.src.VersionParent(ctx, ident.ID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return parent.RedirectID == ident.ID, nil
}

// Reindex rewrites the documents of every live record.
//
// # Description
//
// Records of each configured pid type are indexed by up to concurrency
// goroutines. The first failure cancels the remaining work.
//
// # Outputs
//
//   - int: Number of documents written.
//   - error: First failure.
func (x *Indexer) Reindex(ctx context.Context, concurrency int) (int, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var written atomic.Int64
	for pidType, name := range x.indexes {
		values, err := x.src.ListPIDValues(ctx, pidType, store.StatusRegistered)
		if err != nil {
			return 0, fmt.Errorf("reindex %s: %w", pidType, err)
		}
		x.logger.InfoContext(ctx, "reindexing",
			slog.String("pid_type", pidType),
			slog.String("index", name),
			slog.Int("records", len(values)),
		)
		for _, value := range values {
			g.Go(func() error {
				ident, err := x.src.IdentifierByValue(gctx, pidType, value)
				if err != nil {
					return err
				}
				isLast, err := x.isLastVersion(gctx, ident)
				if err != nil {
					return err
				}
				if err := x.indexOne(gctx, name, ident, isLast); err != nil {
					return fmt.Errorf("reindex %s: %w", value, err)
				}
				written.Add(1)
				return nil
			})
		}
	}
	err := g.Wait()
	return int(written.Load()), err
}

// keyedMutex hands out one mutex per key. Entries are dropped when no
// goroutine holds or waits for them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key int64) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[int64]*keyedEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
