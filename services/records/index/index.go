// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index maintains the searchable projection of records.
//
// # Description
//
// Documents are kept in BadgerDB under "doc/<index>/<pid_value>". An
// Indexer subscribed to the record store rewrites the documents of a
// lineage after every committed change, so search results converge on the
// store state without being transactionally tied to it.
//
// Search is a linear scan with case-insensitive term matching. It is meant
// for repositories whose index fits comfortably in a single process.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Errors returned by the index.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidSort = errors.New("invalid sort option")
)

// Sort options.
const (
	SortBestMatch  = "bestmatch"
	SortMostRecent = "mostrecent"
	SortOldest     = "oldest"
)

// DefaultPageSize is used when a query does not set Size.
const DefaultPageSize = 10

// Document is one indexed record.
type Document struct {
	PID      string    `json:"id"`
	RecordID string    `json:"record_id"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Revision int       `json:"revision"`

	// IsLastVersion is set on the newest live member of a lineage.
	IsLastVersion bool `json:"is_last_version"`

	// Owners are the account ids from _deposit.owners.
	Owners []int64 `json:"owners,omitempty"`

	// Metadata is the projected record document.
	Metadata map[string]any `json:"metadata"`
}

// Query selects documents of one index.
type Query struct {
	// Index is the index name. Required.
	Index string

	// Text holds whitespace separated terms; every term must occur.
	Text string

	// Page is 1-based. Values below 1 mean 1.
	Page int

	// Size is the page size. Values below 1 mean DefaultPageSize.
	Size int

	// Sort is one of the Sort* options. Empty selects bestmatch when Text
	// is set, mostrecent otherwise.
	Sort string

	// AllVersions includes documents that are not the last version.
	AllVersions bool

	// Owner restricts results to documents owned by this account id.
	// Zero disables the filter.
	Owner int64
}

// Result is one page of search hits.
type Result struct {
	// Total counts all matching documents, not only this page.
	Total int
	Hits  []Document
}

// Index is a BadgerDB-backed document index.
//
// # Thread Safety
//
// Safe for concurrent use.
type Index struct {
	db *badger.DB
	gc *gcRunner
}

// Open opens or creates an index.
func Open(cfg Config) (*Index, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	idx := &Index{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		idx.gc, err = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("start index GC: %w", err)
		}
	}
	return idx, nil
}

// OpenInMemory opens an empty in-memory index.
func OpenInMemory() (*Index, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database.
func (i *Index) Close() error {
	if i.gc != nil {
		i.gc.stop()
	}
	return i.db.Close()
}

func docKey(name, pidValue string) []byte {
	return []byte("doc/" + name + "/" + pidValue)
}

func docPrefix(name string) []byte {
	return []byte("doc/" + name + "/")
}

// Put stores doc in the named index, replacing any previous version.
func (i *Index) Put(ctx context.Context, name string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || doc.PID == "" {
		return errors.New("put document: index name and pid are required")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.PID, err)
	}
	if err := i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(name, doc.PID), data)
	}); err != nil {
		return fmt.Errorf("put document %s: %w", doc.PID, err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (i *Index) Delete(ctx context.Context, name, pidValue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(name, pidValue))
	}); err != nil {
		return fmt.Errorf("delete document %s: %w", pidValue, err)
	}
	return nil
}

// Get returns one document.
func (i *Index) Get(ctx context.Context, name, pidValue string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	var doc Document
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(name, pidValue))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, fmt.Errorf("%s/%s: %w", name, pidValue, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", pidValue, err)
	}
	return doc, nil
}

type scoredDoc struct {
	doc   Document
	score int
}

// Search returns one page of the documents matching q.
//
// # Outputs
//
//   - Result: Total matches and the requested page, in sort order.
//   - error: ErrInvalidSort for unknown sort options, or a storage error.
func (i *Index) Search(ctx context.Context, q Query) (Result, error) {
	sortBy := q.Sort
	terms := strings.Fields(strings.ToLower(q.Text))
	if sortBy == "" {
		sortBy = SortMostRecent
		if len(terms) > 0 {
			sortBy = SortBestMatch
		}
	}
	less, ok := sorters[sortBy]
	if !ok {
		return Result{}, fmt.Errorf("%q: %w", q.Sort, ErrInvalidSort)
	}
	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}

	var matches []scoredDoc
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = docPrefix(q.Index)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc Document
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if !q.AllVersions && !doc.IsLastVersion {
				continue
			}
			if q.Owner != 0 && !ownedBy(doc, q.Owner) {
				continue
			}
			score, ok := match(doc, terms)
			if !ok {
				continue
			}
			matches = append(matches, scoredDoc{doc: doc, score: score})
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("search %s: %w", q.Index, err)
	}

	sort.SliceStable(matches, func(a, b int) bool { return less(matches[a], matches[b]) })

	result := Result{Total: len(matches), Hits: []Document{}}
	// compare page counts first so (page-1)*size cannot overflow
	if page-1 >= (len(matches)+size-1)/size {
		return result, nil
	}
	start := (page - 1) * size
	end := min(start+size, len(matches))
	for _, m := range matches[start:end] {
		result.Hits = append(result.Hits, m.doc)
	}
	return result, nil
}

var sorters = map[string]func(a, b scoredDoc) bool{
	SortBestMatch: func(a, b scoredDoc) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		return newerFirst(a, b)
	},
	SortMostRecent: newerFirst,
	SortOldest: func(a, b scoredDoc) bool {
		if !a.doc.Created.Equal(b.doc.Created) {
			return a.doc.Created.Before(b.doc.Created)
		}
		return a.doc.PID < b.doc.PID
	},
}

func newerFirst(a, b scoredDoc) bool {
	if !a.doc.Created.Equal(b.doc.Created) {
		return a.doc.Created.After(b.doc.Created)
	}
	return a.doc.PID < b.doc.PID
}

// match reports whether every term occurs in the document metadata and
// returns the total number of occurrences.
func match(doc Document, terms []string) (int, bool) {
	if len(terms) == 0 {
		return 0, true
	}
	data, err := json.Marshal(doc.Metadata)
	if err != nil {
		slog.Warn("unsearchable document", slog.String("pid", doc.PID), slog.String("error", err.Error()))
		return 0, false
	}
	haystack := strings.ToLower(string(data))
	score := 0
	for _, term := range terms {
		n := strings.Count(haystack, term)
		if n == 0 {
			return 0, false
		}
		score += n
	}
	return score, true
}

func ownedBy(doc Document, owner int64) bool {
	return slices.Contains(doc.Owners, owner)
}
