// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"log/slog"
)

// ChangeKind identifies the mutation an Observer is told about.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota + 1
	ChangeDeleted
)

// String returns "created" or "deleted".
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change describes a committed mutation.
type Change struct {
	Kind       ChangeKind
	Identifier Identifier
	Record     Record

	// ParentID is the lineage root identifier id, 0 if the record has none.
	ParentID int64
}

// Observer is notified after a mutation commits.
//
// # Description
//
// Observers run synchronously in subscription order on the goroutine that
// performed the mutation. A returned error or a panic is logged and does
// not affect the committed change or the remaining observers.
type Observer interface {
	RecordChanged(ctx context.Context, change Change) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change) error

// RecordChanged calls f.
func (f ObserverFunc) RecordChanged(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Subscribe registers obs for post-commit notifications.
func (s *Store) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Store) notify(ctx context.Context, change Change) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for i, obs := range observers {
		if err := s.callObserver(ctx, obs, change); err != nil {
			s.logger.WarnContext(ctx, "record observer failed",
				slog.Int("observer", i),
				slog.String("change", change.Kind.String()),
				slog.String("pid_value", change.Identifier.PIDValue),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Store) callObserver(ctx context.Context, obs Observer, change Change) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return obs.RecordChanged(ctx, change)
}
