// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NewPIDValue returns a random UUID in 32 character hex form.
func NewPIDValue() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// CreateParams describes a record to create.
type CreateParams struct {
	// PIDType is the identifier type of the endpoint, e.g. "b2rec".
	PIDType string

	// PIDValue is the minted identifier value of the new record.
	PIDValue string

	// RecordID is the record UUID.
	RecordID string

	// Data is the metadata document. Must not be nil.
	Data map[string]any

	// VersionOf is the identifier id of the version the new record follows.
	// Zero starts a new lineage.
	VersionOf int64
}

// CreateRecord stores a new record with its identifier and lineage
// membership in one transaction.
//
// # Description
//
// The first version of a lineage also creates the lineage root identifier
// (status M). In every case the root's redirect moves to the new version.
// When VersionOf refers to an identifier that has no lineage yet, a root is
// created for it and both records become members.
//
// # Outputs
//
//   - Change: The committed identifier, record and lineage root id.
//   - error: ErrDuplicate when the identifier or record already exists,
//     ErrNotFound when VersionOf does not exist.
func (s *Store) CreateRecord(ctx context.Context, p CreateParams) (Change, error) {
	if p.Data == nil {
		return Change{}, errors.New("create record: nil data")
	}
	doc, err := json.Marshal(p.Data)
	if err != nil {
		return Change{}, fmt.Errorf("create record: encode: %w", err)
	}
	now := s.now()

	var change Change
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := lineageRoot(ctx, tx, p, toNanos(now))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records_metadata (id, json, created, updated, version_id) VALUES (?, ?, ?, ?, 1)`,
			p.RecordID, string(doc), toNanos(now), toNanos(now),
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("record %s: %w", p.RecordID, ErrDuplicate)
			}
			return fmt.Errorf("insert record: %w", err)
		}

		ident, err := insertIdentifier(ctx, tx, Identifier{
			PIDType:    p.PIDType,
			PIDValue:   p.PIDValue,
			Status:     StatusRegistered,
			ObjectType: ObjectTypeRecord,
			ObjectUUID: p.RecordID,
		}, toNanos(now))
		if err != nil {
			return err
		}
		if err := relate(ctx, tx, parent.ID, ident.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pidstore_pid SET status = ?, redirect_id = ?, updated = ? WHERE id = ?`,
			string(StatusRedirected), ident.ID, toNanos(now), parent.ID,
		); err != nil {
			return fmt.Errorf("redirect lineage root: %w", err)
		}

		rec, err := recordByID(ctx, tx, p.RecordID)
		if err != nil {
			return err
		}
		change = Change{Kind: ChangeCreated, Identifier: ident, Record: rec, ParentID: parent.ID}
		return nil
	})
	if err != nil {
		return Change{}, fmt.Errorf("create record: %w", err)
	}

	s.notify(ctx, change)
	return change, nil
}

// DeleteRecord soft-deletes the record behind (pidType, value).
//
// # Description
//
// The identifier becomes a tombstone, the record json is cleared and its
// version token incremented. The version token is re-checked inside the
// transaction. The lineage root is re-pointed at the newest remaining live
// version, or tombstoned when none remains.
//
// # Outputs
//
//   - Change: The tombstoned identifier and the cleared record.
//   - error: ErrNotFound when no live record exists, ErrVersionMismatch when
//     versionID is stale.
func (s *Store) DeleteRecord(ctx context.Context, pidType, value string, versionID int) (Change, error) {
	now := toNanos(s.now())

	var change Change
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ident, err := identifierByValue(ctx, tx, pidType, value)
		if err != nil {
			return err
		}
		if !ident.IsRegistered() || ident.ObjectType != ObjectTypeRecord {
			return fmt.Errorf("identifier %s:%s: %w", pidType, value, ErrNotFound)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE records_metadata
			SET json = NULL, version_id = version_id + 1, updated = ?
			WHERE id = ? AND version_id = ? AND json IS NOT NULL
		`, now, ident.ObjectUUID, versionID)
		if err != nil {
			return fmt.Errorf("clear record: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("clear record: %w", err)
		} else if n == 0 {
			return fmt.Errorf("record %s at version %d: %w", ident.ObjectUUID, versionID, ErrVersionMismatch)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE pidstore_pid SET status = ?, updated = ? WHERE id = ?`,
			string(StatusDeleted), now, ident.ID,
		); err != nil {
			return fmt.Errorf("tombstone identifier: %w", err)
		}
		ident.Status = StatusDeleted
		ident.Updated = fromNanos(now)

		parent, err := versionParent(ctx, tx, ident.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			if err := repointRoot(ctx, tx, parent.ID, now); err != nil {
				return err
			}
		}

		rec, err := recordByID(ctx, tx, ident.ObjectUUID)
		if err != nil {
			return err
		}
		change = Change{Kind: ChangeDeleted, Identifier: ident, Record: rec, ParentID: parent.ID}
		return nil
	})
	if err != nil {
		return Change{}, fmt.Errorf("delete record: %w", err)
	}

	s.notify(ctx, change)
	return change, nil
}

// lineageRoot returns the root the new record joins, creating it when the
// lineage does not exist yet.
func lineageRoot(ctx context.Context, tx *sql.Tx, p CreateParams, now int64) (Identifier, error) {
	if p.VersionOf == 0 {
		return createRoot(ctx, tx, p.PIDType, now)
	}
	prev, err := identifierByID(ctx, tx, p.VersionOf)
	if err != nil {
		return Identifier{}, err
	}
	parent, err := versionParent(ctx, tx, prev.ID)
	if !errors.Is(err, ErrNotFound) {
		return parent, err
	}
	parent, err = createRoot(ctx, tx, p.PIDType, now)
	if err != nil {
		return Identifier{}, err
	}
	return parent, relate(ctx, tx, parent.ID, prev.ID)
}

// createRoot inserts a lineage root under a fresh random pid value.
func createRoot(ctx context.Context, tx *sql.Tx, pidType string, now int64) (Identifier, error) {
	return insertIdentifier(ctx, tx, Identifier{
		PIDType:  pidType,
		PIDValue: NewPIDValue(),
		Status:   StatusRedirected,
	}, now)
}

func insertIdentifier(ctx context.Context, tx *sql.Tx, id Identifier, now int64) (Identifier, error) {
	var objectType, objectUUID any
	if id.ObjectType != "" {
		objectType = id.ObjectType
		objectUUID = id.ObjectUUID
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO pidstore_pid (pid_type, pid_value, status, object_type, object_uuid, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.PIDType, id.PIDValue, string(id.Status), objectType, objectUUID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Identifier{}, fmt.Errorf("identifier %s:%s: %w", id.PIDType, id.PIDValue, ErrDuplicate)
		}
		return Identifier{}, fmt.Errorf("insert identifier: %w", err)
	}
	id.ID, err = res.LastInsertId()
	if err != nil {
		return Identifier{}, fmt.Errorf("insert identifier: %w", err)
	}
	id.Created = fromNanos(now)
	id.Updated = id.Created
	return id, nil
}

func relate(ctx context.Context, tx *sql.Tx, parentID, childID int64) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pidrelations_pidrelation (parent_id, child_id, relation_type) VALUES (?, ?, ?)`,
		parentID, childID, RelationVersion,
	); err != nil {
		return fmt.Errorf("insert version relation: %w", err)
	}
	return nil
}

// repointRoot redirects the lineage root to its newest live member, or
// tombstones it when every member is deleted.
func repointRoot(ctx context.Context, tx *sql.Tx, parentID, now int64) error {
	var latest int64
	err := tx.QueryRowContext(ctx, `
		SELECT p.id
		FROM pidrelations_pidrelation r
		JOIN pidstore_pid p ON p.id = r.child_id
		JOIN records_metadata m ON m.id = p.object_uuid
		WHERE r.parent_id = ? AND r.relation_type = ? AND p.status = ?
		ORDER BY m.created DESC, p.pid_value DESC
		LIMIT 1
	`, parentID, RelationVersion, string(StatusRegistered)).Scan(&latest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`UPDATE pidstore_pid SET status = ?, updated = ? WHERE id = ?`,
			string(StatusDeleted), now, parentID)
	case err != nil:
		return fmt.Errorf("find latest version: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE pidstore_pid SET redirect_id = ?, updated = ? WHERE id = ?`,
			latest, now, parentID)
	}
	if err != nil {
		return fmt.Errorf("repoint lineage root: %w", err)
	}
	return nil
}
