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
	"encoding/json"
	"errors"
	"fmt"
)

const identifierColumns = `id, pid_type, pid_value, status, object_type, object_uuid, redirect_id, created, updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentifier(row rowScanner) (Identifier, error) {
	var (
		id                     Identifier
		status                 string
		objectType, objectUUID sql.NullString
		redirect               sql.NullInt64
		created, updated       int64
	)
	err := row.Scan(&id.ID, &id.PIDType, &id.PIDValue, &status, &objectType, &objectUUID, &redirect, &created, &updated)
	if err != nil {
		return Identifier{}, err
	}
	id.Status = Status(status)
	id.ObjectType = objectType.String
	id.ObjectUUID = objectUUID.String
	id.RedirectID = redirect.Int64
	id.Created = fromNanos(created)
	id.Updated = fromNanos(updated)
	return id, nil
}

// IdentifierByValue returns the identifier (pidType, value) in any status.
func (s *Store) IdentifierByValue(ctx context.Context, pidType, value string) (Identifier, error) {
	return identifierByValue(ctx, s.db, pidType, value)
}

// IdentifierByID returns the identifier with primary key id.
func (s *Store) IdentifierByID(ctx context.Context, id int64) (Identifier, error) {
	return identifierByID(ctx, s.db, id)
}

func identifierByValue(ctx context.Context, q queryer, pidType, value string) (Identifier, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+identifierColumns+` FROM pidstore_pid WHERE pid_type = ? AND pid_value = ?`,
		pidType, value)
	id, err := scanIdentifier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Identifier{}, fmt.Errorf("identifier %s:%s: %w", pidType, value, ErrNotFound)
	}
	if err != nil {
		return Identifier{}, fmt.Errorf("get identifier: %w", err)
	}
	return id, nil
}

func identifierByID(ctx context.Context, q queryer, pk int64) (Identifier, error) {
	row := q.QueryRowContext(ctx, `SELECT `+identifierColumns+` FROM pidstore_pid WHERE id = ?`, pk)
	id, err := scanIdentifier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Identifier{}, fmt.Errorf("identifier %d: %w", pk, ErrNotFound)
	}
	if err != nil {
		return Identifier{}, fmt.Errorf("get identifier: %w", err)
	}
	return id, nil
}

// Record returns the record row with the given UUID, including soft-deleted
// rows (Deleted set, Data nil).
func (s *Store) Record(ctx context.Context, id string) (Record, error) {
	return recordByID(ctx, s.db, id)
}

func recordByID(ctx context.Context, q queryer, id string) (Record, error) {
	var (
		rec              Record
		doc              sql.NullString
		created, updated int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, json, created, updated, version_id FROM records_metadata WHERE id = ?`, id,
	).Scan(&rec.ID, &doc, &created, &updated, &rec.VersionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	rec.Created = fromNanos(created)
	rec.Updated = fromNanos(updated)
	if !doc.Valid {
		rec.Deleted = true
		return rec, nil
	}
	if err := json.Unmarshal([]byte(doc.String), &rec.Data); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}

// VersionParent returns the lineage root of the identifier childID.
// ErrNotFound means the identifier has no parent relation.
func (s *Store) VersionParent(ctx context.Context, childID int64) (Identifier, error) {
	return versionParent(ctx, s.db, childID)
}

func versionParent(ctx context.Context, q queryer, childID int64) (Identifier, error) {
	row := q.QueryRowContext(ctx, `
		SELECT p.id, p.pid_type, p.pid_value, p.status, p.object_type, p.object_uuid,
		       p.redirect_id, p.created, p.updated
		FROM pidrelations_pidrelation r
		JOIN pidstore_pid p ON p.id = r.parent_id
		WHERE r.child_id = ? AND r.relation_type = ?
	`, childID, RelationVersion)
	id, err := scanIdentifier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Identifier{}, fmt.Errorf("parent of identifier %d: %w", childID, ErrNotFound)
	}
	if err != nil {
		return Identifier{}, fmt.Errorf("get version parent: %w", err)
	}
	return id, nil
}

// VersionChildren returns the members of the lineage rooted at parentID,
// oldest first. Records created at the same instant are ordered by
// pid_value. Tombstoned members are included.
func (s *Store) VersionChildren(ctx context.Context, parentID int64) ([]Version, error) {
	return versionChildren(ctx, s.db, parentID)
}

func versionChildren(ctx context.Context, q queryer, parentID int64) ([]Version, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.pid_type, p.pid_value, p.status, p.object_type, p.object_uuid,
		       p.redirect_id, p.created, p.updated, m.created, m.updated
		FROM pidrelations_pidrelation r
		JOIN pidstore_pid p ON p.id = r.child_id
		JOIN records_metadata m ON m.id = p.object_uuid
		WHERE r.parent_id = ? AND r.relation_type = ?
		ORDER BY m.created ASC, p.pid_value ASC
	`, parentID, RelationVersion)
	if err != nil {
		return nil, fmt.Errorf("query version children: %w", err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		var (
			v                      Version
			status                 string
			objectType, objectUUID sql.NullString
			redirect               sql.NullInt64
			pidCreated, pidUpdated int64
			recCreated, recUpdated int64
		)
		if err := rows.Scan(&v.Identifier.ID, &v.Identifier.PIDType, &v.Identifier.PIDValue,
			&status, &objectType, &objectUUID, &redirect, &pidCreated, &pidUpdated,
			&recCreated, &recUpdated); err != nil {
			return nil, fmt.Errorf("scan version child: %w", err)
		}
		v.Identifier.Status = Status(status)
		v.Identifier.ObjectType = objectType.String
		v.Identifier.ObjectUUID = objectUUID.String
		v.Identifier.RedirectID = redirect.Int64
		v.Identifier.Created = fromNanos(pidCreated)
		v.Identifier.Updated = fromNanos(pidUpdated)
		v.Created = fromNanos(recCreated)
		v.Updated = fromNanos(recUpdated)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version children: %w", err)
	}
	return versions, nil
}

// ListPIDValues returns the values of all identifiers of pidType in status,
// ordered by id. Used by bulk reindexing.
func (s *Store) ListPIDValues(ctx context.Context, pidType string, status Status) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pid_value FROM pidstore_pid WHERE pid_type = ? AND status = ? AND object_type = ? ORDER BY id`,
		pidType, string(status), ObjectTypeRecord)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return values, nil
}
