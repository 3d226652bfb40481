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
	"errors"
	"fmt"
	"strings"
)

// CreateAccount inserts an active account. tokenHash may be empty for
// accounts that never authenticate through the API.
func (s *Store) CreateAccount(ctx context.Context, email string, roles []string, tokenHash string) (Account, error) {
	now := s.now()
	var hash any
	if tokenHash != "" {
		hash = tokenHash
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts_user (email, active, roles, token_hash, created) VALUES (?, 1, ?, ?, ?)`,
		email, strings.Join(roles, ","), hash, toNanos(now))
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, fmt.Errorf("account %s: %w", email, ErrDuplicate)
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return Account{ID: id, Email: email, Active: true, Roles: roles, Created: fromNanos(toNanos(now))}, nil
}

// AccountByTokenHash returns the active account owning tokenHash.
func (s *Store) AccountByTokenHash(ctx context.Context, tokenHash string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, active, roles, created FROM accounts_user WHERE token_hash = ? AND active = 1`,
		tokenHash)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account: %w", ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// AccountEmails returns the e-mail addresses of the active accounts among
// ids, in id order. Unknown ids are skipped.
func (s *Store) AccountEmails(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT email FROM accounts_user WHERE active = 1 AND id IN (`+placeholders+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query account emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan account email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account emails: %w", err)
	}
	return emails, nil
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		acc     Account
		active  int
		roles   string
		created int64
	)
	if err := row.Scan(&acc.ID, &acc.Email, &active, &roles, &created); err != nil {
		return Account{}, err
	}
	acc.Active = active == 1
	if roles != "" {
		acc.Roles = strings.Split(roles, ",")
	}
	acc.Created = fromNanos(created)
	return acc, nil
}
