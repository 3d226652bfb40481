// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package accounts authenticates API tokens against the account table.
package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/store"
)

// tokenBytes is the entropy of a generated token.
const tokenBytes = 32

// Directory is the account storage used by TokenProvider.
type Directory interface {
	AccountByTokenHash(ctx context.Context, tokenHash string) (store.Account, error)
}

// TokenProvider validates opaque bearer tokens.
//
// # Description
//
// Tokens are never stored. The provider hashes the presented token with
// SHA-256 and looks the hash up among active accounts. The empty token is
// the anonymous caller.
//
// # Thread Safety
//
// Safe for concurrent use if the Directory is.
type TokenProvider struct {
	dir Directory
}

// NewTokenProvider creates a TokenProvider.
func NewTokenProvider(dir Directory) *TokenProvider {
	return &TokenProvider{dir: dir}
}

// Validate implements extensions.AuthProvider.
func (p *TokenProvider) Validate(ctx context.Context, token string) (*extensions.AuthInfo, error) {
	if token == "" {
		return nil, nil
	}
	acc, err := p.dir.AccountByTokenHash(ctx, HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, extensions.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("look up token: %w", err)
	}
	return &extensions.AuthInfo{
		UserID: strconv.FormatInt(acc.ID, 10),
		Email:  acc.Email,
		Roles:  acc.Roles,
	}, nil
}

// HashToken returns the hex SHA-256 digest stored for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewToken returns a random token and the hash to store for it.
func NewToken() (token, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

var _ extensions.AuthProvider = (*TokenProvider)(nil)
