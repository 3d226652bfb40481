// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command b2share runs and administers the B2SHARE records service.
//
// # Usage
//
//	# Write a starter configuration
//	b2share config init
//
//	# Create an administrator and print its API token
//	b2share users add --email admin@example.org --role admin
//
//	# Serve the REST API
//	b2share serve --config b2share.yaml
//
//	# Rebuild the search index from the database
//	b2share reindex
//
// Every configuration key can be overridden from the environment with the
// B2SHARE_ prefix, e.g. B2SHARE_MAIL_PASSWORD.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
