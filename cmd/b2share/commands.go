// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/pkg/logging"
	"github.com/eudat/b2share/services/records"
	"github.com/eudat/b2share/services/records/accounts"
	"github.com/eudat/b2share/services/records/config"
	"github.com/eudat/b2share/services/records/store"
)

// cli holds the state shared by all subcommands.
type cli struct {
	configPath string
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	return (&cli{}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "b2share",
		Short:         "B2SHARE records service",
		Long:          `Serves the B2SHARE records REST API and administers its database and search index.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"Path to the config file (default: ./"+config.FileName+" or /etc/b2share/"+config.FileName+")")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	configCmd.AddCommand(c.configInitCmd())

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts and their API tokens",
	}
	usersCmd.AddCommand(c.usersAddCmd())

	root.AddCommand(c.serveCmd(), c.reindexCmd(), usersCmd, configCmd)
	return root
}

// load reads the configuration and builds the logger it describes. Callers
// defer closeLogger once load succeeds.
func (c *cli) load() (*config.Source, config.Config, error) {
	src, err := config.Open(c.configPath, slog.Default())
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := src.Config()
	if err != nil {
		return nil, config.Config{}, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, config.Config{}, err
	}
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "b2share",
		JSON:    cfg.Logging.JSON,
	})
	return src, cfg, nil
}

// closeLogger flushes and closes the log file opened by load. Commands
// defer it so the file is released on failure too.
func (c *cli) closeLogger() {
	if c.logger == nil {
		return
	}
	if err := c.logger.Close(); err != nil {
		slog.Warn("failed to close log file", "error", err)
	}
	c.logger = nil
}

// =============================================================================
// serve
// =============================================================================

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the records REST API",
		Long:  `Starts the HTTP server and blocks until interrupted. Changes to the support address in the config file are applied without a restart.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, cfg, err := c.load()
			if err != nil {
				return err
			}
			defer c.closeLogger()
			logger := c.logger.Slog()

			opts := extensions.ServiceOptions{AuditLogger: &extensions.SlogAuditLogger{Logger: logger}}
			svc, err := records.New(cfg, &opts, logger)
			if err != nil {
				return err
			}
			src.Watch(svc.ApplyConfig)
			return svc.Run(cmd.Context())
		},
	}
}

// =============================================================================
// reindex
// =============================================================================

func (c *cli) reindexCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search indexes from the database",
		Long:  `Re-projects every registered record into its endpoint's search index. The server must not be running against the same index directory.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := c.load()
			if err != nil {
				return err
			}
			defer c.closeLogger()
			svc, err := records.New(cfg, nil, c.logger.Slog())
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.Reindex(cmd.Context(), concurrency)
			if err != nil {
				return fmt.Errorf("reindex stopped after %d records: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d records\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Number of records indexed in parallel")
	return cmd
}

// =============================================================================
// users add
// =============================================================================

func (c *cli) usersAddCmd() *cobra.Command {
	var (
		email string
		roles []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account and print its API token",
		Long:  `Creates an account and prints a new API token. Only the token's hash is stored, so the token cannot be shown again.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := c.load()
			if err != nil {
				return err
			}
			defer c.closeLogger()
			st, err := store.Open(cfg.Storage.Database, store.WithLogger(c.logger.Slog()))
			if err != nil {
				return err
			}
			defer st.Close()

			token, hash, err := accounts.NewToken()
			if err != nil {
				return err
			}
			acc, err := st.CreateAccount(cmd.Context(), email, roles, hash)
			if err != nil {
				return fmt.Errorf("create account %s: %w", email, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created account %d for %s\n", acc.ID, acc.Email)
			fmt.Fprintf(out, "token: %s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account e-mail address")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant, repeatable (e.g. "+extensions.RoleAdmin+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// =============================================================================
// config init
// =============================================================================

func (c *cli) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
