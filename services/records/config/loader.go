// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the records service configuration from b2share.yaml
// and B2SHARE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file name searched when no path is given.
	FileName = "b2share.yaml"

	// EnvPrefix prefixes environment overrides, e.g. B2SHARE_MAIL_HOST.
	EnvPrefix = "B2SHARE"
)

// Source is a loaded configuration that can be re-read when its file
// changes.
//
// # Thread Safety
//
// Not safe for concurrent use. Watch callbacks run on the watcher
// goroutine; the service only reads the values it is handed.
type Source struct {
	v      *viper.Viper
	logger *slog.Logger
}

// Open reads the configuration.
//
// # Description
//
// An explicit path must exist. Without one, FileName is searched in the
// working directory and /etc/b2share; when neither has it the defaults and
// environment apply.
func Open(path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/b2share")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read the config file: %w", err)
		}
		logger.Info("no config file found, using defaults and environment")
	}
	return &Source{v: v, logger: logger}, nil
}

// Load is Open followed by Config.
func Load(path string, logger *slog.Logger) (Config, error) {
	src, err := Open(path, logger)
	if err != nil {
		return Config{}, err
	}
	return src.Config()
}

// File returns the path of the file in use, or "" when running on
// defaults.
func (s *Source) File() string {
	return s.v.ConfigFileUsed()
}

// Config decodes and validates the current values.
func (s *Source) Config() (Config, error) {
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Watch calls onChange with the new configuration each time the file is
// written. Invalid edits are logged and skipped. Without a file Watch does
// nothing.
func (s *Source) Watch(onChange func(Config)) {
	if s.File() == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := s.Config()
		if err != nil {
			s.logger.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}
		s.logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	s.v.WatchConfig()
}

// WriteDefault writes DefaultConfig to path as YAML. An existing file is
// only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// setDefaults registers every scalar key so that AutomaticEnv can override
// it. Endpoints are a list and can only be set from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("storage.database", d.Storage.Database)
	v.SetDefault("storage.index_dir", d.Storage.IndexDir)
	v.SetDefault("endpoints", d.Endpoints)
	v.SetDefault("versions_route", d.VersionsRoute)
	v.SetDefault("mail.enabled", d.Mail.Enabled)
	v.SetDefault("mail.host", d.Mail.Host)
	v.SetDefault("mail.port", d.Mail.Port)
	v.SetDefault("mail.username", d.Mail.Username)
	v.SetDefault("mail.password", d.Mail.Password)
	v.SetDefault("mail.sender", d.Mail.Sender)
	v.SetDefault("mail.support_address", d.Mail.SupportAddress)
	v.SetDefault("rate_limit.every", d.RateLimit.Every)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
	v.SetDefault("logging.dir", d.Logging.Dir)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.trace_exporter", d.Telemetry.TraceExporter)
	v.SetDefault("telemetry.metric_exporter", d.Telemetry.MetricExporter)
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.otlp_insecure", d.Telemetry.OTLPInsecure)
}
