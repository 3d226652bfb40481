// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the records service configuration.
type Config struct {
	// Server: HTTP listener and public URL
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage: database file and search index directory
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Endpoints: one REST root per persistent identifier type
	Endpoints []EndpointConfig `yaml:"endpoints" mapstructure:"endpoints"`

	// VersionsRoute is shared by all endpoints. Empty disables it.
	VersionsRoute string `yaml:"versions_route" mapstructure:"versions_route"`

	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

type ServerConfig struct {
	Address string `yaml:"address" mapstructure:"address"` // e.g. ":5000"
	BaseURL string `yaml:"base_url" mapstructure:"base_url"` // e.g. "https://b2share.eudat.eu/api"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Database string `yaml:"database" mapstructure:"database"`   // SQLite file
	IndexDir string `yaml:"index_dir" mapstructure:"index_dir"` // badger directory, empty for in-memory
}

// EndpointConfig describes one record REST endpoint.
type EndpointConfig struct {
	PIDType         string `yaml:"pid_type" mapstructure:"pid_type"`
	ListRoute       string `yaml:"list_route" mapstructure:"list_route"`
	ItemRoute       string `yaml:"item_route" mapstructure:"item_route"`
	SearchIndex     string `yaml:"search_index" mapstructure:"search_index"`
	DraftsIndex     string `yaml:"drafts_index,omitempty" mapstructure:"drafts_index"`
	MaxResultWindow int    `yaml:"max_result_window" mapstructure:"max_result_window"`
	DefaultPageSize int    `yaml:"default_page_size" mapstructure:"default_page_size"`
}

// MailConfig configures notification delivery. With Enabled false messages
// are logged and dropped.
type MailConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"` // prefer B2SHARE_MAIL_PASSWORD

	// Sender is the From address. Empty uses the requester's address.
	Sender string `yaml:"sender,omitempty" mapstructure:"sender"`

	// SupportAddress receives abuse reports. Reloaded on file change.
	SupportAddress string `yaml:"support_address" mapstructure:"support_address"`
}

// RateLimitConfig throttles the notification endpoints per client IP.
type RateLimitConfig struct {
	Every time.Duration `yaml:"every" mapstructure:"every"` // zero disables
	Burst int           `yaml:"burst" mapstructure:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
	Dir   string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
	TraceExporter  string `yaml:"trace_exporter" mapstructure:"trace_exporter"`   // otlp, stdout, none
	MetricExporter string `yaml:"metric_exporter" mapstructure:"metric_exporter"` // prometheus, stdout, none
	OTLPEndpoint   string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`     // e.g. "otel-collector:4317"
	OTLPInsecure   bool   `yaml:"otlp_insecure" mapstructure:"otlp_insecure"`
}

// DefaultConfig returns a single-endpoint configuration that serves
// records from the working directory.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":5000",
			BaseURL:         "http://localhost:5000",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Database: "b2share.db",
			IndexDir: "b2share-index",
		},
		Endpoints: []EndpointConfig{{
			PIDType:         "b2rec",
			ListRoute:       "/records/",
			ItemRoute:       "/records/:pid_value",
			SearchIndex:     "records",
			MaxResultWindow: 10000,
			DefaultPageSize: 10,
		}},
		VersionsRoute: "/records/:pid_value/versions",
		Mail: MailConfig{
			Port: 587,
		},
		RateLimit: RateLimitConfig{
			Every: 30 * time.Second,
			Burst: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "b2share",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
	}
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("%w: server.address is required", ErrInvalidConfig)
	}
	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: server.base_url %q is not an absolute URL", ErrInvalidConfig, c.Server.BaseURL)
		}
	}
	if c.Storage.Database == "" {
		return fmt.Errorf("%w: storage.database is required", ErrInvalidConfig)
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("%w: at least one endpoint is required", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		switch {
		case ep.PIDType == "":
			return fmt.Errorf("%w: endpoints[%d].pid_type is required", ErrInvalidConfig, i)
		case seen[ep.PIDType]:
			return fmt.Errorf("%w: pid type %q configured twice", ErrInvalidConfig, ep.PIDType)
		case ep.ListRoute == "" || ep.SearchIndex == "":
			return fmt.Errorf("%w: endpoints[%d] needs list_route and search_index", ErrInvalidConfig, i)
		case !strings.Contains(ep.ItemRoute, ":pid_value"):
			return fmt.Errorf("%w: endpoints[%d].item_route must contain :pid_value", ErrInvalidConfig, i)
		case ep.MaxResultWindow < 0 || ep.DefaultPageSize < 0:
			return fmt.Errorf("%w: endpoints[%d] has a negative window or page size", ErrInvalidConfig, i)
		}
		seen[ep.PIDType] = true
	}
	if c.VersionsRoute != "" && !strings.Contains(c.VersionsRoute, ":pid_value") {
		return fmt.Errorf("%w: versions_route must contain :pid_value", ErrInvalidConfig)
	}

	if c.Mail.Enabled && c.Mail.Host == "" {
		return fmt.Errorf("%w: mail.host is required when mail is enabled", ErrInvalidConfig)
	}
	if c.Mail.Port < 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("%w: mail.port %d out of range", ErrInvalidConfig, c.Mail.Port)
	}
	switch c.Telemetry.TraceExporter {
	case "", "none", "stdout":
	case "otlp":
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("%w: telemetry.otlp_endpoint is required for otlp traces", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown telemetry.trace_exporter %q", ErrInvalidConfig, c.Telemetry.TraceExporter)
	}
	switch c.Telemetry.MetricExporter {
	case "", "none", "stdout", "prometheus":
	default:
		return fmt.Errorf("%w: unknown telemetry.metric_exporter %q", ErrInvalidConfig, c.Telemetry.MetricExporter)
	}
	if c.RateLimit.Every > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("%w: rate_limit.burst must be at least 1", ErrInvalidConfig)
	}
	return nil
}
