// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package records assembles the B2SHARE records service.
//
// The service wires the relational store, the search index, the
// notification dispatcher and one REST resource per configured endpoint
// behind a gin router.
//
// # Extension Points
//
// Callers may inject their own implementations via extensions.ServiceOptions:
//   - AuthProvider: token validation. Default: account API tokens from the store
//   - Permissions: per action permission strategies
//   - AuditLogger: record and notification audit events
//
// # Usage
//
//	cfg, err := config.Load("b2share.yaml", logger)
//	if err != nil {
//	    return err
//	}
//	svc, err := records.New(cfg, nil, logger)
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/metric"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/accounts"
	"github.com/eudat/b2share/services/records/config"
	"github.com/eudat/b2share/services/records/handlers"
	"github.com/eudat/b2share/services/records/index"
	"github.com/eudat/b2share/services/records/middleware"
	"github.com/eudat/b2share/services/records/notify"
	"github.com/eudat/b2share/services/records/observability"
	"github.com/eudat/b2share/services/records/pid"
	"github.com/eudat/b2share/services/records/resource"
	"github.com/eudat/b2share/services/records/routes"
	"github.com/eudat/b2share/services/records/store"
	"github.com/eudat/b2share/services/records/versioning"
)

// Service is the assembled records service.
//
// # Thread Safety
//
// Safe for concurrent use after New returns. Run is called at most once.
type Service interface {
	// Run serves HTTP until ctx is cancelled, then shuts down gracefully
	// within the configured timeout and releases all resources.
	Run(ctx context.Context) error

	// Router returns the gin engine. Used by tests.
	Router() *gin.Engine

	// Store returns the relational store. Used by the CLI.
	Store() *store.Store

	// Reindex rebuilds the search indexes from the store.
	Reindex(ctx context.Context, concurrency int) (int, error)

	// ApplyConfig applies the reloadable part of cfg: the support address.
	ApplyConfig(cfg config.Config)

	// Close releases resources without serving. Run calls it on exit.
	Close() error
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config     config.Config
	opts       extensions.ServiceOptions
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	telemetry  *observability.Telemetry
	reloads    metric.Int64Counter
	store      *store.Store
	index      *index.Index
	indexer    *index.Indexer
	dispatcher *notify.Dispatcher
	router     *gin.Engine
}

// New creates the service from cfg.
//
// # Description
//
// New opens the store and the search index, subscribes the indexer to
// store changes, installs telemetry, and registers one resource per
// endpoint. The first endpoint serves the shared versions route.
//
// # Inputs
//
//   - cfg: Validated configuration.
//   - opts: Extension options. Nil uses store backed token authentication
//     and the default permission policy.
//   - logger: Nil uses slog.Default().
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if any component fails to initialize. Components
//     opened before the failure are closed.
func New(cfg config.Config, opts *extensions.ServiceOptions, logger *slog.Logger) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &service{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = observability.NewMetrics(s.registry)

	if err := s.initTelemetry(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var err error
	s.store, err = store.Open(cfg.Storage.Database, store.WithLogger(logger))
	if err != nil {
		s.cleanup()
		return nil, err
	}

	if err := s.initIndex(); err != nil {
		s.cleanup()
		return nil, err
	}

	if opts != nil {
		s.opts = *opts
	}
	if s.opts.AuthProvider == nil {
		s.opts.AuthProvider = accounts.NewTokenProvider(s.store)
	}
	s.opts = s.opts.Normalize()

	if err := s.initDispatcher(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Store() *store.Store { return s.store }

func (s *service) Close() error { return s.cleanup() }

func (s *service) ApplyConfig(cfg config.Config) {
	prev := s.dispatcher.SupportAddress()
	s.dispatcher.SetSupportAddress(cfg.Mail.SupportAddress)
	if s.reloads != nil {
		s.reloads.Add(context.Background(), 1)
	}
	if prev != s.dispatcher.SupportAddress() {
		s.logger.Info("support address changed", "support_address", s.dispatcher.SupportAddress())
	}
}

func (s *service) Reindex(ctx context.Context, concurrency int) (int, error) {
	return s.indexer.Reindex(ctx, concurrency)
}

// Run serves until ctx is done.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:              s.config.Server.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting records server", "address", srv.Addr, "base_url", s.config.Server.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("records server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down records server", "timeout", s.config.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

func (s *service) initTelemetry() error {
	tel := s.config.Telemetry
	t, err := observability.InitTelemetry(context.Background(), observability.TelemetryConfig{
		ServiceName:    tel.ServiceName,
		ServiceVersion: handlers.ServiceVersion,
		TraceExporter:  tel.TraceExporter,
		MetricExporter: tel.MetricExporter,
		OTLPEndpoint:   tel.OTLPEndpoint,
		OTLPInsecure:   tel.OTLPInsecure,
		Registerer:     s.registry,
	})
	if err != nil {
		return err
	}
	s.telemetry = t

	s.reloads, err = t.Meter(observability.TracerName).Int64Counter("b2share.config.reloads",
		metric.WithDescription("Configuration reloads applied"))
	if err != nil {
		s.logger.Warn("config reload counter unavailable", "error", err)
	}
	return nil
}

func (s *service) initIndex() error {
	var err error
	if s.config.Storage.IndexDir == "" {
		s.index, err = index.OpenInMemory()
	} else {
		icfg := index.DefaultConfig()
		icfg.Path = s.config.Storage.IndexDir
		icfg.Logger = s.logger
		s.index, err = index.Open(icfg)
	}
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}

	names := make(map[string]string, len(s.config.Endpoints))
	for _, ep := range s.config.Endpoints {
		names[ep.PIDType] = ep.SearchIndex
	}
	s.indexer = index.NewIndexer(s.index, s.store, names,
		index.WithIndexerLogger(s.logger),
		index.WithIndexerMetrics(s.metrics))
	s.store.Subscribe(s.indexer)
	return nil
}

func (s *service) initDispatcher() error {
	mc := s.config.Mail
	var mailer notify.Mailer = &notify.LogMailer{Logger: s.logger}
	if mc.Enabled {
		smtp, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     mc.Host,
			Port:     mc.Port,
			Username: mc.Username,
			Password: mc.Password,
		})
		if err != nil {
			return fmt.Errorf("configure smtp: %w", err)
		}
		mailer = smtp
	} else {
		s.logger.Warn("mail delivery disabled, notifications are logged only")
	}

	s.dispatcher = notify.NewDispatcher(mailer, s.store, notify.DispatcherConfig{
		Sender:         mc.Sender,
		SupportAddress: mc.SupportAddress,
	}, notify.WithLogger(s.logger), notify.WithMetrics(s.metrics))
	return nil
}

func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(s.config.Telemetry.ServiceName, otelgin.WithTracerProvider(s.telemetry.TracerProvider())),
		middleware.RequestID(),
		middleware.Metrics(s.metrics, s.logger),
	)

	var eps []routes.Endpoint
	var versions *handlers.Handlers
	for i, ep := range s.config.Endpoints {
		res := resource.New(resource.Endpoint{
			PIDType:         ep.PIDType,
			ListRoute:       ep.ListRoute,
			ItemRoute:       ep.ItemRoute,
			SearchIndex:     ep.SearchIndex,
			DraftsIndex:     ep.DraftsIndex,
			MaxResultWindow: ep.MaxResultWindow,
			DefaultPageSize: ep.DefaultPageSize,
		}, resource.Deps{
			Resolver: pid.NewResolver(s.store, ep.PIDType),
			Store:    s.store,
			Search:   s.index,
			Notifier: s.dispatcher,
			Versions: versioning.NewReader(s.store, ep.PIDType),
		},
			resource.WithPermissions(s.opts.Permissions),
			resource.WithAudit(s.opts.AuditLogger),
			resource.WithMetrics(s.metrics),
			resource.WithLogger(s.logger.With("pid_type", ep.PIDType)),
		)

		links := handlers.Links{
			BaseURL:   s.config.Server.BaseURL,
			ListRoute: ep.ListRoute,
			ItemRoute: ep.ItemRoute,
		}
		if i == 0 {
			links.VersionsRoute = s.config.VersionsRoute
		}
		h := handlers.NewHandlers(res, links, s.logger)
		if i == 0 {
			versions = h
		}
		eps = append(eps, routes.Endpoint{Handlers: h, ListRoute: ep.ListRoute, ItemRoute: ep.ItemRoute})
	}

	routes.SetupRoutes(s.router, routes.Options{
		Endpoints:        eps,
		VersionsRoute:    s.config.VersionsRoute,
		VersionsHandlers: versions,
		AuthProvider:     s.opts.AuthProvider,
		NotifyLimiter: middleware.NewClientLimiter(middleware.RateLimitConfig{
			Every: s.config.RateLimit.Every,
			Burst: s.config.RateLimit.Burst,
		}),
		Health:  handlers.HealthCheck(s.store),
		Metrics: promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
	})
}

// cleanup releases everything New opened. Safe to call more than once.
func (s *service) cleanup() error {
	var errs []error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
		s.index = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		s.telemetry = nil
	}
	return errors.Join(errs...)
}
