// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eudat/b2share/pkg/extensions"
	"github.com/eudat/b2share/services/records/handlers"
	"github.com/eudat/b2share/services/records/middleware"
)

// Endpoint is one record REST root.
type Endpoint struct {
	Handlers  *handlers.Handlers
	ListRoute string
	ItemRoute string
}

// Options configures SetupRoutes.
type Options struct {
	// Endpoints are registered in order.
	Endpoints []Endpoint

	// VersionsRoute is registered once and served by VersionsHandlers.
	// Empty disables the version listing.
	VersionsRoute    string
	VersionsHandlers *handlers.Handlers

	// AuthProvider authenticates API requests. Nil means NopAuthProvider.
	AuthProvider extensions.AuthProvider

	// NotifyLimiter throttles the abuse and access request endpoints per
	// client. Nil disables throttling.
	NotifyLimiter *middleware.ClientLimiter

	// Health serves /health.
	Health gin.HandlerFunc

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler
}

// SetupRoutes registers the service routes on router.
func SetupRoutes(router *gin.Engine, opts Options) {
	if opts.Health != nil {
		router.GET("/health", opts.Health)
	}
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	provider := opts.AuthProvider
	if provider == nil {
		provider = &extensions.NopAuthProvider{}
	}
	api := router.Group("", middleware.Auth(provider))

	notifyChain := []gin.HandlerFunc{}
	if opts.NotifyLimiter != nil {
		notifyChain = append(notifyChain, middleware.RateLimit(opts.NotifyLimiter))
	}

	for _, ep := range opts.Endpoints {
		h := ep.Handlers
		api.GET(ep.ListRoute, h.HandleSearch)
		api.POST(ep.ListRoute, h.HandleCreate)

		api.GET(ep.ItemRoute, h.HandleGet)
		api.PUT(ep.ItemRoute, h.HandlePut)
		api.DELETE(ep.ItemRoute, h.HandleDelete)

		api.POST(ep.ItemRoute+"/abuse", append(notifyChain, h.HandleAbuse)...)
		api.POST(ep.ItemRoute+"/accessrequests", append(notifyChain, h.HandleAccessRequest)...)
	}

	if opts.VersionsRoute != "" && opts.VersionsHandlers != nil {
		api.GET(opts.VersionsRoute, opts.VersionsHandlers.HandleVersions)
	}
}
