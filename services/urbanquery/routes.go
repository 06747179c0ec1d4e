// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package urbanquery

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all UrbanQuery routes with the router.
//
// Description:
//
//	Registers all /v1/* endpoints with the given Gin router group. The
//	router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Core Endpoints:
//
//	POST /v1/query - Resolve a natural language question
//	GET  /v1/status - Service status and stage configuration
//	GET  /v1/config - Non-secret runtime configuration
//
// Cache Administration:
//
//	GET  /v1/cache/stats - Cache statistics
//	POST /v1/cache/clear - Empty the response cache
//
// Health Endpoints:
//
//	GET  /v1/health - Liveness check
//	GET  /v1/ready - Readiness check (gated on engine warmup)
//
// Debug Endpoints:
//
//	GET  /v1/debug/cache - Cache inspection
//	GET  /v1/debug/journal - Recent journal records
//
// Example:
//
//	processor := urbanquery.NewProcessor(settings, eng)
//	handlers := urbanquery.NewHandlers(processor)
//
//	v1 := router.Group("/v1")
//	urbanquery.RegisterRoutes(v1, handlers, nil)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, queryMiddleware gin.HandlerFunc) {
	if queryMiddleware != nil {
		rg.POST("/query", queryMiddleware, handlers.HandleQuery)
	} else {
		rg.POST("/query", handlers.HandleQuery)
	}

	rg.GET("/status", handlers.HandleStatus)
	rg.GET("/config", handlers.HandleConfig)

	cacheGroup := rg.Group("/cache")
	{
		cacheGroup.GET("/stats", handlers.HandleCacheStats)
		cacheGroup.POST("/clear", handlers.HandleCacheClear)
	}

	rg.GET("/health", handlers.HandleHealth)
	rg.GET("/ready", handlers.HandleReady)

	debug := rg.Group("/debug")
	{
		debug.GET("/cache", handlers.HandleDebugCache)
		debug.GET("/journal", handlers.HandleDebugJournal)
	}
}
