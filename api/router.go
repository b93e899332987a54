package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tukibridge/api/handler"
	"github.com/use-agent/tukibridge/api/middleware"
	"github.com/use-agent/tukibridge/cache"
	"github.com/use-agent/tukibridge/config"
	"github.com/use-agent/tukibridge/metrics"
	"github.com/use-agent/tukibridge/store"
)

// Deps are the collaborators the routes are served by.
type Deps struct {
	Fetcher   handler.Fetcher
	Restarter handler.Restarter
	Session   handler.SessionStatter
	Store     *store.Store
	Cache     *cache.Cache // optional
	Metrics   *metrics.Recorder
	Prober    handler.UpstreamProber // optional
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → Logger
//	Fetch:   RateLimit
//	Admin:   Auth (if enabled)
//
// Health and metrics stay outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, d Deps, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())

	var rec handler.FetchRecorder
	if d.Metrics != nil {
		rec = d.Metrics
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(d.Session, d.Prober, startTime))

	// Fetch: authorised per request by email + phone, rate limited per client.
	v1.POST("/fetch", middleware.RateLimit(cfg.RateLimit), handler.Fetch(d.Fetcher, d.Store, d.Cache, rec))

	admin := v1.Group("/admin")
	if cfg.Auth.Enabled {
		admin.Use(middleware.Auth(cfg.Auth.APIKeys))
	}

	// Customers
	admin.GET("/customers", handler.ListCustomers(d.Store))
	admin.POST("/customers", handler.CreateCustomer(d.Store))
	admin.PUT("/customers/:id", handler.UpdateCustomer(d.Store))
	admin.DELETE("/customers/:id", handler.DeleteCustomer(d.Store))
	admin.POST("/customers/bulk-delete", handler.BulkDeleteCustomers(d.Store))
	admin.POST("/customers/import", handler.ImportCustomers(d.Store))
	admin.GET("/stats", handler.Stats(d.Store))
	admin.GET("/fetches", handler.RecentFetches(d.Store))

	// Session
	admin.POST("/session/restart", handler.RestartSession(d.Restarter, d.Session))

	return r
}
