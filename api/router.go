// Package api exposes runs, cached records, health and metrics over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/charitybot/api/handler"
	"github.com/use-agent/charitybot/api/middleware"
	"github.com/use-agent/charitybot/cache"
	"github.com/use-agent/charitybot/config"
)

// Deps are the services the routes are served from.
type Deps struct {
	Runs       *handler.Runs
	Dispatcher handler.Dispatcher
	Records    *cache.Cache
	Limiters   *middleware.Limiters
	Gatherer   prometheus.Gatherer
	StartTime  time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(deps.Runs, deps.Dispatcher, cfg.Dispatch.Workers, deps.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	if deps.Limiters != nil {
		protected.Use(middleware.RateLimit(deps.Limiters))
	}

	protected.POST("/runs", handler.PostRun(deps.Runs))
	protected.GET("/runs/:id", handler.GetRun(deps.Runs))
	protected.GET("/records/:abn", handler.GetRecord(deps.Records))

	return r
}
