package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"telegram-relay-go/internal/metrics"
	"telegram-relay-go/internal/supervisor"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db         *gorm.DB
	supervisor *supervisor.Supervisor
	metrics    *metrics.Metrics
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, sup *supervisor.Supervisor, m *metrics.Metrics) *Handlers {
	return &Handlers{db: db, supervisor: sup, metrics: m}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/mappings", h.GetMappings)
		api.POST("/mappings", h.CreateMapping)
		api.GET("/mappings/:id", h.GetMapping)
		api.PUT("/mappings/:id", h.UpdateMapping)
		api.DELETE("/mappings/:id", h.DeleteMapping)
		api.PATCH("/mappings/:id/enable", h.EnableMapping)
		api.PATCH("/mappings/:id/disable", h.DisableMapping)

		api.GET("/logs", h.GetLogs)
		api.GET("/logs/:id", h.GetLog)

		api.GET("/workers", h.GetWorkers)
		api.POST("/workers/start", h.StartWorker)
		api.POST("/workers/restart", h.RestartWorkers)
		api.POST("/workers/:id/stop", h.StopWorker)
	}
}
