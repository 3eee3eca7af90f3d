package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatsSource is anything that reports counters as a map
type StatsSource interface {
	GetStats() map[string]interface{}
}

// MetricsHandler handles metrics requests
type MetricsHandler struct {
	services HealthChecker
	limiter  StatsSource
	logger   *logrus.Logger
}

// NewMetricsHandler creates a new metrics handler. limiter may be nil.
func NewMetricsHandler(services HealthChecker, limiter StatsSource, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		services: services,
		limiter:  limiter,
		logger:   logger,
	}
}

// GetMetrics handles metrics request
// @Summary Get application metrics
// @Description Get runtime figures and the counters of every service
// @Tags Metrics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	h.logger.WithField("request_id", c.GetString("request_id")).Debug("Getting application metrics")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"system": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory_mb":  float64(m.Alloc) / 1024 / 1024,
			"gc_cycles":  m.NumGC,
			"cpu_count":  runtime.NumCPU(),
			"go_version": runtime.Version(),
		},
		"services":  h.services.Health(),
		"timestamp": time.Now(),
	}
	if h.limiter != nil {
		response["rate_limit"] = h.limiter.GetStats()
	}

	c.JSON(http.StatusOK, response)
}
