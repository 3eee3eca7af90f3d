package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/sirupsen/logrus"
)

// CacheHandler handles cache management requests
type CacheHandler struct {
	engine       services.EngineInterface
	cacheService services.CacheServiceInterface
	logger       *logrus.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(engine services.EngineInterface, cacheService services.CacheServiceInterface, logger *logrus.Logger) *CacheHandler {
	return &CacheHandler{
		engine:       engine,
		cacheService: cacheService,
		logger:       logger,
	}
}

// GetStats handles cache statistics request
// @Summary Get cache statistics
// @Description Get cache backend statistics and hit counters
// @Tags Cache
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} models.ErrorResponse
// @Router /cache/stats [get]
func (h *CacheHandler) GetStats(c *gin.Context) {
	requestID := c.GetString("request_id")

	stats, err := h.cacheService.GetStats(c.Request.Context())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to get cache statistics")

		errorResponse(c, http.StatusInternalServerError, "Internal server error", "Failed to retrieve cache statistics", "CACHE_STATS_ERROR")
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"stats":     stats,
		"timestamp": time.Now(),
		"health":    h.cacheService.Health(),
	})
}

// Delete drops the cached result of one query
// @Summary Delete a cached result
// @Description Delete the cached result of a target and identifier so the next query hits the portal
// @Tags Cache
// @Param target path string true "Target name"
// @Param identifier path string true "Query identifier"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /cache/{target}/{identifier} [delete]
func (h *CacheHandler) Delete(c *gin.Context) {
	requestID := c.GetString("request_id")

	q := models.Query{Target: c.Param("target"), Identifier: c.Param("identifier")}
	if _, err := h.engine.Resolve(&q); err != nil {
		queryError(c, err)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"target":     q.Target,
		"identifier": q.Identifier,
	})

	key := services.CacheKey(q.Target, q.Identifier)
	exists, err := h.cacheService.Exists(c.Request.Context(), key)
	if err != nil {
		log.WithError(err).Error("Failed to check cache key existence")
		errorResponse(c, http.StatusInternalServerError, "Internal server error", "Failed to check cache", "CACHE_CHECK_ERROR")
		return
	}
	if !exists {
		errorResponse(c, http.StatusNotFound, "Not found", "No cached result for "+q.Target+" "+q.Identifier, "NOT_IN_CACHE")
		return
	}

	if err := h.engine.Invalidate(c.Request.Context(), q.Target, q.Identifier); err != nil {
		log.WithError(err).Error("Failed to delete cached result")
		errorResponse(c, http.StatusInternalServerError, "Internal server error", "Failed to delete from cache", "CACHE_DELETE_ERROR")
		return
	}

	log.Info("Cached result deleted")
	c.JSON(http.StatusOK, map[string]interface{}{
		"message":    "Cached result deleted",
		"target":     q.Target,
		"identifier": q.Identifier,
		"timestamp":  time.Now(),
		"success":    true,
	})
}
