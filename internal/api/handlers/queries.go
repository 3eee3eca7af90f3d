package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/nexconsult/mca-verify/internal/services"
	"github.com/nexconsult/mca-verify/internal/worker"
	"github.com/sirupsen/logrus"
)

// JobQueue runs queries in the background
type JobQueue interface {
	Submit(ctx context.Context, q models.Query) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Stats() worker.Stats
}

// QueryHandler handles query submission and polling
type QueryHandler struct {
	engine services.EngineInterface
	jobs   JobQueue
	logger *logrus.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(engine services.EngineInterface, jobs JobQueue, logger *logrus.Logger) *QueryHandler {
	return &QueryHandler{
		engine: engine,
		jobs:   jobs,
		logger: logger,
	}
}

func errorResponse(c *gin.Context, status int, title, message, code string) {
	c.JSON(status, models.ErrorResponse{
		Error:     title,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

// queryError maps query validation errors to responses
func queryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownTarget):
		errorResponse(c, http.StatusBadRequest, "Unknown target", err.Error(), "UNKNOWN_TARGET")
	case errors.Is(err, services.ErrInvalidIdentifier):
		errorResponse(c, http.StatusBadRequest, "Invalid identifier", err.Error(), "INVALID_IDENTIFIER")
	default:
		errorResponse(c, http.StatusInternalServerError, "Internal server error", err.Error(), "INTERNAL_ERROR")
	}
}

// Submit queues a query
// @Summary Submit a query
// @Description Queue a verification and extraction query for a portal target. Poll the returned job for the result.
// @Tags Queries
// @Accept json
// @Produce json
// @Param request body models.QueryRequest true "Query"
// @Success 202 {object} models.Job
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /queries [post]
func (h *QueryHandler) Submit(c *gin.Context) {
	requestID := c.GetString("request_id")

	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request", err.Error(), "INVALID_REQUEST")
		return
	}

	q := models.Query{Target: req.Target, Identifier: req.Identifier, NoCache: req.NoCache}
	if _, err := h.engine.Resolve(&q); err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"target":     req.Target,
			"identifier": req.Identifier,
			"error":      err.Error(),
		}).Warn("Rejected query")
		queryError(c, err)
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), q)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to queue query")

		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
			errorResponse(c, http.StatusServiceUnavailable, "Service busy", "The query queue is full, try again later", "QUEUE_FULL")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "Internal server error", "Failed to queue query", "QUEUE_ERROR")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"job_id":     job.ID,
		"target":     q.Target,
		"identifier": q.Identifier,
	}).Info("Query queued")

	c.Header("Location", "/api/v1/queries/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

// Get returns a job
// @Summary Get a query job
// @Description Get the status of a queued query and, once done, its result
// @Tags Queries
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.Job
// @Failure 404 {object} models.ErrorResponse
// @Router /queries/{id} [get]
func (h *QueryHandler) Get(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, worker.ErrJobNotFound) {
			errorResponse(c, http.StatusNotFound, "Not found", "No job with id "+id, "JOB_NOT_FOUND")
			return
		}
		h.logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"job_id":     id,
			"error":      err.Error(),
		}).Error("Failed to read job")
		errorResponse(c, http.StatusInternalServerError, "Internal server error", "Failed to read job", "JOB_READ_ERROR")
		return
	}

	c.JSON(http.StatusOK, job)
}

// Stats returns queue and engine counters
// @Summary Query statistics
// @Description Get worker queue counters and query outcome totals
// @Tags Queries
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /queries/stats [get]
func (h *QueryHandler) Stats(c *gin.Context) {
	engine := h.engine.Health()
	c.JSON(http.StatusOK, gin.H{
		"worker":     h.jobs.Stats(),
		"runs":       engine["runs"],
		"cache_hits": engine["cache_hits"],
		"outcomes":   engine["outcomes"],
		"timestamp":  time.Now(),
	})
}
