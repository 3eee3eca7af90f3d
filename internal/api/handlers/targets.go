package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/mca-verify/internal/services"
)

// TargetHandler lists the supported portal targets
type TargetHandler struct {
	engine services.EngineInterface
}

// NewTargetHandler creates a new target handler
func NewTargetHandler(engine services.EngineInterface) *TargetHandler {
	return &TargetHandler{engine: engine}
}

// List returns the supported targets
// @Summary List targets
// @Description List the portal pages a query can target, with their identifier kind and export columns
// @Tags Targets
// @Produce json
// @Success 200 {array} models.TargetInfo
// @Router /targets [get]
func (h *TargetHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Targets())
}
