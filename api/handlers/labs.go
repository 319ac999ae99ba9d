package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sentini2/edusp/internal/session"
	"github.com/Sentini2/edusp/internal/tenant"
)

// LabHandler exposes read-only views of the live registry.
type LabHandler struct {
	registry *session.Registry
}

// NewLabHandler creates a new LabHandler.
func NewLabHandler(registry *session.Registry) *LabHandler {
	return &LabHandler{registry: registry}
}

// ListLabs handles GET /api/labs.
func (h *LabHandler) ListLabs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"labs": h.registry.Labs()})
}

// ListClients handles GET /api/labs/:lab/clients. The body is the same
// snapshot controllers receive in a clients event.
func (h *LabHandler) ListClients(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List(tenant.Resolve(c.Param("lab"))))
}

// Health handles GET /health.
func (h *LabHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"agents":      h.registry.AgentCount(),
		"controllers": h.registry.ControllerCount(),
	})
}

// RegisterRoutes registers the lab routes on a Gin router group.
func (h *LabHandler) RegisterRoutes(rg *gin.RouterGroup) {
	labs := rg.Group("/labs")
	{
		labs.GET("", h.ListLabs)
		labs.GET("/:lab/clients", h.ListClients)
	}
}
