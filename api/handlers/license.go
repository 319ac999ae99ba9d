package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Sentini2/edusp/internal/license"
	"github.com/Sentini2/edusp/internal/model"
)

// LicenseHandler handles HTTP requests for license management.
type LicenseHandler struct {
	service    *license.Service
	adminToken string
}

// NewLicenseHandler creates a new LicenseHandler. A non-empty adminToken is
// required as a bearer token on every route except validate.
func NewLicenseHandler(service *license.Service, adminToken string) *LicenseHandler {
	return &LicenseHandler{
		service:    service,
		adminToken: adminToken,
	}
}

// IssueLicenseRequest represents the request body for issuing a license.
type IssueLicenseRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// ValidateLicenseRequest represents the request body for validating a key.
type ValidateLicenseRequest struct {
	Key        string `json:"key" binding:"required"`
	HardwareID string `json:"hwid"`
}

// requireAdmin checks the bearer token when one is configured.
func (h *LicenseHandler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Admin token required")
			return
		}
		c.Next()
	}
}

// Issue handles POST /api/licenses.
func (h *LicenseHandler) Issue(c *gin.Context) {
	var req IssueLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	lic, err := h.service.Issue(c.Request.Context(), model.LicenseKind(req.Kind))
	if err != nil {
		if errors.Is(err, model.ErrUnknownKind) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue license: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, lic)
}

// List handles GET /api/licenses.
func (h *LicenseHandler) List(c *gin.Context) {
	licenses, err := h.service.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list licenses: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, licenses)
}

// Revoke handles DELETE /api/licenses/:key.
func (h *LicenseHandler) Revoke(c *gin.Context) {
	key := c.Param("key")
	if err := h.service.Revoke(c.Request.Context(), key); err != nil {
		if errors.Is(err, model.ErrLicenseNotFound) {
			sendError(c, http.StatusNotFound, "LICENSE_NOT_FOUND", "License "+key+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke license: "+err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleBan handles POST /api/licenses/:key/ban.
func (h *LicenseHandler) ToggleBan(c *gin.Context) {
	key := c.Param("key")
	banned, err := h.service.ToggleBan(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, model.ErrLicenseNotFound) {
			sendError(c, http.StatusNotFound, "LICENSE_NOT_FOUND", "License "+key+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to toggle ban: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "banned": banned})
}

// Validate handles POST /api/licenses/validate.
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req ValidateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	v, err := h.service.Validate(c.Request.Context(), req.Key, req.HardwareID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, v)
	case errors.Is(err, model.ErrLicenseExpired):
		sendError(c, http.StatusForbidden, "LICENSE_EXPIRED", err.Error())
	case errors.Is(err, model.ErrLicenseInvalid):
		sendError(c, http.StatusForbidden, "LICENSE_INVALID", err.Error())
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate license: "+err.Error())
	}
}

// RegisterRoutes registers the license routes on a Gin router group.
func (h *LicenseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	licenses := rg.Group("/licenses")
	{
		licenses.POST("/validate", h.Validate)

		admin := licenses.Group("", h.requireAdmin())
		admin.POST("", h.Issue)
		admin.GET("", h.List)
		admin.DELETE("/:key", h.Revoke)
		admin.POST("/:key/ban", h.ToggleBan)
	}
}
