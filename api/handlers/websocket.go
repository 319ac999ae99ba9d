package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sentini2/edusp/internal/relay"
	"github.com/Sentini2/edusp/internal/ws"
)

// WebSocketHandler upgrades agent and controller connections.
type WebSocketHandler struct {
	wsHandler  *ws.Handler
	defaultLab string
}

// NewWebSocketHandler creates a new WebSocketHandler. Connections that name
// no lab join defaultLab.
func NewWebSocketHandler(wsHandler *ws.Handler, defaultLab string) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler:  wsHandler,
		defaultLab: defaultLab,
	}
}

// Connect handles WS /socket?role=agent|controller&lab=...&key=...&hwid=...
func (h *WebSocketHandler) Connect(c *gin.Context) {
	role, err := relay.ParseRole(c.Query("role"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	lab := c.Query("lab")
	if lab == "" {
		lab = h.defaultLab
	}

	req := relay.ConnectRequest{
		Role:       role,
		Address:    c.ClientIP(),
		Descriptor: c.Request.UserAgent(),
		TenantHint: lab,
		LicenseKey: c.Query("key"),
		HardwareID: c.Query("hwid"),
	}
	if req.Descriptor == "" {
		req.Descriptor = "—"
	}

	// The upgrader has already written an HTTP error when this fails.
	_ = h.wsHandler.HandleConnection(c.Writer, c.Request, req)
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/socket", h.Connect)
}
