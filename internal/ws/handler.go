package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sentini2/edusp/internal/relay"
)

// EventError is sent to a peer right before the hub refuses it.
const EventError = "error"

// Config tunes connection handling.
type Config struct {
	// SendBuffer is the number of outbound messages queued per connection.
	SendBuffer int
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64
	// WriteWait is the time allowed to write a message to the peer.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     256,
		MaxMessageSize: 4 << 20,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
	}
}

// pingPeriod must be less than pongWait.
func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	return c
}

// Handler handles WebSocket connections for agents and controllers.
type Handler struct {
	hub      *relay.Hub
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler. Pass nil logger for default.
func NewHandler(hub *relay.Hub, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &Handler{
		hub:    hub,
		cfg:    cfg,
		logger: logger.With("component", "ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleConnection upgrades the request and admits it to the hub with the
// given handshake data. It returns once the pumps are running; they own the
// connection from then on.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, req relay.ConnectRequest) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, h.cfg.SendBuffer)
	go h.writePump(client)

	peer, err := h.hub.Accept(r.Context(), req, client)
	if err != nil {
		h.logger.Info("connection refused", "role", req.Role, "addr", req.Address, "error", err)
		h.refuse(client, err)
		return nil
	}

	go h.readPump(client, peer)
	return nil
}

// refuse tells the peer why it was not admitted and closes its queue.
func (h *Handler) refuse(client *Client, reason error) {
	if err := client.Send(EventError, map[string]string{"message": reason.Error()}); err != nil {
		h.logger.Debug("failed to send refusal", "conn_id", client.ID(), "error", err)
	}
	client.Close()
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client, peer *relay.Peer) {
	defer func() {
		peer.Close()
		client.Close()
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(h.cfg.MaxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		return nil
	})

	for {
		kind, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "peer_id", peer.ID(), "role", peer.Role(), "error", err)
			}
			return
		}
		if kind == websocket.BinaryMessage {
			h.handleBinary(peer, message)
			continue
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Debug("failed to unmarshal message", "peer_id", peer.ID(), "error", err)
			continue
		}
		if msg.Event == "" {
			continue
		}

		peer.Handle(msg.Event, msg.Data)
	}
}

// handleBinary relays a binary message from an agent as a video frame. The
// bytes reach controllers as a base64 JSON string inside the usual envelope.
func (h *Handler) handleBinary(peer *relay.Peer, message []byte) {
	if peer.Role() != relay.RoleAgent {
		h.logger.Debug("ignoring binary message from controller", "peer_id", peer.ID(), "bytes", len(message))
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Debug("failed to encode binary frame", "peer_id", peer.ID(), "error", err)
		return
	}
	peer.Handle(relay.EventFrame, data)
}

// writePump pumps queued messages from the client to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(h.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One message per frame so peers can parse each one on its own.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}
