package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Sentini2/edusp/internal/session"
	"github.com/Sentini2/edusp/internal/tenant"
)

// ErrUnknownRole is returned by Accept for a role that is neither agent nor controller.
var ErrUnknownRole = errors.New("unknown connection role")

// Role is which side of the relay a connection plays.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleController Role = "controller"
)

// ParseRole maps a handshake role string to a Role. The legacy names
// "client" and "admin" are accepted for agents and controllers.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "client":
		return RoleAgent, nil
	case "controller", "admin":
		return RoleController, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Gate decides whether an agent may connect at all.
type Gate interface {
	Admit(ctx context.Context, key, hardwareID string) error
}

// ConnectRequest is what the transport extracted from a handshake.
type ConnectRequest struct {
	Role       Role
	Address    string
	Descriptor string
	TenantHint string
	LicenseKey string
	HardwareID string
}

// Hub admits connections and routes their events.
type Hub struct {
	registry *session.Registry
	router   *Router
	gate     Gate
	logger   *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithGate makes every agent pass g before it is registered.
func WithGate(g Gate) Option {
	return func(h *Hub) {
		h.gate = g
	}
}

// NewHub creates a Hub. Pass nil logger for default.
func NewHub(registry *session.Registry, router *Router, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		registry: registry,
		router:   router,
		logger:   logger.With("component", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry returns the hub's registry.
func (h *Hub) Registry() *session.Registry {
	return h.registry
}

// Accept is called once per new connection. On success the connection is
// active and every inbound event must go through the returned Peer.
func (h *Hub) Accept(ctx context.Context, req ConnectRequest, conn session.Conn) (*Peer, error) {
	switch req.Role {
	case RoleAgent:
		if h.gate != nil {
			if err := h.gate.Admit(ctx, req.LicenseKey, req.HardwareID); err != nil {
				h.logger.Warn("agent rejected by gate", "addr", req.Address, "error", err)
				return nil, fmt.Errorf("admitting agent: %w", err)
			}
		}
		sess := h.registry.Register(session.Metadata{
			Tenant:     req.TenantHint,
			Address:    req.Address,
			Descriptor: req.Descriptor,
		}, conn)
		if err := conn.Send(EventID, sess.ID); err != nil {
			h.logger.Debug("failed to send id to agent", "agent_id", sess.ID, "error", err)
		}
		return &Peer{hub: h, role: RoleAgent, id: sess.ID, tenant: sess.Tenant}, nil

	case RoleController:
		lab := tenant.Resolve(req.TenantHint)
		h.registry.AttachController(lab, conn)
		h.registry.SendRoster(conn, lab)
		return &Peer{hub: h, role: RoleController, id: conn.ID(), tenant: lab}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, req.Role)
}

// Peer is an active connection admitted by the Hub.
type Peer struct {
	hub    *Hub
	role   Role
	id     string
	tenant string

	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// ID returns the agent id or controller connection id.
func (p *Peer) ID() string { return p.id }

// Tenant returns the lab the peer is bound to.
func (p *Peer) Tenant() string { return p.tenant }

// Role returns the peer's role.
func (p *Peer) Role() Role { return p.role }

// Handle dispatches one inbound event. Events after Close are ignored.
func (p *Peer) Handle(event string, data json.RawMessage) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return
	}

	if p.role == RoleAgent {
		p.hub.handleAgent(p, event, data)
		return
	}
	p.hub.handleController(p, event, data)
}

// Close removes the peer's state from the registry: an agent is unregistered,
// a controller is purged from every watcher list.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		if p.role == RoleAgent {
			p.hub.registry.Unregister(p.id)
			return
		}
		p.hub.registry.PurgeController(p.id)
	})
}
