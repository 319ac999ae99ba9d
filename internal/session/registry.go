package session

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Sentini2/edusp/internal/tenant"
)

// Outbound events the registry emits to controllers.
const (
	EventClients        = "clients"
	EventLocationUpdate = "location-update"
	EventHWInfoUpdate   = "hwinfo-update"
)

// Registry tracks connected agents and attached controllers.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]*AgentSession
	controllers map[string]*controller
	logger      *slog.Logger
}

type controller struct {
	id     string
	tenant string
	conn   Conn
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents:      make(map[string]*AgentSession),
		controllers: make(map[string]*controller),
		logger:      logger.With("component", "registry"),
	}
}

// Register creates a session for a newly connected agent and announces the
// updated roster to controllers of the same lab.
func (r *Registry) Register(meta Metadata, conn Conn) *AgentSession {
	tenantKey := tenant.Resolve(meta.Tenant)

	r.mu.Lock()
	id := uuid.New().String()
	for {
		if _, taken := r.agents[id]; !taken {
			break
		}
		id = uuid.New().String()
	}
	sess := newAgentSession(id, tenantKey, meta, conn)
	r.agents[id] = sess
	total := len(r.agents)
	r.mu.Unlock()

	r.logger.Info("agent connected",
		"agent_id", id,
		"lab", tenantKey,
		"addr", meta.Address,
		"total_agents", total,
	)

	r.BroadcastRoster(tenantKey)
	return sess
}

// Unregister removes an agent. Unknown ids are ignored so a late disconnect
// racing another cleanup path is harmless.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	sess, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
		close(sess.done)
	}
	total := len(r.agents)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Info("agent disconnected",
		"agent_id", id,
		"lab", sess.Tenant,
		"total_agents", total,
	)

	r.BroadcastRoster(sess.Tenant)
}

// UpdateMetadata stores a new location or hardware descriptor for an agent
// and notifies its lab. Returns false when the agent is gone or the field is
// unknown.
func (r *Registry) UpdateMetadata(id string, field Field, value json.RawMessage) bool {
	var event string
	switch field {
	case FieldLocation:
		event = EventLocationUpdate
	case FieldHWInfo:
		event = EventHWInfoUpdate
	default:
		return false
	}

	value = cloneRaw(value)

	r.mu.Lock()
	sess, ok := r.agents[id]
	if ok {
		if field == FieldLocation {
			sess.location = value
		} else {
			sess.hwinfo = value
		}
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("metadata update for unknown agent", "agent_id", id, "field", field)
		return false
	}

	r.BroadcastRoster(sess.Tenant)

	var payload any
	if field == FieldLocation {
		payload = locationUpdate{ID: id, Location: value}
	} else {
		payload = hwinfoUpdate{ID: id, Info: value}
	}
	r.notifyControllers(sess.Tenant, event, payload)
	return true
}

type locationUpdate struct {
	ID       string          `json:"uuid"`
	Location json.RawMessage `json:"loc"`
}

type hwinfoUpdate struct {
	ID   string          `json:"uuid"`
	Info json.RawMessage `json:"info"`
}

// List returns a snapshot of every agent in the given lab, oldest first.
func (r *Registry) List(tenantKey string) []AgentSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(tenantKey)
}

func (r *Registry) listLocked(tenantKey string) []AgentSummary {
	out := make([]AgentSummary, 0, len(r.agents))
	for _, sess := range r.agents {
		if tenant.Match(sess.Tenant, tenantKey) {
			out = append(out, sess.summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Lookup returns the live session for id.
func (r *Registry) Lookup(id string) (*AgentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.agents[id]
	return sess, ok
}

// Connection returns the handle of a connected agent.
func (r *Registry) Connection(id string) (Conn, bool) {
	sess, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return sess.conn, true
}

// Resolve looks up an agent on behalf of a caller bound to requesterTenant.
// It returns ErrAgentNotFound or ErrCrossTenant when the caller may not reach it.
func (r *Registry) Resolve(id, requesterTenant string) (*AgentSession, error) {
	sess, ok := r.Lookup(id)
	if !ok {
		return nil, ErrAgentNotFound
	}
	if !tenant.Match(sess.Tenant, requesterTenant) {
		return nil, ErrCrossTenant
	}
	return sess, nil
}

// AttachController records a controller connection bound to a lab.
func (r *Registry) AttachController(tenantKey string, conn Conn) {
	tenantKey = tenant.Resolve(tenantKey)

	r.mu.Lock()
	r.controllers[conn.ID()] = &controller{id: conn.ID(), tenant: tenantKey, conn: conn}
	total := len(r.controllers)
	r.mu.Unlock()

	r.logger.Info("controller connected",
		"controller_id", conn.ID(),
		"lab", tenantKey,
		"total_controllers", total,
	)
}

// AgentCount returns the number of connected agents.
func (r *Registry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// ControllerCount returns the number of attached controllers.
func (r *Registry) ControllerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

// Labs returns the distinct labs that currently have an agent or controller.
func (r *Registry) Labs() []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, sess := range r.agents {
		seen[sess.Tenant] = struct{}{}
	}
	for _, c := range r.controllers {
		seen[c.tenant] = struct{}{}
	}
	r.mu.RUnlock()

	labs := make([]string, 0, len(seen))
	for lab := range seen {
		labs = append(labs, lab)
	}
	sort.Strings(labs)
	return labs
}
