package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentini2/edusp/internal/session"
)

// Frame is what a controller receives for every relayed agent payload.
type Frame struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Router moves payloads between agents and controllers.
type Router struct {
	registry *session.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
	pending atomic.Int64
}

// NewRouter creates a router over the given registry. Pass nil logger for default.
func NewRouter(registry *session.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		logger:   logger.With("component", "router"),
		done:     make(chan struct{}),
	}
}

// RelayFromAgent fans a payload out to every controller watching the given
// agent channel and returns how many deliveries succeeded. A failure on one
// subscriber does not affect the others. Payloads from unknown agents are
// dropped.
func (r *Router) RelayFromAgent(agentID string, ch session.Channel, payload json.RawMessage) int {
	event, ok := channelEvents[ch]
	if !ok {
		return 0
	}

	targets, lab, ok := r.registry.Subscribers(agentID, ch)
	if !ok {
		r.logger.Debug("dropping payload from unknown agent", "agent_id", agentID, "channel", ch)
		return 0
	}

	frame := Frame{ID: agentID, Data: payload}
	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(event, frame); err != nil {
			r.logger.Debug("subscriber delivery failed",
				"agent_id", agentID,
				"controller_id", conn.ID(),
				"channel", ch,
				"lab", lab,
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}

// SendToAgent delivers a command to one agent in the caller's lab. It returns
// false when the command was not delivered.
func (r *Router) SendToAgent(tenantKey, agentID, event string, payload any) bool {
	sess, err := r.registry.Resolve(agentID, tenantKey)
	if err != nil {
		r.logResolveFailure(err, tenantKey, agentID, event)
		return false
	}
	return r.deliver(sess, event, payload)
}

// SendToAgentDelayed schedules a command for later delivery and reports
// whether it was scheduled. The target is resolved again when the timer
// fires; if the agent disconnected in the meantime, or a new session took
// its place, nothing is sent.
func (r *Router) SendToAgentDelayed(tenantKey, agentID, event string, payload any, delay time.Duration) bool {
	if delay <= 0 {
		return r.SendToAgent(tenantKey, agentID, event, payload)
	}

	sess, err := r.registry.Resolve(agentID, tenantKey)
	if err != nil {
		r.logResolveFailure(err, tenantKey, agentID, event)
		return false
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.pending.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.pending.Add(-1)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sess.Done():
			r.logger.Debug("delayed command cancelled, agent left", "agent_id", agentID, "event", event)
			return
		case <-r.done:
			return
		}

		current, err := r.registry.Resolve(agentID, tenantKey)
		if err != nil || current != sess {
			return
		}
		r.deliver(current, event, payload)
	}()

	return true
}

// Pending returns the number of delayed commands not yet fired or cancelled.
func (r *Router) Pending() int {
	return int(r.pending.Load())
}

// Close cancels every pending delayed command and waits for them to exit.
// It is safe to call multiple times.
func (r *Router) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Router) deliver(sess *session.AgentSession, event string, payload any) bool {
	if err := sess.Conn().Send(event, payload); err != nil {
		r.logger.Debug("agent delivery failed", "agent_id", sess.ID, "event", event, "error", err)
		return false
	}
	return true
}

func (r *Router) logResolveFailure(err error, tenantKey, agentID, event string) {
	if errors.Is(err, session.ErrCrossTenant) {
		r.logger.Warn("cross-tenant command rejected", "agent_id", agentID, "lab", tenantKey, "event", event)
		return
	}
	r.logger.Debug("command for absent agent dropped", "agent_id", agentID, "event", event)
}
