package session

import "github.com/Sentini2/edusp/internal/tenant"

// Subscribe adds controllerID to the watchers of an agent channel.
//
// Nothing changes when the agent is gone, the controller is no longer
// attached, or either side belongs to a different lab than requesterTenant.
// Subscribing twice leaves a single entry. Returns true only when the
// controller is (now) a watcher.
func (r *Registry) Subscribe(agentID, controllerID string, ch Channel, requesterTenant string) bool {
	if !ch.Valid() {
		return false
	}

	r.mu.Lock()
	sess, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("subscribe to unknown agent", "agent_id", agentID, "controller_id", controllerID)
		return false
	}
	ctrl, attached := r.controllers[controllerID]
	if !attached {
		r.mu.Unlock()
		r.logger.Debug("subscribe from detached controller", "agent_id", agentID, "controller_id", controllerID)
		return false
	}
	if !tenant.Match(sess.Tenant, requesterTenant) || ctrl.tenant != sess.Tenant {
		r.mu.Unlock()
		r.logger.Warn("cross-tenant subscribe rejected",
			"agent_id", agentID,
			"agent_lab", sess.Tenant,
			"controller_id", controllerID,
			"controller_lab", ctrl.tenant,
			"requested_lab", requesterTenant,
		)
		return false
	}
	added := sess.watchers[ch].add(controllerID)
	r.mu.Unlock()

	if added {
		r.logger.Debug("watcher added", "agent_id", agentID, "controller_id", controllerID, "channel", ch)
	}
	return true
}

// Unsubscribe removes controllerID from an agent channel. Missing agents and
// non-members are fine.
func (r *Registry) Unsubscribe(agentID, controllerID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.agents[agentID]
	if !ok {
		return
	}
	if set, ok := sess.watchers[ch]; ok {
		set.remove(controllerID)
	}
}

// PurgeController detaches a controller and strips it from every channel of
// every agent in one critical section, so no fanout that snapshots after
// this call can target it.
func (r *Registry) PurgeController(controllerID string) {
	r.mu.Lock()
	_, attached := r.controllers[controllerID]
	delete(r.controllers, controllerID)
	removed := 0
	for _, sess := range r.agents {
		for _, set := range sess.watchers {
			if set.remove(controllerID) {
				removed++
			}
		}
	}
	total := len(r.controllers)
	r.mu.Unlock()

	if attached {
		r.logger.Info("controller disconnected",
			"controller_id", controllerID,
			"subscriptions_removed", removed,
			"total_controllers", total,
		)
	}
}

// Subscribers returns the connections currently watching an agent channel.
// The slice is a copy; the agent's lab is returned alongside so callers can
// log without a second lookup. ok is false when the agent is gone.
func (r *Registry) Subscribers(agentID string, ch Channel) (conns []Conn, tenantKey string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.agents[agentID]
	if !ok {
		return nil, "", false
	}
	set, known := sess.watchers[ch]
	if !known {
		return nil, sess.Tenant, true
	}

	conns = make([]Conn, 0, set.len())
	for _, id := range set.ids {
		ctrl, attached := r.controllers[id]
		if !attached || ctrl.tenant != sess.Tenant {
			continue
		}
		conns = append(conns, ctrl.conn)
	}
	return conns, sess.Tenant, true
}

// Watchers returns the controller ids subscribed to an agent channel.
func (r *Registry) Watchers(agentID string, ch Channel) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.agents[agentID]
	if !ok {
		return nil
	}
	set, known := sess.watchers[ch]
	if !known {
		return nil
	}
	return set.snapshot()
}
