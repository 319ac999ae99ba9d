package session

// BroadcastRoster sends the current roster of a lab to every controller of
// that lab. Consistency across labs is best effort: a controller may briefly
// see a stale list while a newer broadcast is in flight.
func (r *Registry) BroadcastRoster(tenantKey string) {
	r.mu.RLock()
	roster := r.listLocked(tenantKey)
	targets := r.controllersLocked(tenantKey)
	r.mu.RUnlock()

	r.deliver(targets, EventClients, roster)
}

// SendRoster sends the roster of a lab to a single connection.
func (r *Registry) SendRoster(conn Conn, tenantKey string) {
	if err := conn.Send(EventClients, r.List(tenantKey)); err != nil {
		r.logger.Debug("roster delivery failed", "conn_id", conn.ID(), "error", err)
	}
}

func (r *Registry) notifyControllers(tenantKey, event string, payload any) {
	r.mu.RLock()
	targets := r.controllersLocked(tenantKey)
	r.mu.RUnlock()

	r.deliver(targets, event, payload)
}

func (r *Registry) controllersLocked(tenantKey string) []Conn {
	out := make([]Conn, 0, len(r.controllers))
	for _, c := range r.controllers {
		if c.tenant == tenantKey {
			out = append(out, c.conn)
		}
	}
	return out
}

func (r *Registry) deliver(targets []Conn, event string, payload any) {
	for _, conn := range targets {
		if err := conn.Send(event, payload); err != nil {
			r.logger.Debug("controller notification failed",
				"controller_id", conn.ID(),
				"event", event,
				"error", err,
			)
		}
	}
}
