package relay

import (
	"encoding/json"
	"math"
	"time"

	"github.com/Sentini2/edusp/internal/session"
)

// commandRequest covers every object-shaped controller payload.
type commandRequest struct {
	UUID    string          `json:"uuid"`
	Agent   string          `json:"agent"`
	Ev      json.RawMessage `json:"ev"`
	Event   json.RawMessage `json:"event"`
	URL     string          `json:"url"`
	DataURL string          `json:"dataURL"`
	Delay   float64         `json:"delay"`
}

func (c *commandRequest) target() string {
	if c.UUID != "" {
		return c.UUID
	}
	return c.Agent
}

func (c *commandRequest) eventData() json.RawMessage {
	if len(c.Ev) > 0 {
		return c.Ev
	}
	return c.Event
}

func (c *commandRequest) delay() time.Duration {
	if c.Delay <= 0 || math.IsNaN(c.Delay) {
		return 0
	}
	// Converting past MaxInt64 wraps negative, which would mean "now".
	if c.Delay >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(c.Delay * float64(time.Second))
}

// playAudio is the payload agents receive for both audio commands.
type playAudio struct {
	URL string `json:"url"`
}

// parseTarget accepts either a bare JSON string or an object naming the agent.
func parseTarget(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, id != ""
	}
	var req commandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", false
	}
	id = req.target()
	return id, id != ""
}

func (h *Hub) handleAgent(p *Peer, event string, data json.RawMessage) {
	switch event {
	case EventFrame:
		h.router.RelayFromAgent(p.id, session.ChannelVideo, data)
	case EventScreenFrame:
		h.router.RelayFromAgent(p.id, session.ChannelScreen, data)
	case EventLocation:
		h.registry.UpdateMetadata(p.id, session.FieldLocation, data)
	case EventHWInfo:
		h.registry.UpdateMetadata(p.id, session.FieldHWInfo, data)
	default:
		h.logger.Debug("ignoring agent event", "agent_id", p.id, "event", event)
	}
}

func (h *Hub) handleController(p *Peer, event string, data json.RawMessage) {
	switch event {
	case EventRequestStream, EventStopStream, EventRequestScreen, EventStopScreen:
		h.handleWatch(p, event, data)

	case EventMouse, EventKey:
		var req commandRequest
		if err := json.Unmarshal(data, &req); err != nil || req.target() == "" {
			h.logger.Debug("malformed input command", "controller_id", p.id, "event", event)
			return
		}
		h.router.SendToAgent(p.tenant, req.target(), event, req.eventData())

	case EventReadyAudio, EventCustomAudio:
		var req commandRequest
		if err := json.Unmarshal(data, &req); err != nil || req.target() == "" {
			h.logger.Debug("malformed audio command", "controller_id", p.id, "event", event)
			return
		}
		url := req.URL
		if event == EventCustomAudio {
			url = req.DataURL
		}
		h.router.SendToAgentDelayed(p.tenant, req.target(), EventPlayAudio, playAudio{URL: url}, req.delay())

	default:
		if !bareCommands[event] {
			h.logger.Debug("ignoring controller event", "controller_id", p.id, "event", event)
			return
		}
		agentID, ok := parseTarget(data)
		if !ok {
			h.logger.Debug("command without target", "controller_id", p.id, "event", event)
			return
		}
		h.router.SendToAgent(p.tenant, agentID, event, nil)
	}
}

func (h *Hub) handleWatch(p *Peer, event string, data json.RawMessage) {
	agentID, ok := parseTarget(data)
	if !ok {
		return
	}

	switch event {
	case EventRequestStream:
		h.registry.Subscribe(agentID, p.id, session.ChannelVideo, p.tenant)
	case EventStopStream:
		h.registry.Unsubscribe(agentID, p.id, session.ChannelVideo)
	case EventRequestScreen:
		h.registry.Subscribe(agentID, p.id, session.ChannelScreen, p.tenant)
	case EventStopScreen:
		h.registry.Unsubscribe(agentID, p.id, session.ChannelScreen)
	}
}
