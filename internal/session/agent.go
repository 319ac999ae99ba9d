package session

import (
	"encoding/json"
	"time"
)

// Channel is a stream category with its own subscriber set per agent.
type Channel string

const (
	ChannelVideo  Channel = "video"
	ChannelScreen Channel = "screen"
)

// Channels lists every channel an agent carries.
var Channels = []Channel{ChannelVideo, ChannelScreen}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelVideo || c == ChannelScreen
}

// Field names a mutable piece of agent metadata.
type Field string

const (
	FieldLocation Field = "location"
	FieldHWInfo   Field = "hwinfo"
)

// Metadata is what the transport knows about an agent at connect time.
type Metadata struct {
	Tenant     string
	Address    string
	Descriptor string
}

// AgentSession is one connected agent.
//
// The exported fields are fixed at registration. Location, hardware info and
// subscriber sets are only touched under the owning Registry's lock.
type AgentSession struct {
	ID          string
	Tenant      string
	Address     string
	Descriptor  string
	ConnectedAt time.Time

	conn     Conn
	done     chan struct{}
	location json.RawMessage
	hwinfo   json.RawMessage
	watchers map[Channel]*subscriberSet
}

func newAgentSession(id, tenantKey string, meta Metadata, conn Conn) *AgentSession {
	watchers := make(map[Channel]*subscriberSet, len(Channels))
	for _, ch := range Channels {
		watchers[ch] = &subscriberSet{}
	}
	return &AgentSession{
		ID:          id,
		Tenant:      tenantKey,
		Address:     meta.Address,
		Descriptor:  meta.Descriptor,
		ConnectedAt: time.Now(),
		conn:        conn,
		done:        make(chan struct{}),
		watchers:    watchers,
	}
}

// Conn returns the connection owned by this session.
func (s *AgentSession) Conn() Conn {
	return s.conn
}

// Done is closed when the session is unregistered.
func (s *AgentSession) Done() <-chan struct{} {
	return s.done
}

// summary copies the session into a value that does not alias live state.
// Must be called with the registry lock held.
func (s *AgentSession) summary() AgentSummary {
	return AgentSummary{
		ID:          s.ID,
		Address:     s.Address,
		Descriptor:  s.Descriptor,
		ConnectedAt: s.ConnectedAt.UnixMilli(),
		Location:    cloneRaw(s.location),
		HWInfo:      cloneRaw(s.hwinfo),
	}
}

// AgentSummary is the roster entry controllers see for one agent.
type AgentSummary struct {
	ID          string          `json:"uuid"`
	Address     string          `json:"ip"`
	Descriptor  string          `json:"ua"`
	ConnectedAt int64           `json:"connected_at"`
	Location    json.RawMessage `json:"location"`
	HWInfo      json.RawMessage `json:"hwinfo"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
