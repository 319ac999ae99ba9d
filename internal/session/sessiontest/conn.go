// Package sessiontest provides a recording connection for tests of code that
// talks to session.Conn.
package sessiontest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("sessiontest: connection closed")

// Event is one recorded outbound event.
type Event struct {
	Name string
	Data json.RawMessage
}

// Conn records every event sent to it. It satisfies session.Conn.
type Conn struct {
	id string

	mu      sync.Mutex
	events  []Event
	closed  bool
	failing bool
	notify  chan struct{}
}

// NewConn returns a connection with a fresh random id.
func NewConn() *Conn {
	return &Conn{id: uuid.New().String(), notify: make(chan struct{}, 1)}
}

func (c *Conn) ID() string { return c.id }

// Send records the event. A nil payload is recorded with empty data.
func (c *Conn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.failing {
		return errors.New("sessiontest: send failed")
	}

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}
	c.events = append(c.events, Event{Name: event, Data: data})

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailSends makes every later Send return an error without closing.
func (c *Conn) FailSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = true
}

// Events returns a copy of everything recorded so far.
func (c *Conn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the recorded events with the given name.
func (c *Conn) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded events.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// Notify fires (coalesced) after each recorded event.
func (c *Conn) Notify() <-chan struct{} {
	return c.notify
}
