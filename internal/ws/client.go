package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrClientClosed is returned when sending to a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned when the client's outbound queue is full.
	// The message is dropped; the connection stays open.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Message is the envelope of every frame exchanged with a peer.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a WebSocket client connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex

	closed bool
}

// NewClient creates a new WebSocket client with an outbound queue of
// bufferSize messages.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

// ID returns the connection's identity.
func (c *Client) ID() string {
	return c.id
}

// Send encodes an event and queues it for the write pump.
func (c *Client) Send(event string, payload any) error {
	data, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw queues an already encoded message.
func (c *Client) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close closes the client's outbound queue. The write pump then sends a
// close frame and releases the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Encode builds the wire form of an event. A nil payload omits data.
func Encode(event string, payload any) ([]byte, error) {
	msg := Message{Event: event}

	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		if len(p) > 0 {
			msg.Data = p
		}
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", event, err)
		}
		msg.Data = data
	}

	return json.Marshal(msg)
}
