package session

// Conn is one live bidirectional connection as seen by the registry.
// Implementations must make Send non-blocking and safe for concurrent use;
// a Send on a closed connection returns an error instead of panicking.
type Conn interface {
	// ID returns the connection's own identity. Controllers are keyed by it.
	ID() string
	// Send queues a named event with a JSON-encodable payload.
	Send(event string, payload any) error
	// Close tears the connection down. Calling it more than once is allowed.
	Close() error
}
