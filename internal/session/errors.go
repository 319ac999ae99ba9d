package session

import "errors"

var (
	// ErrAgentNotFound is returned when an operation references an agent that
	// is no longer registered.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrCrossTenant is returned when an operation crosses lab boundaries.
	ErrCrossTenant = errors.New("cross-tenant reference")

	// ErrControllerNotAttached is returned when a controller id is unknown,
	// typically because it already disconnected.
	ErrControllerNotAttached = errors.New("controller not attached")
)
