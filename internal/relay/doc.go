// Package relay connects transport connections to the session registry.
//
// Hub is the boundary the transport talks to: it admits a connection as an
// agent or a controller, dispatches each named inbound event, and cleans up
// on disconnect. Router performs the actual deliveries: fanout of agent
// frames to watching controllers, and controller commands to a single agent,
// immediately or after a delay.
//
// Every agent-targeted operation is checked against the caller's lab.
package relay
