// Package ws provides the WebSocket transport for the relay.
//
// The package implements:
//   - Client: one connection, with a bounded outbound queue drained by a
//     dedicated write pump. Sends never block; a full queue drops the message
//     for that connection only.
//   - Handler: upgrades HTTP requests, admits the connection through the relay
//     hub, and runs the read and write pumps.
//
// Every WebSocket text frame carries one Message: {"event": name, "data": payload}.
package ws
