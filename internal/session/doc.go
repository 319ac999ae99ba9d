// Package session holds the authoritative in-memory state of the relay:
// which agents are connected, which controllers are attached, and which
// controllers watch which agent channel.
//
// All state lives behind a single registry lock. Callers that deliver
// payloads take copies of the relevant handles under the lock and send
// outside it, so a slow connection never holds up registry mutations.
package session
