// Package session provides the hosting session a command client runs inside.
//
// A Session owns a stable identity (sent to the push server as the handshake)
// and a way to dispatch named command events to application handlers. A
// Provider answers which session, if any, is currently active.
package session
