// Package connection implements the command client's Connection Manager.
//
// The Connection Manager:
//   - Owns one logical WebSocket connection to a push server endpoint
//   - Sends the session identity as the first frame after open
//   - Classifies inbound frames and dispatches commands to the current session
//   - Reconnects with exponential backoff up to a bounded attempt count
//   - Sends periodic PING frames so idle sockets are not timed out
//
// All state is owned by a single event-loop goroutine. Public calls,
// transport events and timers are posted to that loop and run to completion
// one at a time. Events from a superseded transport are ignored.
package connection
