// Package push is the server side of the command channel.
//
// A Hub upgrades HTTP requests to WebSocket sessions. The first data frame
// a client sends is its identity; a later session with the same identity
// replaces the earlier one. PING frames are answered with PONG. Server code
// pushes structured commands to one identity with SendCommand or raw text
// to every identified session with Broadcast.
//
// Heartbeat runs BroadcastHeartbeat on a cron schedule, and API exposes the
// hub over a small admin HTTP interface.
package push
