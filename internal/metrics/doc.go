// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Command client connection state, reconnect attempts and exhaustion
//   - Commands dispatched and dropped, keep-alive pings sent and failed
//   - Push hub sessions, pushes and broadcasts by result
package metrics
