package connection

import (
	"errors"
	"math"
	"time"
)

// Errors
var (
	ErrNotRunning     = errors.New("manager not running")
	ErrAlreadyStarted = errors.New("manager already started")
	ErrStopped        = errors.New("manager stopped")
	ErrNoPageURL      = errors.New("relative endpoint needs a page url")
)

// State is the manager's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ReadyState mirrors the socket ready states reported to monitors.
type ReadyState int

const (
	ReadyStateNone       ReadyState = -1 // No socket
	ReadyStateConnecting ReadyState = 0
	ReadyStateOpen       ReadyState = 1
	ReadyStateClosing    ReadyState = 2
	ReadyStateClosed     ReadyState = 3
)

func (r ReadyState) String() string {
	switch r {
	case ReadyStateNone:
		return "none"
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosing:
		return "closing"
	case ReadyStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReconnectPolicy configures exponential backoff.
type ReconnectPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64 // >= 1
}

// Delay returns the wait before reconnect attempt n (0-based):
// min(InitialDelay * BackoffMultiplier^n, MaxDelay).
func (p ReconnectPolicy) Delay(n int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(n))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// KeepAlivePolicy configures the PING heartbeat.
type KeepAlivePolicy struct {
	Enabled  bool
	Interval time.Duration
}

// Status is a snapshot for external monitoring.
type Status struct {
	Connected         bool       `json:"connected"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	Identity          string     `json:"identity"`
	ReadyState        ReadyState `json:"ready_state"`
	State             State      `json:"state"`
}

// DialerConfig configures the WebSocket dialer.
type DialerConfig struct {
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
}

// DefaultDialerConfig returns sensible defaults.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	PageURL        string // Base for relative endpoints (scheme picks ws or wss)
	Endpoint       string // Used by AutoConnect
	AutoConnect    bool   // Init(Endpoint) once the session provider is ready
	EventName      string // Event name handed to Session.Dispatch
	DispatchBuffer int    // Pending commands waiting for the session
	Reconnect      ReconnectPolicy
	KeepAlive      KeepAlivePolicy
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Endpoint:       "/ws-commands",
		EventName:      "onGlobalCommand",
		DispatchBuffer: 1000,
		Reconnect: ReconnectPolicy{
			MaxAttempts:       10,
			InitialDelay:      1 * time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 1.5,
		},
		KeepAlive: KeepAlivePolicy{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
	}
}
