package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dynamiatools/wscommands/internal/command"
)

// Event names understood by server-side handlers.
const (
	EventGlobalCommand       = "onGlobalCommand"
	EventLegacyGlobalCommand = "fireGlobalCommand"
)

// Session is an active hosting session.
type Session interface {
	// ID returns the identity sent as the first frame after open.
	ID() string

	// Dispatch delivers a command event to the session's handlers.
	Dispatch(ctx context.Context, event string, cmd command.Command) error
}

// Provider returns the currently active session.
type Provider interface {
	Current() (Session, bool)
}

// ReadyNotifier is implemented by providers that can signal when a session
// first becomes available.
type ReadyNotifier interface {
	Ready() <-chan struct{}
}

// Static is a Provider holding at most one session, attached and detached
// by the host.
type Static struct {
	mu      sync.RWMutex
	current Session

	readyOnce sync.Once
	ready     chan struct{}
}

// NewStatic creates a provider with no session attached.
func NewStatic() *Static {
	return &Static{ready: make(chan struct{})}
}

// Attach makes s the current session.
func (p *Static) Attach(s Session) {
	p.mu.Lock()
	p.current = s
	p.mu.Unlock()

	if s != nil {
		p.readyOnce.Do(func() { close(p.ready) })
	}
}

// Detach removes the current session.
func (p *Static) Detach() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

// Current returns the attached session, if any.
func (p *Static) Current() (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current != nil
}

// Ready is closed the first time a session is attached.
func (p *Static) Ready() <-chan struct{} {
	return p.ready
}

// DispatchFunc is a function adapter for a session's dispatch step.
type DispatchFunc func(ctx context.Context, event string, cmd command.Command) error

// Func is a Session backed by a DispatchFunc.
type Func struct {
	Identity string
	Fn       DispatchFunc
}

// ID returns the identity.
func (f Func) ID() string { return f.Identity }

// Dispatch calls Fn.
func (f Func) Dispatch(ctx context.Context, event string, cmd command.Command) error {
	return f.Fn(ctx, event, cmd)
}

// Logging is a Session that only logs what it receives.
type Logging struct {
	Identity string
	Logger   *slog.Logger
}

// ID returns the identity.
func (l Logging) ID() string { return l.Identity }

// Dispatch logs the command.
func (l Logging) Dispatch(ctx context.Context, event string, cmd command.Command) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "command received",
		"event", event,
		"command", cmd.Name(),
		"kind", cmd.Kind(),
		"fields", cmd.Fields(),
	)
	return nil
}
