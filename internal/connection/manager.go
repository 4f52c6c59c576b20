package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dynamiatools/wscommands/internal/command"
	"github.com/dynamiatools/wscommands/internal/metrics"
	"github.com/dynamiatools/wscommands/internal/session"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for reconnect and keep-alive timers.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithMetrics records client metrics.
func WithMetrics(mc *metrics.Client) Option {
	return func(m *Manager) {
		m.metrics = mc
	}
}

// connState is the single mutable connection record. Only the loop
// goroutine reads or writes it.
type connState struct {
	state               State
	transport           Transport
	gen                 uint64 // Bumped whenever the current transport is superseded
	cancelDial          context.CancelFunc
	reconnectAttempts   int
	intentionallyClosed bool
	uri                 string
	identity            string

	reconnect timerSlot
	keepAlive timerSlot
}

type dispatchJob struct {
	sess session.Session
	cmd  command.Command
}

// Manager owns one logical command connection.
type Manager struct {
	cfg      ManagerConfig
	dialer   Dialer
	sessions session.Provider
	clock    Clock
	logger   *slog.Logger
	metrics  *metrics.Client

	events   chan func()
	dispatch chan dispatchJob
	running  atomic.Bool
	stopped  atomic.Bool // Set by Stop; a Manager cannot be restarted
	done     chan struct{} // Closed when the loop exits

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Loop-owned
	st        connState
	policy    ReconnectPolicy
	keepAlive KeepAlivePolicy
	nextTask  uint64
}

// NewManager creates a Connection Manager. Call Start before any other method.
func NewManager(cfg ManagerConfig, dialer Dialer, sessions session.Provider, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventName == "" {
		cfg.EventName = session.EventGlobalCommand
	}
	if cfg.DispatchBuffer < 1 {
		cfg.DispatchBuffer = 1
	}

	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		sessions:  sessions,
		clock:     realClock{},
		logger:    logger.With("component", "connection"),
		events:    make(chan func(), 64),
		dispatch:  make(chan dispatchJob, cfg.DispatchBuffer),
		done:      make(chan struct{}),
		policy:    cfg.Reconnect,
		keepAlive: cfg.KeepAlive,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start runs the event loop. With AutoConnect set, it connects to the
// configured endpoint once the session provider reports ready.
func (m *Manager) Start(ctx context.Context) error {
	if m.stopped.Load() {
		return ErrStopped
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(2)
	go m.loop()
	go m.dispatchLoop()

	if m.cfg.AutoConnect && m.cfg.Endpoint != "" {
		m.wg.Add(1)
		go m.autoConnect()
	}

	m.logger.Info("connection manager started",
		"endpoint", m.cfg.Endpoint,
		"auto_connect", m.cfg.AutoConnect,
	)

	return nil
}

// Stop closes the connection intentionally and ends the event loop. A
// stopped Manager cannot be started again.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.running.Load() {
		return nil
	}

	m.logger.Info("stopping connection manager")
	m.stopped.Store(true)

	_ = m.call(m.closeConn)
	m.cancel()

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		return ctx.Err()
	}

	m.running.Store(false)
	m.logger.Info("connection manager stopped")
	return nil
}

// Init connects to uri. Without a current session it only logs a warning.
func (m *Manager) Init(uri string) error {
	return m.call(func() { m.initConn(uri) })
}

// Close closes the connection and suppresses reconnection. Idempotent.
func (m *Manager) Close() error {
	return m.call(m.closeConn)
}

// Reset zeroes the attempt counter and cancels a pending reconnect.
func (m *Manager) Reset() error {
	return m.call(m.resetAttempts)
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	st := Status{ReadyState: ReadyStateNone}
	m.call(func() { st = m.status() })
	return st
}

// ReconnectPolicy returns the active backoff policy.
func (m *Manager) ReconnectPolicy() ReconnectPolicy {
	p := m.cfg.Reconnect
	m.call(func() { p = m.policy })
	return p
}

// SetReconnectPolicy replaces the backoff policy. It applies from the next
// scheduled attempt; a pending one keeps its delay.
func (m *Manager) SetReconnectPolicy(p ReconnectPolicy) error {
	return m.call(func() { m.policy = p })
}

// KeepAlivePolicy returns the active keep-alive policy.
func (m *Manager) KeepAlivePolicy() KeepAlivePolicy {
	p := m.cfg.KeepAlive
	m.call(func() { p = m.keepAlive })
	return p
}

// SetKeepAlivePolicy replaces the keep-alive policy. It applies from the
// next open or the next tick, whichever comes first.
func (m *Manager) SetKeepAlivePolicy(p KeepAlivePolicy) error {
	return m.call(func() { m.keepAlive = p })
}

// post queues fn on the event loop without waiting.
func (m *Manager) post(fn func()) bool {
	if !m.running.Load() {
		return false
	}
	select {
	case m.events <- fn:
		return true
	case <-m.done:
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (m *Manager) call(fn func()) error {
	reply := make(chan struct{})
	if !m.post(func() {
		fn()
		close(reply)
	}) {
		return ErrNotRunning
	}

	select {
	case <-reply:
		return nil
	case <-m.done:
		return ErrNotRunning
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	defer close(m.done)

	for {
		select {
		case <-m.ctx.Done():
			m.closeConn()
			return
		case fn := <-m.events:
			fn()
		}
	}
}

// dispatchLoop hands commands to sessions in arrival order.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case job := <-m.dispatch:
			if err := job.sess.Dispatch(m.ctx, m.cfg.EventName, job.cmd); err != nil {
				m.logger.Error("error processing command",
					"command", job.cmd.Name(),
					"error", err,
				)
				m.metrics.CommandDropped("dispatch_error")
				continue
			}
			m.metrics.CommandDispatched(job.cmd.Kind().String())
		}
	}
}

func (m *Manager) autoConnect() {
	defer m.wg.Done()

	if rn, ok := m.sessions.(session.ReadyNotifier); ok {
		select {
		case <-rn.Ready():
		case <-m.ctx.Done():
			return
		}
	}

	if err := m.Init(m.cfg.Endpoint); err != nil {
		m.logger.Debug("auto connect skipped", "error", err)
	}
}

// initConn opens a new connection, superseding any previous one.
func (m *Manager) initConn(uri string) {
	sess, ok := m.sessions.Current()
	if !ok {
		m.logger.Warn("session is not ready, not connecting", "uri", uri)
		return
	}

	m.st.reconnect.cancel()
	m.st.keepAlive.cancel()
	m.dropTransport()

	m.st.uri = uri
	m.st.identity = sess.ID()
	m.st.state = StateConnecting
	gen := m.st.gen

	target, err := ResolveURI(uri, m.cfg.PageURL)
	if err != nil {
		m.logger.Error("error creating connection", "uri", uri, "error", err)
		m.handleClosed(gen, err)
		return
	}

	m.logger.Info("connecting", "url", target, "identity", m.st.identity)

	dialCtx, cancel := context.WithCancel(m.ctx)
	m.st.cancelDial = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t, err := m.dialer.Dial(dialCtx, target)
		if !m.post(func() { m.handleDialed(gen, t, err) }) && t != nil {
			t.Close()
		}
	}()
}

// dropTransport abandons the current transport or pending dial. Events
// still in flight for it are ignored afterwards.
func (m *Manager) dropTransport() {
	m.st.gen++
	if m.st.cancelDial != nil {
		m.st.cancelDial()
		m.st.cancelDial = nil
	}
	if m.st.transport != nil {
		if err := m.st.transport.Close(); err != nil {
			m.logger.Debug("error closing previous socket", "error", err)
		}
		m.st.transport = nil
	}
}

func (m *Manager) handleDialed(gen uint64, t Transport, err error) {
	if gen != m.st.gen {
		if t != nil {
			t.Close()
		}
		return
	}
	if m.st.cancelDial != nil {
		m.st.cancelDial()
		m.st.cancelDial = nil
	}

	if err != nil {
		m.logger.Warn("connection failed", "uri", m.st.uri, "error", err)
		m.handleClosed(gen, err)
		return
	}

	m.st.transport = t
	m.handleOpen(gen, t)
}

func (m *Manager) handleOpen(gen uint64, t Transport) {
	m.st.state = StateOpen
	m.st.reconnectAttempts = 0
	m.st.reconnect.cancel()
	m.st.intentionallyClosed = false

	m.logger.Info("connected", "identity", m.st.identity)
	m.metrics.SetConnected(true)
	m.metrics.SetReconnectAttempts(0)

	if err := t.Send([]byte(m.st.identity)); err != nil {
		m.logger.Warn("failed to send identity", "error", err)
	}

	m.startKeepAlive()

	m.wg.Add(1)
	go m.readLoop(gen, t)
}

// readLoop forwards frames from one transport to the event loop.
func (m *Manager) readLoop(gen uint64, t Transport) {
	defer m.wg.Done()

	for {
		data, err := t.Receive()
		if err != nil {
			m.post(func() { m.handleClosed(gen, err) })
			return
		}
		if !m.post(func() { m.handleMessage(gen, data) }) {
			return
		}
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	if gen != m.st.gen {
		return
	}

	cmd, kind := command.Classify(data)
	switch kind {
	case command.FrameEmpty:
		m.logger.Warn("empty message received")
		return
	case command.FramePong:
		return
	}

	m.logger.Debug("command received", "command", cmd.Name(), "kind", cmd.Kind())

	sess, ok := m.sessions.Current()
	if !ok {
		m.logger.Warn("session not available to process command", "command", cmd.Name())
		m.metrics.CommandDropped("no_session")
		return
	}

	select {
	case m.dispatch <- dispatchJob{sess: sess, cmd: cmd}:
	default:
		m.logger.Warn("dispatch buffer full, dropping command", "command", cmd.Name())
		m.metrics.CommandDropped("buffer_full")
	}
}

func (m *Manager) handleClosed(gen uint64, err error) {
	if gen != m.st.gen {
		return
	}

	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		m.logger.Info("connection closed", "code", closeErr.Code, "reason", closeErr.Text)
	case err != nil:
		m.logger.Warn("connection lost", "error", err)
	default:
		m.logger.Info("connection closed")
	}

	m.st.keepAlive.cancel()
	if m.st.transport != nil {
		m.st.transport.Close()
		m.st.transport = nil
	}
	m.st.state = StateClosed
	m.metrics.SetConnected(false)

	if !m.st.intentionallyClosed {
		m.attemptReconnect()
	}
}

// attemptReconnect schedules the next Init with exponential backoff.
func (m *Manager) attemptReconnect() {
	if m.st.intentionallyClosed {
		m.logger.Info("reconnection cancelled (intentional close)")
		return
	}

	if m.st.reconnectAttempts >= m.policy.MaxAttempts {
		m.logger.Error("maximum reconnection attempts reached",
			"attempts", m.st.reconnectAttempts,
			"max_attempts", m.policy.MaxAttempts,
		)
		m.metrics.ReconnectExhausted()
		return
	}

	delay := m.policy.Delay(m.st.reconnectAttempts)
	m.st.reconnectAttempts++

	m.logger.Info("reconnection attempt scheduled",
		"attempt", m.st.reconnectAttempts,
		"max_attempts", m.policy.MaxAttempts,
		"delay", delay,
	)
	m.metrics.ReconnectScheduled()
	m.metrics.SetReconnectAttempts(m.st.reconnectAttempts)

	m.schedule(&m.st.reconnect, delay, func() {
		m.st.state = StateClosed
		m.initConn(m.st.uri)
	})
	m.st.state = StateReconnectScheduled
}

// schedule arms slot to run fire on the loop after d, replacing whatever
// the slot held.
func (m *Manager) schedule(slot *timerSlot, d time.Duration, fire func()) {
	slot.cancel()

	m.nextTask++
	id := m.nextTask
	slot.id = id
	slot.timer = m.clock.AfterFunc(d, func() {
		m.post(func() {
			if slot.take(id) {
				fire()
			}
		})
	})
}

func (m *Manager) startKeepAlive() {
	m.st.keepAlive.cancel()
	if !m.keepAlive.Enabled || m.keepAlive.Interval <= 0 {
		return
	}
	m.schedule(&m.st.keepAlive, m.keepAlive.Interval, m.keepAliveTick)
}

func (m *Manager) keepAliveTick() {
	if m.st.state != StateOpen || m.st.transport == nil {
		return
	}

	if err := m.st.transport.Send([]byte(command.Ping)); err != nil {
		m.logger.Warn("error sending ping", "error", err)
		m.metrics.Ping(false)
	} else {
		m.logger.Debug("ping sent")
		m.metrics.Ping(true)
	}

	m.startKeepAlive()
}

func (m *Manager) closeConn() {
	m.st.intentionallyClosed = true
	m.st.reconnect.cancel()
	m.st.keepAlive.cancel()
	m.dropTransport()
	if m.st.state != StateIdle {
		m.st.state = StateClosed
	}
	m.metrics.SetConnected(false)
}

func (m *Manager) resetAttempts() {
	m.st.reconnectAttempts = 0
	m.metrics.SetReconnectAttempts(0)

	if m.st.reconnect.pending() {
		m.st.reconnect.cancel()
		if m.st.state == StateReconnectScheduled {
			m.st.state = StateClosed
		}
	}
}

func (m *Manager) status() Status {
	ready := ReadyStateNone
	switch {
	case m.st.transport != nil && m.st.state == StateOpen:
		ready = ReadyStateOpen
	case m.st.cancelDial != nil:
		ready = ReadyStateConnecting
	}

	return Status{
		Connected:         ready == ReadyStateOpen,
		ReconnectAttempts: m.st.reconnectAttempts,
		Identity:          m.st.identity,
		ReadyState:        ready,
		State:             m.st.state,
	}
}
