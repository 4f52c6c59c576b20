package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/dynamiatools/wscommands/internal/command"
	"github.com/dynamiatools/wscommands/internal/journal"
	"github.com/dynamiatools/wscommands/internal/metrics"
)

// Errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrHubClosed       = errors.New("hub closed")
)

// Config configures a Hub.
type Config struct {
	AllowedOrigins        []string // "*" allows any origin
	AllowedOriginPatterns []string // path.Match patterns, e.g. "https://*.example.com"
	BroadcastConcurrency  int
	WriteTimeout          time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:       []string{"*"},
		BroadcastConcurrency: 16,
		WriteTimeout:         5 * time.Second,
	}
}

// SessionInfo describes one connected client.
type SessionInfo struct {
	ID          uuid.UUID `json:"id"`
	Identity    string    `json:"identity"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithJournal records targeted pushes.
func WithJournal(r journal.Recorder) Option {
	return func(h *Hub) {
		h.journal = r
	}
}

// WithMetrics records hub metrics.
func WithMetrics(m *metrics.Server) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// Hub holds the live command sessions.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	journal  journal.Recorder
	metrics  *metrics.Server

	mu         sync.RWMutex
	conns      map[uuid.UUID]*conn
	byIdentity map[string]*conn
	closed     bool

	wg sync.WaitGroup
}

// NewHub creates a Hub.
func NewHub(cfg Config, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BroadcastConcurrency < 1 {
		cfg.BroadcastConcurrency = DefaultConfig().BroadcastConcurrency
	}

	h := &Hub{
		cfg:        cfg,
		logger:     logger.With("component", "hub"),
		journal:    journal.Nop{},
		conns:      make(map[uuid.UUID]*conn),
		byIdentity: make(map[string]*conn),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// checkOrigin accepts requests without an Origin header and origins that
// match the configured list or patterns.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	for _, pattern := range h.cfg.AllowedOriginPatterns {
		if ok, _ := path.Match(pattern, origin); ok {
			return true
		}
	}

	h.logger.Warn("origin rejected", "origin", origin)
	return false
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Debug("upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &conn{
		id:           uuid.New(),
		ws:           ws,
		remoteAddr:   r.RemoteAddr,
		connectedAt:  time.Now().UTC(),
		writeTimeout: h.cfg.WriteTimeout,
	}

	if !h.add(c) {
		c.close()
		return
	}
	defer h.remove(c)

	h.logger.Info("session opened", "session_id", c.id, "remote_addr", c.remoteAddr)

	h.readLoop(c)
}

func (h *Hub) add(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	h.wg.Add(1)
	h.metrics.SetSessions(len(h.conns))
	return true
}

func (h *Hub) remove(c *conn) {
	c.close()

	h.mu.Lock()
	delete(h.conns, c.id)
	if c.identity != "" && h.byIdentity[c.identity] == c {
		delete(h.byIdentity, c.identity)
	}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.SetSessions(n)
	h.logger.Info("session closed", "session_id", c.id, "identity", c.identity)
	h.wg.Done()
}

func (h *Hub) readLoop(c *conn) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("session read error", "session_id", c.id, "error", err)
			}
			return
		}

		frame := string(msg)
		switch frame {
		case command.Ping:
			if err := c.write(context.Background(), []byte(command.Pong)); err != nil {
				h.logger.Warn("failed to send pong", "session_id", c.id, "error", err)
				return
			}
		case command.Pong:
			// Reply to our heartbeat
		case "":
			h.logger.Warn("empty frame ignored", "session_id", c.id)
		default:
			h.bind(c, frame)
		}
	}
}

// bind registers identity for c, closing any other session already bound
// to it.
func (h *Hub) bind(c *conn, identity string) {
	h.mu.Lock()
	prev := h.byIdentity[identity]
	if c.identity != "" && h.byIdentity[c.identity] == c {
		delete(h.byIdentity, c.identity)
	}
	c.identity = identity
	h.byIdentity[identity] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		h.logger.Info("replacing session", "identity", identity, "old_session_id", prev.id)
		prev.close()
	}

	h.logger.Info("session registered", "session_id", c.id, "identity", identity)
}

func (h *Hub) lookup(identity string) *conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byIdentity[identity]
}

// SendCommand pushes a structured command to the session bound to
// identity. The frame is payload with "command" set to name.
func (h *Hub) SendCommand(ctx context.Context, identity, name string, payload map[string]any) error {
	data, err := command.Encode(name, payload)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	entry := journal.Entry{
		Identity: identity,
		Command:  name,
		Payload:  json.RawMessage(data),
	}

	c := h.lookup(identity)
	if c == nil {
		entry.Error = ErrSessionNotFound.Error()
		h.journal.Record(entry)
		h.metrics.Push(false)
		return ErrSessionNotFound
	}

	if err := c.write(ctx, data); err != nil {
		h.logger.Warn("push failed, closing session",
			"identity", identity,
			"command", name,
			"error", err,
		)
		c.close()
		entry.Error = err.Error()
		h.journal.Record(entry)
		h.metrics.Push(false)
		return fmt.Errorf("send command: %w", err)
	}

	entry.Delivered = true
	h.journal.Record(entry)
	h.metrics.Push(true)

	h.logger.Debug("command pushed", "identity", identity, "command", name)
	return nil
}

// Broadcast sends text to every identified session and returns how many
// received it. Sessions that fail are closed.
func (h *Hub) Broadcast(ctx context.Context, text string) (int, error) {
	type target struct {
		identity string
		c        *conn
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.byIdentity))
	for identity, c := range h.byIdentity {
		targets = append(targets, target{identity: identity, c: c})
	}
	h.mu.RUnlock()

	var delivered atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.BroadcastConcurrency)

	for _, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := t.c.write(gctx, []byte(text)); err != nil {
				h.logger.Warn("broadcast failed, closing session",
					"identity", t.identity,
					"error", err,
				)
				t.c.close()
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}

	err := g.Wait()
	n := int(delivered.Load())
	h.metrics.Broadcast(n)

	if err != nil {
		return n, fmt.Errorf("broadcast: %w", err)
	}
	return n, nil
}

// BroadcastHeartbeat sends PING to every identified session.
func (h *Hub) BroadcastHeartbeat(ctx context.Context) (int, error) {
	return h.Broadcast(ctx, command.Ping)
}

// CloseSession closes the session bound to identity.
func (h *Hub) CloseSession(identity string) error {
	c := h.lookup(identity)
	if c == nil {
		return ErrSessionNotFound
	}
	c.close()
	h.logger.Info("session closed by server", "identity", identity)
	return nil
}

// FindSession returns the session bound to identity.
func (h *Hub) FindSession(identity string) (SessionInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.byIdentity[identity]
	if c == nil {
		return SessionInfo{}, false
	}
	return c.info(), true
}

// Sessions returns the identified sessions, oldest first.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	out := make([]SessionInfo, 0, len(h.byIdentity))
	for _, c := range h.byIdentity {
		out = append(out, c.info())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of open connections, identified or not.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes every session and waits for their handlers to return.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// conn is one server-side session. identity is guarded by Hub.mu.
type conn struct {
	id           uuid.UUID
	ws           *websocket.Conn
	remoteAddr   string
	connectedAt  time.Time
	writeTimeout time.Duration
	identity     string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *conn) info() SessionInfo {
	return SessionInfo{
		ID:          c.id,
		Identity:    c.identity,
		RemoteAddr:  c.remoteAddr,
		ConnectedAt: c.connectedAt,
	}
}

// write sends a text frame. The deadline is the earlier of the context
// deadline and the write timeout.
func (c *conn) write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)

	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// close sends a close frame and closes the socket. Safe to call more than
// once; the read loop then exits and the hub removes the session.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.ws.Close()
	})
}
