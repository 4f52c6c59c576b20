package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Pinger reports the health of a dependency such as the journal database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API serves the hub's admin endpoints.
type API struct {
	hub    *Hub
	db     Pinger // nil when the journal is disabled
	logger *slog.Logger
}

// NewAPI creates the admin API. db may be nil.
func NewAPI(hub *Hub, db Pinger, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		hub:    hub,
		db:     db,
		logger: logger.With("component", "api"),
	}
}

// Register adds the admin routes to router.
func (a *API) Register(router *mux.Router) {
	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/sessions", a.handleListSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{identity}", a.handleGetSession).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{identity}", a.handleCloseSession).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{identity}/commands", a.handleSendCommand).Methods(http.MethodPost)
	router.HandleFunc("/broadcast", a.handleBroadcast).Methods(http.MethodPost)
	router.HandleFunc("/heartbeat", a.handleHeartbeat).Methods(http.MethodPost)
}

// SendCommandRequest is the body of POST /sessions/{identity}/commands.
type SendCommandRequest struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data,omitempty"`
}

// BroadcastRequest is the body of POST /broadcast.
type BroadcastRequest struct {
	Text string `json:"text"`
}

// BroadcastResponse reports how many sessions received a broadcast.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	health.Components["hub"] = map[string]any{
		"connections": a.hub.Count(),
		"sessions":    len(a.hub.Sessions()),
	}

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Components["journal"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["journal"] = "connected"
		}
	}

	writeJSON(w, http.StatusOK, health)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := a.hub.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	info, ok := a.hub.FindSession(identity)
	if !ok {
		writeError(w, http.StatusNotFound, ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	if err := a.hub.CloseSession(identity); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]

	var req SendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	err := a.hub.SendCommand(r.Context(), identity, req.Command, req.Data)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		a.logger.Warn("send command failed", "identity", identity, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

func (a *API) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	n, err := a.hub.Broadcast(r.Context(), req.Text)
	if err != nil {
		a.logger.Warn("broadcast interrupted", "error", err, "delivered", n)
	}
	writeJSON(w, http.StatusOK, BroadcastResponse{Delivered: n})
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	n, err := a.hub.BroadcastHeartbeat(r.Context())
	if err != nil {
		a.logger.Warn("heartbeat interrupted", "error", err, "delivered", n)
	}
	writeJSON(w, http.StatusOK, BroadcastResponse{Delivered: n})
}
