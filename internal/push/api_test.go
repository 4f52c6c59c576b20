package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(hub *Hub, db Pinger) *mux.Router {
	router := mux.NewRouter()
	NewAPI(hub, db, nil).Register(router)
	return router
}

func TestAPI_Health(t *testing.T) {
	hub, _ := newTestHub(t, DefaultConfig())

	tests := []struct {
		name   string
		db     Pinger
		status string
	}{
		{"no journal", nil, "healthy"},
		{"journal up", fakePinger{}, "healthy"},
		{"journal down", fakePinger{err: errors.New("connection refused")}, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(hub, tt.db).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				Status string `json:"status"`
			}
			json.NewDecoder(rec.Body).Decode(&body)
			if body.Status != tt.status {
				t.Errorf("health status = %q, want %q", body.Status, tt.status)
			}
		})
	}
}

func TestAPI_Sessions(t *testing.T) {
	hub, server := newTestHub(t, DefaultConfig())
	ws := dial(t, server)
	register(t, hub, ws, "desktop-1")
	router := newTestRouter(hub, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	var list struct {
		Count    int           `json:"count"`
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || list.Sessions[0].Identity != "desktop-1" {
		t.Errorf("sessions = %+v", list)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/desktop-1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET session status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nobody", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown session status = %d, want 404", rec.Code)
	}
}

func TestAPI_SendCommand(t *testing.T) {
	hub, server := newTestHub(t, DefaultConfig())
	ws := dial(t, server)
	register(t, hub, ws, "desktop-1")
	router := newTestRouter(hub, nil)

	tests := []struct {
		name     string
		identity string
		body     string
		want     int
	}{
		{"delivered", "desktop-1", `{"command":"refresh","data":{"scope":"grid1"}}`, http.StatusAccepted},
		{"unknown identity", "nobody", `{"command":"refresh"}`, http.StatusNotFound},
		{"missing command", "desktop-1", `{"data":{}}`, http.StatusBadRequest},
		{"bad json", "desktop-1", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions/"+tt.identity+"/commands", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if got := readText(t, ws); got != `{"command":"refresh","scope":"grid1"}` {
		t.Errorf("client frame = %s", got)
	}
}

func TestAPI_BroadcastAndClose(t *testing.T) {
	hub, server := newTestHub(t, DefaultConfig())
	ws := dial(t, server)
	register(t, hub, ws, "desktop-1")
	router := newTestRouter(hub, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"text":"refreshAll"}`)))
	var resp BroadcastResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp.Delivered != 1 {
		t.Errorf("broadcast = %d %+v", rec.Code, resp)
	}
	if got := readText(t, ws); got != "refreshAll" {
		t.Errorf("client frame = %q", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty broadcast status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/desktop-1", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/broadcast", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", rec.Code)
	}
}
