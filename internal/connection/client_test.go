package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server running handler per connection.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketDialer_SendReceive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Echo text frames back in upper case
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(strings.ToUpper(string(msg))))
		}
	})
	defer server.Close()

	dialer := NewWebSocketDialer(DefaultDialerConfig(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := dialer.Dial(ctx, wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Send([]byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, err := tr.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(got) != "PING" {
		t.Errorf("Receive() = %q, want PING", got)
	}
}

func TestWebSocketDialer_ServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"))
	})
	defer server.Close()

	dialer := NewWebSocketDialer(DefaultDialerConfig(), nil, nil)

	tr, err := dialer.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	_, err = tr.Receive()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Receive() error = %v, want close 1001", err)
	}
}

func TestWebSocketDialer_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrade", http.StatusForbidden)
	}))
	defer server.Close()

	dialer := NewWebSocketDialer(DefaultDialerConfig(), nil, nil)

	if _, err := dialer.Dial(context.Background(), wsURL(server)); err == nil {
		t.Error("expected dial error")
	}
}

func TestWebSocketDialer_CloseIdempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	dialer := NewWebSocketDialer(DefaultDialerConfig(), nil, nil)

	tr, err := dialer.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	first := tr.Close()
	second := tr.Close()
	if first != second {
		t.Errorf("Close() results differ: %v, %v", first, second)
	}
	if err := tr.Send([]byte("late")); err == nil {
		t.Error("expected Send after Close to fail")
	}
}

func TestManager_WithWebSocketServer(t *testing.T) {
	frames := make(chan string, 4)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, id, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- string(id)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"refresh","scope":"grid1"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	sess, got := recordingSession("desktop-7")
	cfg := testConfig()
	cfg.PageURL = server.URL

	mgr := NewManager(cfg, NewWebSocketDialer(DefaultDialerConfig(), nil, nil), attachedProvider(sess), nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop(context.Background())

	if err := mgr.Init("/ws-commands"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	select {
	case id := <-frames:
		if id != "desktop-7" {
			t.Errorf("identity frame = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received identity")
	}

	select {
	case d := <-got:
		if d.cmd.Name() != "refresh" || d.cmd.Fields()["scope"] != "grid1" {
			t.Errorf("dispatched %v", d.cmd.Fields())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no command dispatched")
	}

	status := mgr.Status()
	if !status.Connected || status.ReadyState != ReadyStateOpen {
		t.Errorf("status = %+v, want open", status)
	}
}
