package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/relay"
)

func newTestServer(t *testing.T, cfg *config.ServerConfig) (*httptest.Server, *relay.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(hub, cfg))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, string) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	m := read(t, conn)
	if m.Type != relay.MessageTypeWelcome || m.From == "" {
		t.Fatalf("expected welcome, got %+v", m)
	}
	return conn, m.From
}

func read(t *testing.T, conn *websocket.Conn) relay.Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m relay.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func write(t *testing.T, conn *websocket.Conn, m relay.Message) {
	t.Helper()

	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebsocketRoomLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{SendQueue: 16})

	a, aID := dial(t, srv, nil)
	b, bID := dial(t, srv, nil)

	write(t, a, relay.Message{Type: relay.MessageTypeJoinRoom, RoomID: "r1"})
	if m := read(t, a); m.Type != relay.MessageTypeJoined {
		t.Fatalf("A: expected joined, got %+v", m)
	}
	write(t, b, relay.Message{Type: relay.MessageTypeJoinRoom, RoomID: "r1"})
	if m := read(t, b); m.Type != relay.MessageTypeJoined {
		t.Fatalf("B: expected joined, got %+v", m)
	}
	if m := read(t, a); m.Type != relay.MessageTypePeerJoined || m.From != bID {
		t.Fatalf("A: expected peer-joined(%s), got %+v", bID, m)
	}

	write(t, a, relay.Message{Type: relay.MessageTypeFallback, RoomID: "r1", Payload: json.RawMessage(`{"type":"wb"}`)})
	m := read(t, b)
	if m.Type != relay.MessageTypeFallback || m.From != aID || string(m.Payload) != `{"type":"wb"}` {
		t.Fatalf("B: unexpected relay frame %+v", m)
	}

	b.Close()
	if m := read(t, a); m.Type != relay.MessageTypePeerLeft || m.From != bID {
		t.Fatalf("A: expected peer-left(%s), got %+v", bID, m)
	}
}

func TestHealthReportsCounts(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{SendQueue: 16})

	a, _ := dial(t, srv, nil)
	write(t, a, relay.Message{Type: relay.MessageTypeJoinRoom, RoomID: "r1"})
	read(t, a)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status      string `json:"status"`
		Rooms       int64  `json:"rooms"`
		Connections int64  `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Rooms != 1 || body.Connections != 1 {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestOriginAllowList(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{SendQueue: 16, AllowedOrigins: []string{"https://meet.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatalf("expected handshake to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	dial(t, srv, http.Header{"Origin": {"https://meet.example"}})
	dial(t, srv, nil)
}
