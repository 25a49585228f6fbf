package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradesignals/internal/model"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	return env
}

func TestHubBroadcastsSignals(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	// Give the hub a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sig := model.Signal{
		Symbol: "SPY", Timeframe: model.TF5m, Side: model.SideLong,
		Action: model.ActionOpen, Price: 100,
	}
	if err := hub.Notify(context.Background(), sig); err != nil {
		t.Fatalf("notify: %v", err)
	}

	env := readEnvelope(t, conn)
	var typ string
	json.Unmarshal(env["type"], &typ)
	if typ != "signal" {
		t.Errorf("expected type=signal, got %q", typ)
	}
	var got model.Signal
	if err := json.Unmarshal(env["signal"], &got); err != nil {
		t.Fatalf("parse signal: %v", err)
	}
	if got.Symbol != "SPY" || got.Action != model.ActionOpen || got.Price != 100 {
		t.Errorf("unexpected signal %+v", got)
	}
}

func TestNewClientReceivesBacklog(t *testing.T) {
	hub := NewHub()

	// Fired before anyone was connected.
	if err := hub.Notify(context.Background(), model.Signal{
		Symbol: "SPY", Timeframe: model.TF15m, Side: model.SideShort,
		Action: model.ActionClose, Price: 99,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	env := readEnvelope(t, conn)
	var got model.Signal
	if err := json.Unmarshal(env["signal"], &got); err != nil {
		t.Fatalf("parse signal: %v", err)
	}
	if got.Action != model.ActionClose || got.Price != 99 {
		t.Errorf("backlog signal mismatch: %+v", got)
	}
}
