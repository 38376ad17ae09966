package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techscire/scirecount-core/internal/broadcast"
	"github.com/techscire/scirecount-core/internal/device"
	"github.com/techscire/scirecount-core/internal/infrastructure/config"
	"github.com/techscire/scirecount-core/internal/infrastructure/logging"
)

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10, SendBuffer: 2}, logging.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestWSClient_DeliverEncodesSnapshot(t *testing.T) {
	hub := testHub(t)
	client := hub.newClient(nil)

	snapshot := broadcast.Snapshot{
		Seq:         1,
		GeneratedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Devices: []broadcast.Entry{{
			DeviceID:     "X1",
			LineCrossing: broadcast.LineCrossing{In: 10, Out: 4},
			Occupancy:    6,
		}},
	}
	if err := client.Deliver(snapshot); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	var msg struct {
		Type      string            `json:"type"`
		EventType string            `json:"event_type"`
		Payload   []broadcast.Entry `json:"payload"`
	}
	if err := json.Unmarshal(<-client.send, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != WSEventDevicesUpdate {
		t.Errorf("type/event_type = %q/%q, want event/devices_update", msg.Type, msg.EventType)
	}
	if len(msg.Payload) != 1 || msg.Payload[0].DeviceID != "X1" || msg.Payload[0].Occupancy != 6 {
		t.Errorf("payload = %+v, want X1 with occupancy 6", msg.Payload)
	}
}

func TestWSClient_DeliverEmptySnapshot(t *testing.T) {
	hub := testHub(t)
	client := hub.newClient(nil)

	if err := client.Deliver(broadcast.Snapshot{Seq: 1}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := string(<-client.send); !strings.Contains(got, `"payload":[]`) {
		t.Errorf("message = %s, want an empty payload array", got)
	}
}

func TestWSClient_DeliverBusyAndClosed(t *testing.T) {
	hub := testHub(t)
	client := hub.newClient(nil)

	for seq := uint64(1); seq <= 2; seq++ {
		if err := client.Deliver(broadcast.Snapshot{Seq: seq}); err != nil {
			t.Fatalf("Deliver(%d) error = %v", seq, err)
		}
	}
	if err := client.Deliver(broadcast.Snapshot{Seq: 3}); !errors.Is(err, broadcast.ErrObserverBusy) {
		t.Errorf("Deliver() on full buffer error = %v, want ErrObserverBusy", err)
	}

	client.close()
	client.close() // second close must not panic
	if err := client.Deliver(broadcast.Snapshot{Seq: 4}); !errors.Is(err, broadcast.ErrObserverClosed) {
		t.Errorf("Deliver() after close error = %v, want ErrObserverClosed", err)
	}
}

func TestHub_EncodeSnapshotCachedBySeq(t *testing.T) {
	hub := testHub(t)

	first, err := hub.encodeSnapshot(broadcast.Snapshot{Seq: 7, Devices: []broadcast.Entry{{DeviceID: "a"}}})
	if err != nil {
		t.Fatalf("encodeSnapshot() error = %v", err)
	}
	again, _ := hub.encodeSnapshot(broadcast.Snapshot{Seq: 7})
	if string(first) != string(again) {
		t.Error("same Seq should reuse the cached encoding")
	}
	next, _ := hub.encodeSnapshot(broadcast.Snapshot{Seq: 8})
	if string(next) == string(first) {
		t.Error("new Seq should be re-encoded")
	}
}

func TestHub_RegisterSubscribesToBroadcaster(t *testing.T) {
	_, env := testServer(t)
	hub := NewHub(config.WebSocketConfig{SendBuffer: 4}, logging.Discard(), env.broadcaster)

	client := hub.newClient(nil)
	hub.Register(context.Background(), client)

	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
	if env.broadcaster.ObserverCount() != 1 {
		t.Errorf("ObserverCount() = %d, want 1", env.broadcaster.ObserverCount())
	}
	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot after Register")
	}

	hub.Unregister(client)
	hub.Unregister(client) // unknown clients are ignored
	if hub.ClientCount() != 0 || env.broadcaster.ObserverCount() != 0 {
		t.Errorf("after Unregister clients=%d observers=%d, want 0/0", hub.ClientCount(), env.broadcaster.ObserverCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after Unregister")
	}
}

// ─── End-to-end Tests ──────────────────────────────────────────────

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readSnapshot(t *testing.T, ws *websocket.Conn) []broadcast.Entry {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string            `json:"type"`
		EventType string            `json:"event_type"`
		Payload   []broadcast.Entry `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.EventType != WSEventDevicesUpdate {
		t.Fatalf("event_type = %q, want %q", msg.EventType, WSEventDevicesUpdate)
	}
	return msg.Payload
}

func TestWebSocket_InitialSnapshotOnConnect(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/sensors/td2000", "application/json", strings.NewReader(`{"deviceId":"pre","in":1}`))
	if err != nil {
		t.Fatalf("POST reading: %v", err)
	}
	resp.Body.Close()

	ws := dialWS(t, ts)
	entries := readSnapshot(t, ws)
	if len(entries) != 1 || entries[0].DeviceID != "pre" {
		t.Errorf("initial snapshot = %+v, want the existing device", entries)
	}
}

func TestWebSocket_EndToEnd(t *testing.T) {
	srv, env := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	observers := []*websocket.Conn{dialWS(t, ts), dialWS(t, ts)}
	for _, ws := range observers {
		if got := readSnapshot(t, ws); len(got) != 0 {
			t.Fatalf("initial snapshot = %+v, want empty", got)
		}
	}

	resp, err := http.Post(ts.URL+"/api/sensors/td2000", "application/json", strings.NewReader(`{"deviceId":"X1","in":10,"out":4}`))
	if err != nil {
		t.Fatalf("POST reading: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d, want 200", resp.StatusCode)
	}

	for i, ws := range observers {
		entries := readSnapshot(t, ws)
		if len(entries) != 1 {
			t.Fatalf("observer %d: len = %d, want 1", i, len(entries))
		}
		e := entries[0]
		if e.DeviceID != "X1" || e.LineCrossing.In != 10 || e.LineCrossing.Out != 4 || e.Occupancy != 6 || e.Status != "online" {
			t.Errorf("observer %d: entry = %+v, want X1 10/4 occupancy 6 online", i, e)
		}
	}

	rows, err := env.history.Query(context.Background(), device.HistoryFilter{DeviceID: "X1"})
	if err != nil {
		t.Fatalf("history Query() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Occupancy != 6 {
		t.Errorf("history = %+v, want one row with occupancy 6", rows)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	ws := dialWS(t, ts)
	readSnapshot(t, ws)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p-1" {
		t.Errorf("response = %+v, want pong p-1", resp)
	}

	if err := ws.WriteJSON(WSMessage{Type: "subscribe", ID: "s-1"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("unknown type reply = %q, want error", resp.Type)
	}
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	srv, env := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	ws := dialWS(t, ts)
	readSnapshot(t, ws)
	if env.broadcaster.ObserverCount() != 1 {
		t.Fatalf("ObserverCount() = %d, want 1", env.broadcaster.ObserverCount())
	}

	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.broadcaster.ObserverCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if env.broadcaster.ObserverCount() != 0 {
		t.Errorf("ObserverCount() after disconnect = %d, want 0", env.broadcaster.ObserverCount())
	}
	if srv.hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after disconnect = %d, want 0", srv.hub.ClientCount())
	}
}
