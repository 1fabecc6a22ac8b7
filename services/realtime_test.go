package services

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
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialTestHub stands up a WebSocket endpoint that attaches every connection
// to the hub, then dials it as a client.
func dialTestHub(t *testing.T, hub *Hub, matterID, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.Attach(matterID, userID, conn)
		go hub.ReadLoop(client)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial test hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestSubscribeGreetsWithConnected(t *testing.T) {
	hub := NewHub(nil, time.Minute, discardLogger())
	conn := dialTestHub(t, hub, "m1", "u1")

	var frame map[string]string
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if frame["type"] != EventTypeConnected {
		t.Errorf("first frame type = %q, want %q", frame["type"], EventTypeConnected)
	}
	if frame["matter_id"] != "m1" || frame["user_id"] != "u1" {
		t.Errorf("greeting = %v, want matter_id m1 and user_id u1", frame)
	}
}

func TestBroadcastFramesCarryEventType(t *testing.T) {
	hub := NewHub(nil, time.Minute, discardLogger())
	conn := dialTestHub(t, hub, "m1", "u1")

	var greeting map[string]any
	if err := conn.ReadJSON(&greeting); err != nil {
		t.Fatalf("read greeting: %v", err)
	}

	payload, err := json.Marshal(ProgressEvent{
		Type:        EventTypeJobProgress,
		JobID:       "j1",
		Status:      "processing",
		Stage:       "ocr",
		ProgressPct: 40,
	})
	if err != nil {
		t.Fatal(err)
	}
	hub.broadcast("m1", payload)

	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if frame["type"] != EventTypeJobProgress {
		t.Errorf("frame type = %v, want %q", frame["type"], EventTypeJobProgress)
	}
	if frame["progress_pct"] != float64(40) {
		t.Errorf("progress_pct = %v, want 40", frame["progress_pct"])
	}
}

func TestKeepaliveIsApplicationLevelPing(t *testing.T) {
	hub := NewHub(nil, 50*time.Millisecond, discardLogger())
	conn := dialTestHub(t, hub, "m1", "u1")

	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	// The next frame on an otherwise idle stream is the keepalive, and it
	// must arrive as a readable JSON message, not a protocol ping frame.
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read keepalive: %v", err)
	}
	if frame["type"] != EventTypePing {
		t.Errorf("keepalive frame type = %v, want %q", frame["type"], EventTypePing)
	}
}

type captureNotifier struct {
	matters []string
	events  []ProgressEvent
}

func (c *captureNotifier) NotifyProgress(_ context.Context, matterID string, event ProgressEvent) {
	c.matters = append(c.matters, matterID)
	c.events = append(c.events, event)
}

func TestDocumentNotificationsCarryTypes(t *testing.T) {
	capture := &captureNotifier{}
	ledger := NewLedger(nil, discardLogger(), capture)

	ledger.NotifyDocumentStatus(context.Background(), "m1", "d1", "ocr_complete")
	ledger.NotifyDocumentReady(context.Background(), "m1", "d1")

	if len(capture.events) != 2 {
		t.Fatalf("got %d events, want 2", len(capture.events))
	}
	status := capture.events[0]
	if status.Type != EventTypeDocumentStatus || status.DocumentID != "d1" || status.Status != "ocr_complete" {
		t.Errorf("status event = %+v", status)
	}
	ready := capture.events[1]
	if ready.Type != EventTypeDocumentReady || ready.DocumentID != "d1" {
		t.Errorf("ready event = %+v", ready)
	}
	for _, m := range capture.matters {
		if m != "m1" {
			t.Errorf("event published to matter %q, want m1", m)
		}
	}
}
