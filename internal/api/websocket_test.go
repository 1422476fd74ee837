package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/NarrativeEngine/internal/events"
)

// newEventServer serves only the event stream of a bare bus.
func newEventServer(t *testing.T) (*events.Bus, string) {
	t.Helper()
	bus := events.NewBus()
	s := New(Options{Name: "test", Events: bus})
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return bus, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
}

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	bus, wsURL := newEventServer(t)

	// Emit some events before connecting
	for i := 0; i < 5; i++ {
		bus.Emit("info", "node.started", "", map[string]interface{}{"i": i})
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 5; i++ {
		if e := readEvent(t, conn); e.Name != "node.started" {
			t.Errorf("expected 'node.started', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	bus, wsURL := newEventServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 1 }, "subscriber registered")
	bus.Emit("info", "trigger.fired", "", map[string]interface{}{"node_id": "door"})

	e := readEvent(t, conn)
	if e.Name != "trigger.fired" {
		t.Errorf("expected 'trigger.fired', got '%s'", e.Name)
	}
	if e.Fields["node_id"] != "door" {
		t.Errorf("expected node_id 'door', got '%v'", e.Fields["node_id"])
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	bus, wsURL := newEventServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 1 }, "subscriber registered")

	conn.Close()

	// Emit events to trigger the subscriber goroutine to notice the close
	for i := 0; i < 5; i++ {
		bus.Emit("info", "node.started", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return bus.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	bus, wsURL := newEventServer(t)

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("client1 failed to connect: %v", err)
	}
	defer conn1.Close()

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("client2 failed to connect: %v", err)
	}
	defer conn2.Close()

	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 2 }, "both subscribers registered")
	bus.Emit("info", "traversal.completed", "", map[string]interface{}{"run_id": "r1"})

	if e := readEvent(t, conn1); e.Name != "traversal.completed" {
		t.Errorf("client1: expected 'traversal.completed', got '%s'", e.Name)
	}
	if e := readEvent(t, conn2); e.Name != "traversal.completed" {
		t.Errorf("client2: expected 'traversal.completed', got '%s'", e.Name)
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	bus := events.NewBus()
	s := New(Options{Name: "test", Events: bus, Credentials: testCredentials})
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial without credentials to fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("expected 401 response, got %v", resp)
	}
}
