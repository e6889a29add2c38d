package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return h, cancel
}

func serve(t *testing.T, h *Hub, addr string) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/watch", h.Handler())

	go app.Listen(addr)
	time.Sleep(100 * time.Millisecond)
	return app
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	return ws
}

func readJSON(t *testing.T, ws *gorilla.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

func TestNew(t *testing.T) {
	h := New("test")
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestClientWants(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		session string
		want    bool
	}{
		{"unfiltered gets session message", "", "a", true},
		{"unfiltered gets hub message", "", "", true},
		{"filtered gets own session", "a", "a", true},
		{"filtered skips other session", "a", "b", false},
		{"filtered gets hub message", "a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{}
			c.filter.Store(&tt.filter)
			if got := c.wants(Message{Session: tt.session}); got != tt.want {
				t.Errorf("wants() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBroadcastWithoutRunDropsWhenFull(t *testing.T) {
	h := New("test")
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.Broadcast(Message{Data: []byte(`{}`)})
	}
	if got := h.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
}

func TestWatchBroadcast(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	app := serve(t, h, ":18090")
	defer app.Shutdown()

	all := dial(t, "ws://localhost:18090/ws/watch")
	defer all.Close()
	one := dial(t, "ws://localhost:18090/ws/watch?session=s1")
	defer one.Close()

	time.Sleep(50 * time.Millisecond)
	if h.ClientCount() != 2 {
		t.Fatalf("ClientCount = %d, want 2", h.ClientCount())
	}

	if err := h.Publish("s2", map[string]string{"session": "s2"}); err != nil {
		t.Fatal(err)
	}
	if err := h.Publish("s1", map[string]string{"session": "s1"}); err != nil {
		t.Fatal(err)
	}

	// The unfiltered watcher sees both, in order.
	if got := readJSON(t, all)["session"]; got != "s2" {
		t.Errorf("first message session = %v, want s2", got)
	}
	if got := readJSON(t, all)["session"]; got != "s1" {
		t.Errorf("second message session = %v, want s1", got)
	}

	// The filtered watcher only sees s1.
	if got := readJSON(t, one)["session"]; got != "s1" {
		t.Errorf("filtered watcher got session %v, want s1", got)
	}

	one.Close()
	time.Sleep(100 * time.Millisecond)
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1 after disconnect", h.ClientCount())
	}
}

func TestSubscribeChangesFilter(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	app := serve(t, h, ":18092")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18092/ws/watch?session=s1")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	if err := ws.WriteJSON(Subscribe{Session: "s2"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	h.Publish("s1", map[string]string{"session": "s1"})
	h.Publish("s2", map[string]string{"session": "s2"})

	if got := readJSON(t, ws)["session"]; got != "s2" {
		t.Errorf("after subscribe got session %v, want s2", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h, cancel := startHub(t)

	app := serve(t, h, ":18091")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18091/ws/watch")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected connection to close after hub stopped")
	}
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("hub should report stopped")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}
