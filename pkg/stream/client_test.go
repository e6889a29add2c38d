package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/posture-guard/pkg/protocol"
)

type stubSource struct {
	frames int
	fail   bool
}

func (s *stubSource) CaptureJPEG() ([]byte, error) {
	if s.fail {
		return nil, errors.New("no frame")
	}
	s.frames++
	return []byte("jpeg"), nil
}

func TestSessionURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		opts    DialOptions
		want    string
		wantErr bool
	}{
		{"http", "http://localhost:5000", DialOptions{}, "ws://localhost:5000/ws/session", false},
		{"https trailing slash", "https://posture.example.com/", DialOptions{}, "wss://posture.example.com/ws/session", false},
		{"ws passthrough", "ws://10.0.0.2:5000", DialOptions{SessionID: "desk-1"}, "ws://10.0.0.2:5000/ws/session/desk-1", false},
		{"query", "http://h", DialOptions{Threshold: 12.5, Smoothing: 3, Metric: "offset"},
			"ws://h/ws/session?metric=offset&smoothing=3&threshold=12.5", false},
		{"bad scheme", "ftp://h", DialOptions{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SessionURL(tt.base, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SessionURL error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SessionURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientRoundTrip(t *testing.T) {
	h := newTestHub()
	app := listen(t, h, ":18104")
	defer app.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, "http://localhost:18104", DialOptions{SessionID: "desk-9", Threshold: 12, Smoothing: 2})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if c.SessionID() != "desk-9" {
		t.Errorf("SessionID = %q, want desk-9", c.SessionID())
	}
	if s := c.Settings(); s.Threshold != 12 || s.Smoothing != 2 || s.Version != 1 {
		t.Errorf("initial settings = %+v", s)
	}

	for i := 1; i <= 2; i++ {
		id, err := c.SendFrame(640, 480, []byte("jpeg"))
		if err != nil {
			t.Fatalf("SendFrame: %v", err)
		}
		if id != uint64(i) {
			t.Errorf("frame id = %d, want %d", id, i)
		}
	}
	for i := 1; i <= 2; i++ {
		select {
		case st := <-c.Statuses():
			if st.FrameID != uint64(i) || st.SessionID != "desk-9" {
				t.Errorf("status = %+v", st)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for status")
		}
	}

	threshold := 25.0
	if err := c.Apply(protocol.SettingsData{Threshold: &threshold}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Settings().Version != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s := c.Settings(); s.Threshold != 25 || s.Version != 2 {
		t.Errorf("acknowledged settings = %+v", s)
	}

	bad := 2.0
	if err := c.Apply(protocol.SettingsData{Threshold: &bad}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	select {
	case err := <-c.Errors():
		if !strings.Contains(err.Error(), "threshold") {
			t.Errorf("server error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}

	if err := c.Restart(); err != nil {
		t.Errorf("Restart: %v", err)
	}
	if err := c.Ping("p1"); err != nil {
		t.Errorf("Ping: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := c.SendFrame(1, 1, nil); !errors.Is(err, ErrClientClosed) {
		t.Errorf("SendFrame after close = %v, want ErrClientClosed", err)
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	if _, ok := <-c.Statuses(); ok {
		t.Error("Statuses not closed after Close")
	}
}

func TestClientStream(t *testing.T) {
	h := newTestHub()
	app := listen(t, h, ":18105")
	defer app.Shutdown()

	c, err := Dial(context.Background(), "ws://localhost:18105", DialOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	src := &stubSource{}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := c.Stream(ctx, src, 640, 480, 20*time.Millisecond); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if src.frames == 0 {
		t.Fatal("Stream captured no frames")
	}

	select {
	case st := <-c.Statuses():
		if st.FrameID == 0 {
			t.Errorf("status frame id = 0")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status for streamed frames")
	}
}

func TestDialRejected(t *testing.T) {
	h := newTestHub()
	app := listen(t, h, ":18106")
	defer app.Shutdown()

	_, err := Dial(context.Background(), "http://localhost:18106", DialOptions{Threshold: 99})
	if err == nil {
		t.Fatal("Dial with invalid threshold succeeded")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("Dial error = %v, want HTTP 400", err)
	}
}
