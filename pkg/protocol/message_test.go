package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/session"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
		},
		{
			name:    "error message",
			msgType: TypeError,
			data:    ErrorData{Message: "bad frame"},
		},
		{
			name:    "nil data",
			msgType: TypeRestart,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestFrameMessageRoundTrip(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}

	msg, err := NewFrameMessage(640, 480, jpeg, 42)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeFrame {
		t.Errorf("type = %v, want frame", parsed.Type)
	}

	frame, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frame.FrameID != 42 || frame.Width != 640 || frame.Format != "jpeg" {
		t.Errorf("frame = %+v", frame)
	}

	data, err := frame.DecodeFrameData()
	if err != nil {
		t.Fatalf("DecodeFrameData() error = %v", err)
	}
	if string(data) != string(jpeg) {
		t.Errorf("decoded = %v, want %v", data, jpeg)
	}
}

func TestDecodeImage(t *testing.T) {
	payload := []byte("not really a jpeg")
	enc := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name    string
		in      string
		wantErr error
		invalid bool
	}{
		{"plain base64", enc, nil, false},
		{"data url", "data:image/jpeg;base64," + enc, nil, false},
		{"whitespace", " " + enc + "\n", nil, false},
		{"empty", "", ErrEmptyImage, false},
		{"prefix only", "data:image/png;base64,", ErrEmptyImage, false},
		{"invalid", "!!!notbase64", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeImage(tt.in)
			if tt.invalid {
				if err == nil {
					t.Fatal("expected error for invalid base64")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeImage() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && string(got) != string(payload) {
				t.Errorf("DecodeImage() = %q", got)
			}
		})
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"no type", `{"data":{}}`},
		{"truncated", `{"type":"frame"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.input)); err == nil {
				t.Error("ParseMessage() expected error")
			}
		})
	}
}

func TestSettingsData_Apply(t *testing.T) {
	cur := session.Settings{Threshold: 15, SmoothingWindow: 5, Metric: posture.MetricAngle, Version: 3}
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		data    SettingsData
		want    posture.Config
		wantErr error
	}{
		{
			name: "empty keeps current",
			data: SettingsData{},
			want: posture.Config{Threshold: 15, SmoothingWindow: 5, Metric: posture.MetricAngle},
		},
		{
			name: "threshold only",
			data: SettingsData{Threshold: f(20)},
			want: posture.Config{Threshold: 20, SmoothingWindow: 5, Metric: posture.MetricAngle},
		},
		{
			name: "all fields",
			data: SettingsData{Threshold: f(5), Smoothing: i(10), Metric: s("offset")},
			want: posture.Config{Threshold: 5, SmoothingWindow: 10, Metric: posture.MetricOffset},
		},
		{
			name:    "threshold out of range",
			data:    SettingsData{Threshold: f(31)},
			wantErr: posture.ErrThresholdRange,
		},
		{
			name:    "smoothing out of range",
			data:    SettingsData{Smoothing: i(0)},
			wantErr: posture.ErrSmoothingRange,
		},
		{
			name:    "unknown metric",
			data:    SettingsData{Metric: s("tilt")},
			wantErr: posture.ErrUnknownMetric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.data.Apply(cur)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Threshold != tt.want.Threshold || got.SmoothingWindow != tt.want.SmoothingWindow || got.Metric != tt.want.Metric {
				t.Errorf("Apply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusFromUpdate(t *testing.T) {
	settings := session.Settings{Threshold: 15, SmoothingWindow: 5, Metric: posture.MetricAngle, Version: 2}

	tests := []struct {
		name   string
		update session.Update
		check  func(t *testing.T, s StatusData)
	}{
		{
			name: "calibrating",
			update: session.Update{
				SessionID: "abc", Seq: 1, Detected: true, Settings: settings,
				Raw:      posture.NewMetric(11, 11),
				Smoothed: posture.NewMetric(10.5, 10.5),
				Status: posture.Status{
					State: posture.StateCalibrating, Current: posture.NewMetric(10.5, 10.5),
					Baseline: 10.5, HasBaseline: true, Remaining: 2500 * time.Millisecond,
				},
			},
			check: func(t *testing.T, s StatusData) {
				if s.State != "CALIBRATING" || s.Text != "CALIBRATING... 2s" {
					t.Errorf("state/text = %q/%q", s.State, s.Text)
				}
				if s.Remaining != 2.5 {
					t.Errorf("Remaining = %v, want 2.5", s.Remaining)
				}
				if s.Readout != "Angle: 10.5" {
					t.Errorf("Readout = %q", s.Readout)
				}
				if s.Current == nil || *s.Current != 10.5 || s.Raw == nil || *s.Raw != 11 {
					t.Errorf("Current/Raw = %v/%v", s.Current, s.Raw)
				}
			},
		},
		{
			name: "warning",
			update: session.Update{
				SessionID: "abc", Seq: 9, Detected: true, Settings: settings,
				Raw:      posture.NewMetric(40, 40),
				Smoothed: posture.NewMetric(30, 30),
				Status: posture.Status{
					State: posture.StateWarning, Current: posture.NewMetric(30, 30),
					Baseline: 10, HasBaseline: true, BadDuration: 1200 * time.Millisecond,
				},
			},
			check: func(t *testing.T, s StatusData) {
				if s.Text != "WARNING (1.2s)" || s.BadDuration != 1.2 {
					t.Errorf("text/duration = %q/%v", s.Text, s.BadDuration)
				}
				if s.Baseline == nil || *s.Baseline != 10 {
					t.Errorf("Baseline = %v", s.Baseline)
				}
				if s.Readout != "Cur: 30.0 | Base: 10.0" {
					t.Errorf("Readout = %q", s.Readout)
				}
				if s.Remaining != 0 {
					t.Errorf("Remaining should be zero while monitoring, got %v", s.Remaining)
				}
			},
		},
		{
			name: "no data",
			update: session.Update{
				SessionID: "abc", Seq: 10, Settings: settings,
				Status: posture.Status{
					State: posture.StateNoData, Previous: posture.StateBad,
					Baseline: 10, HasBaseline: true,
				},
			},
			check: func(t *testing.T, s StatusData) {
				if s.State != "NO_DATA" || s.Previous != "BAD" || s.Text != "NO POSTURE DETECTED" {
					t.Errorf("status = %+v", s)
				}
				if s.Current != nil || s.Raw != nil || s.Detected {
					t.Errorf("absent metric should not be serialized: %+v", s)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := StatusFromUpdate(tt.update, 7)
			if s.SessionID != "abc" || s.FrameID != 7 || s.SettingsVersion != 2 || s.Metric != "angle" {
				t.Errorf("header = %+v", s)
			}
			tt.check(t, s)
		})
	}
}

func TestStatusMessageJSON(t *testing.T) {
	u := session.Update{
		SessionID: "abc",
		Seq:       3,
		Status:    posture.Status{State: posture.StateCalibrationFailed},
	}

	msg, err := NewStatusMessage(u, 0)
	if err != nil {
		t.Fatalf("NewStatusMessage() error = %v", err)
	}
	raw, _ := msg.Bytes()

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["type"] != "status" {
		t.Errorf("type = %v", generic["type"])
	}
	data := generic["data"].(map[string]any)
	if data["text"] != "Calibration Failed. Restart." {
		t.Errorf("text = %v", data["text"])
	}
	for _, key := range []string{"current", "baseline", "frame_id", "remaining"} {
		if _, ok := data[key]; ok {
			t.Errorf("%q should be omitted", key)
		}
	}
}

func TestHelloAndErrorMessages(t *testing.T) {
	hello, err := NewHelloMessage("abc", session.Settings{Threshold: 12, SmoothingWindow: 3, Metric: posture.MetricOffset, Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	h, err := hello.GetHelloData()
	if err != nil {
		t.Fatal(err)
	}
	if h.SessionID != "abc" || h.Settings.Threshold != 12 || h.Settings.Smoothing != 3 || h.Settings.Metric != "offset" {
		t.Errorf("hello = %+v", h)
	}

	msg, err := NewErrorMessage("bad frame %d", 4)
	if err != nil {
		t.Fatal(err)
	}
	e, err := msg.GetErrorData()
	if err != nil {
		t.Fatal(err)
	}
	if e.Message != "bad frame 4" {
		t.Errorf("error = %q", e.Message)
	}
}

func TestPingPongMessage(t *testing.T) {
	ping, err := NewPingMessage("p1")
	if err != nil {
		t.Fatal(err)
	}
	pd, err := ping.GetPingData()
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != "p1" || pd.Timestamp == 0 {
		t.Errorf("ping = %+v", pd)
	}

	pong, err := NewPongMessage("p1", 1000, 1025)
	if err != nil {
		t.Fatal(err)
	}
	po, err := pong.GetPongData()
	if err != nil {
		t.Fatal(err)
	}
	if po.LatencyMs != 25 {
		t.Errorf("LatencyMs = %d, want 25", po.LatencyMs)
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewFrameMessage(640, 480, make([]byte, 30000), 1)
	raw, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseMessage(raw)
	}
}
