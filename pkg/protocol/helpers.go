package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/session"
)

var (
	// ErrMissingType is returned for messages without a type
	ErrMissingType = errors.New("protocol: message type missing")
	// ErrEmptyImage is returned when a frame carries no image data
	ErrEmptyImage = errors.New("protocol: empty image data")
)

// DecodeImage decodes base64 image data. A data-URL prefix such as
// "data:image/jpeg;base64," is stripped at the first comma.
func DecodeImage(s string) ([]byte, error) {
	if _, after, ok := strings.Cut(s, ","); ok {
		s = after
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewSettingsMessage creates a settings update message
func NewSettingsMessage(data SettingsData) (*Message, error) {
	return NewMessage(TypeSettings, data)
}

// NewRestartMessage creates a restart message
func NewRestartMessage() (*Message, error) {
	return NewMessage(TypeRestart, nil)
}

// NewHelloMessage creates the session greeting
func NewHelloMessage(sessionID string, s session.Settings) (*Message, error) {
	return NewMessage(TypeHello, HelloData{
		SessionID: sessionID,
		Settings:  SettingsStateFrom(s),
	})
}

// NewStatusMessage creates a status message for one session update
func NewStatusMessage(u session.Update, frameID uint64) (*Message, error) {
	return NewMessage(TypeStatus, StatusFromUpdate(u, frameID))
}

// NewErrorMessage creates an error message
func NewErrorMessage(format string, args ...any) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: fmt.Sprintf(format, args...)})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Conversions
// =============================================================================

// SettingsStateFrom converts a session settings snapshot
func SettingsStateFrom(s session.Settings) SettingsState {
	return SettingsState{
		Threshold: s.Threshold,
		Smoothing: s.SmoothingWindow,
		Metric:    string(s.Metric),
		Version:   s.Version,
	}
}

// StatusFromUpdate flattens a session update for the wire
func StatusFromUpdate(u session.Update, frameID uint64) StatusData {
	st := u.Status
	out := StatusData{
		SessionID:       u.SessionID,
		FrameID:         frameID,
		Seq:             u.Seq,
		State:           st.State.String(),
		Text:            st.Text(),
		Readout:         st.Readout(),
		Detected:        u.Detected,
		Metric:          string(u.Settings.Metric),
		SettingsVersion: u.Settings.Version,
	}

	if st.State == posture.StateNoData {
		out.Previous = st.Previous.String()
	}
	if u.Smoothed.Valid {
		out.Current = ptr(u.Smoothed.Value)
	}
	if u.Raw.Valid {
		out.Raw = ptr(u.Raw.Value)
	}
	if st.HasBaseline {
		out.Baseline = ptr(st.Baseline)
	}
	switch st.State {
	case posture.StateCalibrating:
		out.Remaining = st.Remaining.Seconds()
	case posture.StateWarning, posture.StateBad:
		out.BadDuration = st.BadDuration.Seconds()
	}
	return out
}

// Apply merges a partial update onto the current settings
func (d SettingsData) Apply(cur session.Settings) (posture.Config, error) {
	cfg := cur.Config()
	if d.Threshold != nil {
		cfg.Threshold = *d.Threshold
	}
	if d.Smoothing != nil {
		cfg.SmoothingWindow = *d.Smoothing
	}
	if d.Metric != nil {
		kind, err := posture.ParseMetricKind(*d.Metric)
		if err != nil {
			return posture.Config{}, err
		}
		cfg.Metric = kind
	}
	return cfg, cfg.Validate()
}

func ptr(v float64) *float64 {
	return &v
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return DecodeImage(f.Data)
}

// GetSettingsData extracts a settings update from a message
func (m *Message) GetSettingsData() (*SettingsData, error) {
	var data SettingsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
