// Package posture turns landmark sets into a slouch signal: metric
// calculation, temporal smoothing, calibration and the bad-posture
// debounce state machine.
package posture

import (
	"errors"
	"fmt"
	"time"
)

// Tunable ranges exposed to operators.
const (
	DefaultThreshold = 15.0
	MinThreshold     = 5.0
	MaxThreshold     = 30.0

	DefaultSmoothingWindow = 5
	MinSmoothingWindow     = 1
	MaxSmoothingWindow     = 10
)

// Fixed timing of the state machine.
const (
	CalibrationDuration = 3 * time.Second
	DebounceWindow      = 3 * time.Second
)

// Sentinel errors for settings validation.
var (
	ErrThresholdRange = fmt.Errorf("posture: threshold must be within %.0f-%.0f", MinThreshold, MaxThreshold)
	ErrSmoothingRange = fmt.Errorf("posture: smoothing window must be within %d-%d", MinSmoothingWindow, MaxSmoothingWindow)
	ErrUnknownMetric  = errors.New("posture: unknown metric")
)

// MetricKind selects which calculator drives a session.
type MetricKind string

const (
	// MetricAngle is the ear-shoulder angle (degrees).
	MetricAngle MetricKind = "angle"
	// MetricOffset is the vertical offset score (0-100).
	MetricOffset MetricKind = "offset"
)

// ParseMetricKind parses "angle" or "offset". Empty selects angle.
func ParseMetricKind(s string) (MetricKind, error) {
	switch MetricKind(s) {
	case "", MetricAngle:
		return MetricAngle, nil
	case MetricOffset:
		return MetricOffset, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// Config holds the tunables of one monitoring session
type Config struct {
	Threshold       float64    `json:"threshold"`        // Allowed deviation from baseline
	SmoothingWindow int        `json:"smoothing_window"` // Moving average length
	Metric          MetricKind `json:"metric"`           // Calculator to use

	CalibrationDuration time.Duration `json:"-"` // Baseline capture window
	DebounceWindow      time.Duration `json:"-"` // Sustained-bad time before BAD
}

// DefaultConfig returns the recommended configuration for webcam monitoring
func DefaultConfig() Config {
	return Config{
		Threshold:           DefaultThreshold,
		SmoothingWindow:     DefaultSmoothingWindow,
		Metric:              MetricAngle,
		CalibrationDuration: CalibrationDuration,
		DebounceWindow:      DebounceWindow,
	}
}

// SensitiveConfig flags smaller deviations and reacts faster to change.
func SensitiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Threshold = 8
	cfg.SmoothingWindow = 3
	return cfg
}

// RelaxedConfig tolerates larger deviations and damps noise harder.
func RelaxedConfig() Config {
	cfg := DefaultConfig()
	cfg.Threshold = 25
	cfg.SmoothingWindow = 8
	return cfg
}

// Profiles returns the named configuration presets.
func Profiles() map[string]Config {
	return map[string]Config{
		"default":   DefaultConfig(),
		"sensitive": SensitiveConfig(),
		"relaxed":   RelaxedConfig(),
	}
}

// GetProfile returns a preset by name.
func GetProfile(name string) (Config, bool) {
	cfg, ok := Profiles()[name]
	return cfg, ok
}

// Validate checks the operator-facing ranges.
func (c Config) Validate() error {
	// Written so NaN fails.
	if !(c.Threshold >= MinThreshold && c.Threshold <= MaxThreshold) {
		return fmt.Errorf("%w: got %g", ErrThresholdRange, c.Threshold)
	}
	if c.SmoothingWindow < MinSmoothingWindow || c.SmoothingWindow > MaxSmoothingWindow {
		return fmt.Errorf("%w: got %d", ErrSmoothingRange, c.SmoothingWindow)
	}
	if _, err := ParseMetricKind(string(c.Metric)); err != nil {
		return err
	}
	return nil
}

// withDefaults fills zero timing fields.
func (c Config) withDefaults() Config {
	if c.CalibrationDuration <= 0 {
		c.CalibrationDuration = CalibrationDuration
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = DebounceWindow
	}
	if c.Metric == "" {
		c.Metric = MetricAngle
	}
	return c
}
