package posture

import (
	"fmt"
	"time"
)

// State is the discrete output of the monitor for one tick.
type State int

const (
	StateCalibrating State = iota
	StateCalibrationFailed
	StateGood
	StateWarning
	StateBad
	StateNoData
)

var stateNames = map[State]string{
	StateCalibrating:       "CALIBRATING",
	StateCalibrationFailed: "CALIBRATION_FAILED",
	StateGood:              "GOOD",
	StateWarning:           "WARNING",
	StateBad:               "BAD",
	StateNoData:            "NO_DATA",
}

// String returns the wire name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("posture: unknown state %q", b)
}

// Monitoring reports whether the state is a post-calibration classification.
func (s State) Monitoring() bool {
	return s == StateGood || s == StateWarning || s == StateBad
}

// Status is everything a renderer needs for one tick.
type Status struct {
	State       State
	Previous    State // Last classified state, set on StateNoData
	Current     Metric
	Baseline    float64
	HasBaseline bool
	Remaining   time.Duration // Calibration time left
	BadDuration time.Duration // Time spent bad so far
}

// Text returns the headline shown to the user.
func (s Status) Text() string {
	switch s.State {
	case StateCalibrating:
		return fmt.Sprintf("CALIBRATING... %ds", int(s.Remaining.Seconds()))
	case StateCalibrationFailed:
		return "Calibration Failed. Restart."
	case StateGood:
		return "GOOD POSTURE"
	case StateWarning:
		return fmt.Sprintf("WARNING (%.1fs)", s.BadDuration.Seconds())
	case StateBad:
		return "BAD POSTURE!"
	case StateNoData:
		return "NO POSTURE DETECTED"
	default:
		return ""
	}
}

// Readout returns the numeric line, or "" when there is nothing to show.
func (s Status) Readout() string {
	if !s.Current.Valid {
		return ""
	}
	switch {
	case s.State == StateCalibrating:
		return fmt.Sprintf("Angle: %.1f", s.Current.Value)
	case s.State.Monitoring() && s.HasBaseline:
		return fmt.Sprintf("Cur: %.1f | Base: %.1f", s.Current.Value, s.Baseline)
	default:
		return ""
	}
}
