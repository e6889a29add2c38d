package posture

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(math.Round(sec*1000)) * time.Millisecond)
}

func angle(v float64) Metric {
	return NewMetric(v, v)
}

// calibrated returns a monitor whose baseline is b and whose calibration
// window has closed at t=3s.
func calibrated(b float64) *Monitor {
	m := NewMonitor(DefaultConfig(), t0)
	m.Tick(at(0.5), angle(b), DefaultThreshold)
	return m
}

func TestMonitor_CalibrationFreeze(t *testing.T) {
	m := NewMonitor(DefaultConfig(), t0)

	for i, v := range []float64{10, 12, 11} {
		st := m.Tick(at(float64(i)), angle(v), DefaultThreshold)
		if st.State != StateCalibrating {
			t.Fatalf("tick %d: state = %v, want CALIBRATING", i, st.State)
		}
	}

	m.Tick(at(3.5), angle(50), DefaultThreshold)

	b, ok := m.Baseline()
	if !ok || b != 11 {
		t.Errorf("baseline = %v (%v), want 11", b, ok)
	}
}

func TestMonitor_CalibrationStatus(t *testing.T) {
	m := NewMonitor(DefaultConfig(), t0)

	st := m.Tick(at(0.4), angle(12.34), DefaultThreshold)
	if st.Text() != "CALIBRATING... 2s" {
		t.Errorf("Text = %q", st.Text())
	}
	if st.Readout() != "Angle: 12.3" {
		t.Errorf("Readout = %q", st.Readout())
	}
	if st.Remaining != 2600*time.Millisecond {
		t.Errorf("Remaining = %v", st.Remaining)
	}

	// Absent readings during calibration keep the previous baseline.
	st = m.Tick(at(1), Absent(), DefaultThreshold)
	if st.Readout() != "" {
		t.Errorf("Readout with no angle = %q", st.Readout())
	}
	if b, _ := m.Baseline(); b != 12.34 {
		t.Errorf("baseline = %v, want 12.34", b)
	}
}

func TestMonitor_CalibrationBoundary(t *testing.T) {
	m := NewMonitor(DefaultConfig(), t0)
	m.Tick(at(1), angle(10), DefaultThreshold)

	// Exactly at the boundary the session is already monitoring and the
	// value is not taken as baseline.
	st := m.Tick(at(3), angle(40), DefaultThreshold)
	if st.State == StateCalibrating {
		t.Error("elapsed == calibration duration should leave calibration")
	}
	if b, _ := m.Baseline(); b != 10 {
		t.Errorf("baseline = %v, want 10", b)
	}
}

func TestMonitor_CalibrationFailed(t *testing.T) {
	m := NewMonitor(DefaultConfig(), t0)
	m.Tick(at(0.5), Absent(), DefaultThreshold)
	m.Tick(at(2.9), Absent(), DefaultThreshold)

	for _, sec := range []float64{3, 4, 60} {
		st := m.Tick(at(sec), angle(10), DefaultThreshold)
		if st.State != StateCalibrationFailed {
			t.Errorf("t=%v: state = %v, want CALIBRATION_FAILED", sec, st.State)
		}
		if st.Text() != "Calibration Failed. Restart." {
			t.Errorf("Text = %q", st.Text())
		}
	}

	if _, ok := m.Baseline(); ok {
		t.Error("baseline should remain unset")
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor(DefaultConfig(), t0)
	m.Tick(at(4), Absent(), DefaultThreshold)

	m.Reset(at(10))
	st := m.Tick(at(10.5), angle(7), DefaultThreshold)
	if st.State != StateCalibrating {
		t.Fatalf("after reset: state = %v, want CALIBRATING", st.State)
	}

	st = m.Tick(at(13.5), angle(8), DefaultThreshold)
	if st.State != StateGood {
		t.Errorf("after recalibration: state = %v, want GOOD", st.State)
	}
}

func TestMonitor_BadDurationDebounce(t *testing.T) {
	m := calibrated(10)

	steps := []struct {
		sec  float64
		val  float64
		want State
		dur  time.Duration
	}{
		{3.0, 30, StateWarning, 0},
		{4.0, 30, StateWarning, time.Second},
		{6.0, 30, StateWarning, 3 * time.Second}, // exactly 3s is still WARNING
		{6.1, 30, StateBad, 3100 * time.Millisecond},
		{7.0, 30, StateBad, 4 * time.Second},
		{7.5, 12, StateGood, 0},
		{8.0, 30, StateWarning, 0},
	}

	for _, s := range steps {
		st := m.Tick(at(s.sec), angle(s.val), 15)
		if st.State != s.want {
			t.Errorf("t=%v: state = %v, want %v", s.sec, st.State, s.want)
		}
		if st.State != StateGood && st.BadDuration != s.dur {
			t.Errorf("t=%v: bad duration = %v, want %v", s.sec, st.BadDuration, s.dur)
		}
	}
}

func TestMonitor_GoodTickClearsTimer(t *testing.T) {
	m := calibrated(10)

	m.Tick(at(3), angle(40), 15)
	if _, ok := m.BadSince(); !ok {
		t.Fatal("bad tick should start the timer")
	}

	st := m.Tick(at(3.5), angle(20), 15)
	if st.State != StateGood {
		t.Errorf("state = %v, want GOOD", st.State)
	}
	if _, ok := m.BadSince(); ok {
		t.Error("good tick should clear the timer")
	}
}

func TestMonitor_ThresholdIsStrict(t *testing.T) {
	m := calibrated(10)

	if st := m.Tick(at(4), angle(25), 15); st.State != StateGood {
		t.Errorf("deviation == threshold: state = %v, want GOOD", st.State)
	}
	if st := m.Tick(at(5), angle(25.01), 15); st.State != StateWarning {
		t.Errorf("deviation > threshold: state = %v, want WARNING", st.State)
	}
	if st := m.Tick(at(6), angle(-5.01), 15); st.State != StateWarning {
		t.Errorf("negative deviation: state = %v, want WARNING", st.State)
	}
}

func TestMonitor_NoData(t *testing.T) {
	m := calibrated(10)

	m.Tick(at(3), angle(40), 15)
	m.Tick(at(7), angle(40), 15) // BAD

	st := m.Tick(at(7.5), Absent(), 15)
	if st.State != StateNoData {
		t.Fatalf("state = %v, want NO_DATA", st.State)
	}
	if st.Previous != StateBad {
		t.Errorf("Previous = %v, want BAD", st.Previous)
	}
	if st.Text() != "NO POSTURE DETECTED" {
		t.Errorf("Text = %q", st.Text())
	}

	// Missing data is not bad posture: the debounce restarts.
	st = m.Tick(at(8), angle(40), 15)
	if st.State != StateWarning || st.BadDuration != 0 {
		t.Errorf("after gap: %v %v, want WARNING 0s", st.State, st.BadDuration)
	}
}

func TestMonitor_MonitoringReadout(t *testing.T) {
	m := calibrated(10)

	st := m.Tick(at(4), angle(12.25), 15)
	if st.Readout() != "Cur: 12.2 | Base: 10.0" && st.Readout() != "Cur: 12.3 | Base: 10.0" {
		t.Errorf("Readout = %q", st.Readout())
	}

	m.Tick(at(5), angle(40), 15)
	st = m.Tick(at(5.5), angle(40), 15)
	if st.Text() != "WARNING (0.5s)" {
		t.Errorf("Text = %q", st.Text())
	}
}

func TestMonitor_CustomTiming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CalibrationDuration = time.Second
	cfg.DebounceWindow = 500 * time.Millisecond
	m := NewMonitor(cfg, t0)

	m.Tick(at(0.1), angle(0), 10)
	m.Tick(at(1), angle(20), 10)
	if st := m.Tick(at(1.6), angle(20), 10); st.State != StateBad {
		t.Errorf("state = %v, want BAD", st.State)
	}
}

func TestStateText(t *testing.T) {
	tests := []struct {
		st   State
		name string
	}{
		{StateCalibrating, "CALIBRATING"},
		{StateCalibrationFailed, "CALIBRATION_FAILED"},
		{StateGood, "GOOD"},
		{StateWarning, "WARNING"},
		{StateBad, "BAD"},
		{StateNoData, "NO_DATA"},
	}

	for _, tc := range tests {
		b, _ := tc.st.MarshalText()
		if string(b) != tc.name {
			t.Errorf("MarshalText(%d) = %q, want %q", tc.st, b, tc.name)
		}

		var back State
		if err := back.UnmarshalText(b); err != nil || back != tc.st {
			t.Errorf("UnmarshalText(%q) = %v, %v", b, back, err)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("SLOUCHY")); err == nil {
		t.Error("expected error for unknown state")
	}
}
