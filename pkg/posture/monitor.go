package posture

import (
	"math"
	"time"
)

// Monitor is the calibration and bad-posture state machine.
// It is driven by explicit timestamps and is not safe for concurrent use.
type Monitor struct {
	calibration time.Duration
	debounce    time.Duration

	start       time.Time
	baseline    float64
	hasBaseline bool

	badSince time.Time
	timing   bool // badSince is set

	last State
}

// NewMonitor starts a calibration window at start.
func NewMonitor(cfg Config, start time.Time) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		calibration: cfg.CalibrationDuration,
		debounce:    cfg.DebounceWindow,
		start:       start,
		last:        StateCalibrating,
	}
}

// Tick classifies one smoothed metric observed at now.
func (m *Monitor) Tick(now time.Time, smoothed Metric, threshold float64) Status {
	elapsed := now.Sub(m.start)

	if elapsed < m.calibration {
		// Last write before the boundary wins.
		if smoothed.Valid {
			m.baseline = smoothed.Value
			m.hasBaseline = true
		}
		m.last = StateCalibrating
		return Status{
			State:       StateCalibrating,
			Current:     smoothed,
			Baseline:    m.baseline,
			HasBaseline: m.hasBaseline,
			Remaining:   m.calibration - elapsed,
		}
	}

	if !m.hasBaseline {
		m.last = StateCalibrationFailed
		return Status{State: StateCalibrationFailed}
	}

	st := Status{
		Current:     smoothed,
		Baseline:    m.baseline,
		HasBaseline: true,
	}

	if !smoothed.Valid {
		// No reading is not bad posture.
		m.timing = false
		st.State = StateNoData
		st.Previous = m.last
		return st
	}

	if math.Abs(smoothed.Value-m.baseline) > threshold {
		if !m.timing {
			m.badSince = now
			m.timing = true
		}
		st.BadDuration = now.Sub(m.badSince)
		if st.BadDuration > m.debounce {
			st.State = StateBad
		} else {
			st.State = StateWarning
		}
	} else {
		m.timing = false
		st.State = StateGood
	}

	m.last = st.State
	return st
}

// Baseline returns the calibrated reference value.
func (m *Monitor) Baseline() (float64, bool) {
	return m.baseline, m.hasBaseline
}

// BadSince returns when the current bad stretch began.
func (m *Monitor) BadSince() (time.Time, bool) {
	return m.badSince, m.timing
}

// Reset discards the baseline and timer and recalibrates from now.
func (m *Monitor) Reset(now time.Time) {
	m.start = now
	m.baseline = 0
	m.hasBaseline = false
	m.badSince = time.Time{}
	m.timing = false
	m.last = StateCalibrating
}
