// Package session drives one monitoring session: landmarks in, posture
// status out, one frame at a time and strictly in arrival order.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/debug"
	"github.com/teslashibe/posture-guard/pkg/pose"
	"github.com/teslashibe/posture-guard/pkg/posture"
)

// Settings is an immutable snapshot of operator tunables. A new snapshot
// with a higher Version replaces the old one and is picked up on the next tick.
type Settings struct {
	Threshold       float64            `json:"threshold"`
	SmoothingWindow int                `json:"smoothing_window"`
	Metric          posture.MetricKind `json:"metric"`
	Version         uint64             `json:"version"`
}

// Config returns the posture config described by the snapshot.
func (s Settings) Config() posture.Config {
	cfg := posture.DefaultConfig()
	cfg.Threshold = s.Threshold
	cfg.SmoothingWindow = s.SmoothingWindow
	cfg.Metric = s.Metric
	return cfg
}

// Update is the result of one processed tick.
type Update struct {
	SessionID string
	Seq       uint64
	Time      time.Time
	Detected  bool // A confident pose yielded the metric
	Raw       posture.Metric
	Smoothed  posture.Metric
	Status    posture.Status
	Settings  Settings
}

// Info summarizes a session for listings.
type Info struct {
	ID       string        `json:"id"`
	Created  time.Time     `json:"created"`
	LastSeen time.Time     `json:"last_seen"`
	Frames   uint64        `json:"frames"`
	State    posture.State `json:"state"`
	Settings Settings      `json:"settings"`

	Baseline *float64   `json:"baseline,omitempty"`  // Set once calibrated
	BadSince *time.Time `json:"bad_since,omitempty"` // Start of the current bad stretch
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithID sets the session ID instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Session owns the smoother and state machine of one user. Process and
// Observe are serialized, so frames never interleave. Info, Last and
// Settings do not wait for inference.
type Session struct {
	id       string
	provider pose.Provider
	clock    func() time.Time
	logger   *slog.Logger
	created  time.Time

	settings atomic.Pointer[Settings]
	restart  atomic.Bool

	// frameMu serializes ticks and is held across inference. mu guards
	// the state below and is never held while the provider runs.
	frameMu sync.Mutex

	mu       sync.Mutex
	applied  Settings
	calc     posture.Calculator
	smoother *posture.Smoother
	monitor  *posture.Monitor
	seq      uint64
	last     Update
}

// New creates a session and starts its calibration window immediately.
func New(provider pose.Provider, cfg posture.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	calc, err := posture.NewCalculator(cfg.Metric)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		provider: provider,
		clock:    time.Now,
		calc:     calc,
		smoother: posture.NewSmoother(cfg.SmoothingWindow),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.created = s.clock()
	s.monitor = posture.NewMonitor(cfg, s.created)
	s.logger = log.With("session", s.id)

	s.applied = Settings{
		Threshold:       cfg.Threshold,
		SmoothingWindow: cfg.SmoothingWindow,
		Metric:          calc.Kind(),
		Version:         1,
	}
	initial := s.applied
	s.settings.Store(&initial)

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Settings returns the latest requested settings snapshot.
func (s *Session) Settings() Settings {
	return *s.settings.Load()
}

// Configure validates cfg and schedules it for the next tick.
// Timing fields of cfg are ignored.
func (s *Session) Configure(cfg posture.Config) (Settings, error) {
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	kind, _ := posture.ParseMetricKind(string(cfg.Metric))

	for {
		cur := s.settings.Load()
		next := &Settings{
			Threshold:       cfg.Threshold,
			SmoothingWindow: cfg.SmoothingWindow,
			Metric:          kind,
			Version:         cur.Version + 1,
		}
		if s.settings.CompareAndSwap(cur, next) {
			s.logger.Info("settings updated",
				"threshold", next.Threshold, "smoothing", next.SmoothingWindow,
				"metric", next.Metric, "version", next.Version)
			return *next, nil
		}
	}
}

// Restart schedules a recalibration on the next tick.
func (s *Session) Restart() {
	s.restart.Store(true)
	s.logger.Info("restart requested")
}

// Process detects landmarks in one encoded frame and advances the session.
// Provider failures are logged and treated as a tick without data.
// Detected reports whether the frame yielded a usable posture reading.
func (s *Session) Process(ctx context.Context, image []byte) Update {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	s.mu.Lock()
	now := s.clock()
	s.applyPending(now)
	calc := s.calc
	s.mu.Unlock()

	raw := posture.Absent()
	set, err := pose.SafeDetect(ctx, s.provider, image)
	switch {
	case err == nil:
		raw = calc.Compute(set)
		if !raw.Valid {
			debug.FrameLog("pose below confidence", "session", s.id,
				"landmarks", len(set.Points), "confidence", set.TotalConfidence())
		}
	case errors.Is(err, pose.ErrNoPose):
		debug.FrameLog("no pose in frame", "session", s.id)
	default:
		s.logger.Warn("pose provider failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(now, raw)
}

// Observe advances the session with an already computed metric.
func (s *Session) Observe(raw posture.Metric) Update {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.applyPending(now)
	return s.record(now, raw)
}

// record ticks and stores the update. Caller holds mu.
func (s *Session) record(now time.Time, raw posture.Metric) Update {
	u := s.tick(now, raw)
	u.Detected = raw.Valid
	s.last = u
	return u
}

// Last returns the most recent update.
func (s *Session) Last() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.seq > 0
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:       s.id,
		Created:  s.created,
		Frames:   s.seq,
		State:    posture.StateCalibrating,
		Settings: *s.settings.Load(),
	}
	if s.seq > 0 {
		info.LastSeen = s.last.Time
		info.State = s.last.Status.State
	}
	if b, ok := s.monitor.Baseline(); ok {
		info.Baseline = &b
	}
	if since, ok := s.monitor.BadSince(); ok {
		info.BadSince = &since
	}
	return info
}

// tick runs smoother and monitor. Caller holds mu.
func (s *Session) tick(now time.Time, raw posture.Metric) Update {
	smoothed := s.smoother.Push(raw)
	status := s.monitor.Tick(now, smoothed, s.applied.Threshold)
	s.seq++

	debug.FrameLog("tick", "session", s.id, "seq", s.seq,
		"raw", raw.Value, "valid", raw.Valid, "smoothed", smoothed.Value,
		"state", status.State)

	if status.State != s.last.Status.State || s.seq == 1 {
		s.logger.Info("posture state", "state", status.State, "text", status.Text())
	}

	return Update{
		SessionID: s.id,
		Seq:       s.seq,
		Time:      now,
		Raw:       raw,
		Smoothed:  smoothed,
		Status:    status,
		Settings:  s.applied,
	}
}

// applyPending swaps in new settings and handles restarts. Caller holds mu.
func (s *Session) applyPending(now time.Time) {
	want := s.settings.Load()
	if want.Version != s.applied.Version {
		switch {
		case want.Metric != s.applied.Metric:
			// Baselines are not comparable across metrics.
			s.calc, _ = posture.NewCalculator(want.Metric)
			s.smoother = posture.NewSmoother(want.SmoothingWindow)
			s.monitor.Reset(now)
		case want.SmoothingWindow != s.applied.SmoothingWindow:
			s.smoother = s.smoother.Resized(want.SmoothingWindow)
		}
		s.applied = *want
	}

	if s.restart.Swap(false) {
		s.smoother = posture.NewSmoother(s.applied.SmoothingWindow)
		s.monitor.Reset(now)
	}
}
