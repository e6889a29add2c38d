package session

import (
	"context"
	"time"

	"github.com/teslashibe/posture-guard/pkg/posture"
)

// FrameSource interface for capturing frames
type FrameSource interface {
	CaptureJPEG() ([]byte, error)
}

// Run captures a frame every interval and processes it until ctx is done.
// Each update is passed to emit in order. Capture errors count as ticks
// without data so the status keeps advancing.
func (s *Session) Run(ctx context.Context, source FrameSource, interval time.Duration, emit func(Update)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("session started", "interval", interval, "threshold", s.Settings().Threshold,
		"smoothing", s.Settings().SmoothingWindow, "metric", s.Settings().Metric)

	captureErrors := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", "frames", s.Info().Frames)
			return

		case <-ticker.C:
			frame, err := source.CaptureJPEG()
			var u Update
			if err != nil {
				captureErrors++
				if captureErrors == 1 || captureErrors%50 == 0 {
					s.logger.Warn("frame capture failed", "error", err, "count", captureErrors)
				}
				u = s.Observe(posture.Absent())
			} else {
				captureErrors = 0
				u = s.Process(ctx, frame)
			}

			if emit != nil {
				emit(u)
			}
		}
	}
}
