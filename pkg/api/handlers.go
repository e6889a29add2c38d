package api

import (
	"errors"
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/pose"
	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/protocol"
)

// MinTotalConfidence is the summed landmark confidence below which an
// image is reported as containing no person.
const MinTotalConfidence = 5.0

// Response messages
const (
	MessageNoPosture  = "No posture detected"
	ErrorScoreFailure = "Posture score could not be computed"
)

// ErrMissingImage is returned when a request carries no image
var ErrMissingImage = errors.New("api: no image provided")

// AnalyzeRequest is the body of POST /analyze
type AnalyzeRequest struct {
	Image string `json:"image"` // base64, data-URL prefix allowed
}

// AnalyzeResponse is the still-image posture result
type AnalyzeResponse struct {
	Detected         bool     `json:"detected"`
	Score            *float64 `json:"score,omitempty"`
	IsSlouched       *bool    `json:"is_slouched,omitempty"`
	VerticalDistance *float64 `json:"vertical_distance,omitempty"`
	Message          string   `json:"message,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// handleAnalyze scores the posture in one image
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	s.analyzeRequests.Add(1)

	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.reject(c, fmt.Errorf("invalid request body: %w", err))
	}
	if req.Image == "" {
		return s.reject(c, ErrMissingImage)
	}

	img, err := protocol.DecodeImage(req.Image)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyImage) {
			err = ErrMissingImage
		}
		return s.reject(c, err)
	}

	set, err := pose.SafeDetect(c.UserContext(), s.provider, img)
	switch {
	case err == nil:
	case errors.Is(err, pose.ErrUndecodable):
		return s.reject(c, err)
	case errors.Is(err, pose.ErrNoPose):
		return c.JSON(AnalyzeResponse{Detected: false, Message: MessageNoPosture})
	default:
		s.analyzeFailures.Add(1)
		log.Error("pose detection failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(s.score(set))
}

// score builds the response for a detected landmark set
func (s *Server) score(set pose.Set) AnalyzeResponse {
	if set.TotalConfidence() < MinTotalConfidence {
		return AnalyzeResponse{Detected: false, Message: MessageNoPosture}
	}
	s.analyzeDetected.Add(1)

	res, ok := posture.AnalyzeOffset(set)
	if !ok {
		return AnalyzeResponse{Detected: true, Error: ErrorScoreFailure}
	}

	score := round(res.Score, 2)
	distance := round(res.VerticalDistance, 4)
	slouched := res.IsSlouched
	return AnalyzeResponse{
		Detected:         true,
		Score:            &score,
		IsSlouched:       &slouched,
		VerticalDistance: &distance,
		Message:          res.Message,
	}
}

func (s *Server) reject(c *fiber.Ctx, err error) error {
	s.analyzeRejected.Add(1)
	log.Debug("analyze request rejected", "error", err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.streams.SessionCount(),
		"watch":    s.watch.IsRunning(),
	})
}

// handleMetrics exposes counters in Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	stats := s.streams.GetStats()
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(fmt.Sprintf(`# HELP posture_analyze_requests_total Still-image analyze requests
# TYPE posture_analyze_requests_total counter
posture_analyze_requests_total %d

# HELP posture_analyze_detected_total Still images with a detected person
# TYPE posture_analyze_detected_total counter
posture_analyze_detected_total %d

# HELP posture_analyze_rejected_total Still-image requests rejected as malformed
# TYPE posture_analyze_rejected_total counter
posture_analyze_rejected_total %d

# HELP posture_analyze_failures_total Still-image requests failed by the pose provider
# TYPE posture_analyze_failures_total counter
posture_analyze_failures_total %d

# HELP posture_sessions Live streaming sessions
# TYPE posture_sessions gauge
posture_sessions %d

# HELP posture_sessions_opened_total Streaming sessions opened
# TYPE posture_sessions_opened_total counter
posture_sessions_opened_total %d

# HELP posture_frames_received_total Streaming frames received
# TYPE posture_frames_received_total counter
posture_frames_received_total %d

# HELP posture_frames_rejected_total Streaming frames rejected as malformed
# TYPE posture_frames_rejected_total counter
posture_frames_rejected_total %d

# HELP posture_watchers Connected watch feed clients
# TYPE posture_watchers gauge
posture_watchers %d

# HELP posture_watch_dropped_total Watch feed updates dropped on a full queue
# TYPE posture_watch_dropped_total counter
posture_watch_dropped_total %d
`,
		s.analyzeRequests.Load(), s.analyzeDetected.Load(), s.analyzeRejected.Load(), s.analyzeFailures.Load(),
		stats.SessionCount, stats.SessionsOpened, stats.FramesReceived, stats.FramesRejected,
		s.watch.ClientCount(), s.watch.Dropped()))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
