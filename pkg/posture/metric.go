package posture

import (
	"math"

	"github.com/teslashibe/posture-guard/pkg/pose"
)

// Landmark gating and scoring constants.
const (
	// OffsetMinConfidence gates nose, shoulders and ears for the offset score.
	OffsetMinConfidence = 0.3
	// AngleMinVisibility gates ear and shoulder for the angle metric.
	AngleMinVisibility = 0.5

	// SlouchOffset is the vertical distance above which a pose is slouched.
	SlouchOffset = -0.02

	baseScore  = 50.0
	scoreScale = 500.0
)

// Messages returned with offset results.
const (
	MessageGood     = "Good posture"
	MessageSlouched = "Slouching detected"
)

// Metric is a posture reading. The zero value is absent: consumers must
// check Valid and never read Value of an absent metric as zero.
type Metric struct {
	Value float64 `json:"value"` // Scalar consumed by the state machine
	Raw   float64 `json:"raw"`   // Auxiliary value (vertical distance or raw angle)
	Valid bool    `json:"valid"`
}

// NewMetric returns a present metric.
func NewMetric(value, raw float64) Metric {
	return Metric{Value: value, Raw: raw, Valid: true}
}

// Absent returns a metric that carries no value.
func Absent() Metric {
	return Metric{}
}

// Calculator converts a landmark set into a metric.
type Calculator interface {
	Compute(set pose.Set) Metric
	Kind() MetricKind
}

// NewCalculator returns the calculator for kind.
func NewCalculator(kind MetricKind) (Calculator, error) {
	k, err := ParseMetricKind(string(kind))
	if err != nil {
		return nil, err
	}
	if k == MetricOffset {
		return VerticalOffset{}, nil
	}
	return EarShoulderAngle{}, nil
}

// OffsetResult is the absolute judgment of a single still image.
type OffsetResult struct {
	Score            float64 `json:"score"`
	IsSlouched       bool    `json:"is_slouched"`
	VerticalDistance float64 `json:"vertical_distance"`
	Message          string  `json:"message"`
}

// VerticalOffset scores how far the head sits above the shoulders.
type VerticalOffset struct{}

// Kind implements Calculator.
func (VerticalOffset) Kind() MetricKind { return MetricOffset }

// Compute implements Calculator. Value is the score, Raw the vertical distance.
func (VerticalOffset) Compute(set pose.Set) Metric {
	res, ok := AnalyzeOffset(set)
	if !ok {
		return Absent()
	}
	return NewMetric(res.Score, res.VerticalDistance)
}

// AnalyzeOffset computes the vertical offset score. ok is false when the
// nose or either shoulder is missing or below OffsetMinConfidence.
func AnalyzeOffset(set pose.Set) (OffsetResult, bool) {
	nose, ok1 := confident(set, pose.Nose, OffsetMinConfidence)
	ls, ok2 := confident(set, pose.LeftShoulder, OffsetMinConfidence)
	rs, ok3 := confident(set, pose.RightShoulder, OffsetMinConfidence)
	if !ok1 || !ok2 || !ok3 {
		return OffsetResult{}, false
	}

	headY := nose.Y
	le, okL := confident(set, pose.LeftEar, OffsetMinConfidence)
	re, okR := confident(set, pose.RightEar, OffsetMinConfidence)
	if okL && okR {
		headY = (nose.Y + le.Y + re.Y) / 3
	}

	shoulderY := (ls.Y + rs.Y) / 2

	// y grows downward: more negative means the head sits higher.
	distance := headY - shoulderY
	slouched := Slouched(distance)

	msg := MessageGood
	if slouched {
		msg = MessageSlouched
	}

	return OffsetResult{
		Score:            OffsetScore(distance),
		IsSlouched:       slouched,
		VerticalDistance: distance,
		Message:          msg,
	}, true
}

// Slouched reports whether a head-to-shoulder distance counts as slouching.
func Slouched(distance float64) bool {
	return distance > SlouchOffset
}

// OffsetScore maps a head-to-shoulder distance to a 0-100 score.
func OffsetScore(distance float64) float64 {
	return clamp(baseScore-distance*scoreScale, 0, 100)
}

// EarShoulderAngle measures the tilt of the left shoulder-to-ear vector
// away from vertical, in degrees. 0 is upright.
type EarShoulderAngle struct{}

// Kind implements Calculator.
func (EarShoulderAngle) Kind() MetricKind { return MetricAngle }

// Compute implements Calculator.
func (EarShoulderAngle) Compute(set pose.Set) Metric {
	ear, ok1 := confident(set, pose.LeftEar, AngleMinVisibility)
	shoulder, ok2 := confident(set, pose.LeftShoulder, AngleMinVisibility)
	if !ok1 || !ok2 {
		return Absent()
	}

	dx := ear.X - shoulder.X
	dy := ear.Y - shoulder.Y

	// -dy flips image y so that "up" is positive.
	angle := math.Abs(Degrees(math.Atan2(dx, -dy)))
	return NewMetric(angle, angle)
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func confident(set pose.Set, r pose.Role, threshold float64) (pose.Landmark, bool) {
	lm, ok := set.Get(r)
	if !ok || lm.Score < threshold {
		return pose.Landmark{}, false
	}
	return lm, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
