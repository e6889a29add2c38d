// Package pose defines the landmark contract consumed from pose-estimation models.
package pose

// Role identifies an anatomical landmark independent of model layout.
type Role int

const (
	Nose Role = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	numRoles
)

var roleNames = [numRoles]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

// String returns the snake_case role name.
func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return "unknown"
	}
	return roleNames[r]
}

// Landmark is a single tracked point.
type Landmark struct {
	X     float64 `json:"x"`     // 0-1, left to right
	Y     float64 `json:"y"`     // 0-1, top to bottom
	Score float64 `json:"score"` // Confidence or visibility (0-1)
}

// Layout maps roles to indices in a model's output.
type Layout struct {
	Name    string
	Size    int
	indices [numRoles]int
}

// Index returns the position of role in this layout.
func (l *Layout) Index(r Role) (int, bool) {
	if l == nil || r < 0 || r >= numRoles {
		return 0, false
	}
	return l.indices[r], true
}

// COCO17 is the 17-keypoint layout used by MoveNet.
var COCO17 = &Layout{
	Name:    "coco17",
	Size:    17,
	indices: [numRoles]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
}

// BlazePose33 is the 33-landmark layout used by MediaPipe Pose.
var BlazePose33 = &Layout{
	Name: "blazepose33",
	Size: 33,
	indices: [numRoles]int{
		Nose:          0,
		LeftEye:       2,
		RightEye:      5,
		LeftEar:       7,
		RightEar:      8,
		LeftShoulder:  11,
		RightShoulder: 12,
		LeftElbow:     13,
		RightElbow:    14,
		LeftWrist:     15,
		RightWrist:    16,
		LeftHip:       23,
		RightHip:      24,
		LeftKnee:      25,
		RightKnee:     26,
		LeftAnkle:     27,
		RightAnkle:    28,
	},
}

// Set is the ordered landmark output of one model invocation.
// Treat it as immutable once produced.
type Set struct {
	Layout *Layout
	Points []Landmark
}

// NewSet builds a Set for layout. Missing trailing points are zero-valued
// so that the set always has the layout's length.
func NewSet(layout *Layout, points []Landmark) Set {
	pts := make([]Landmark, layout.Size)
	copy(pts, points)
	return Set{Layout: layout, Points: pts}
}

// Get returns the landmark for role.
func (s Set) Get(r Role) (Landmark, bool) {
	idx, ok := s.Layout.Index(r)
	if !ok || idx >= len(s.Points) {
		return Landmark{}, false
	}
	return s.Points[idx], true
}

// Empty reports whether the set carries no landmarks.
func (s Set) Empty() bool {
	return len(s.Points) == 0
}

// TotalConfidence sums the scores of all landmarks.
func (s Set) TotalConfidence() float64 {
	total := 0.0
	for _, p := range s.Points {
		total += p.Score
	}
	return total
}
