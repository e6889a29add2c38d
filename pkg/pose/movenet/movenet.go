// Package movenet runs MoveNet single-pose models through OpenCV's DNN module.
package movenet

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"

	"github.com/teslashibe/posture-guard/pkg/debug"
	"github.com/teslashibe/posture-guard/pkg/pose"
	"gocv.io/x/gocv"
)

// keypointCount is the number of COCO keypoints MoveNet emits.
const keypointCount = 17

// Config holds detector configuration
type Config struct {
	ModelPath string // Path to ONNX model
	InputSize int    // Square model input (192 for Lightning, 256 for Thunder)
}

// DefaultConfig returns production defaults for MoveNet Lightning
func DefaultConfig() Config {
	return Config{
		ModelPath: "models/movenet_singlepose_lightning.onnx",
		InputSize: 192,
	}
}

// Detector runs MoveNet inference. Safe for concurrent use; inference is
// serialized internally.
type Detector struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex // Protects inference
}

// New loads a MoveNet ONNX model.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", pose.ErrModelNotFound, cfg.ModelPath)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultConfig().InputSize
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load MoveNet model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:    net,
		config: cfg,
	}, nil
}

// Detect finds the keypoints of a single person in an encoded image.
func (d *Detector) Detect(ctx context.Context, data []byte) (pose.Set, error) {
	if err := ctx.Err(); err != nil {
		return pose.Set{}, err
	}
	if len(data) == 0 {
		return pose.Set{}, pose.ErrUndecodable
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return pose.Set{}, fmt.Errorf("%w: %v", pose.ErrUndecodable, err)
	}
	defer img.Close()

	if img.Empty() {
		return pose.Set{}, pose.ErrUndecodable
	}

	lb := newLetterbox(img.Cols(), img.Rows(), d.config.InputSize)

	input, err := d.prepare(img, lb)
	if err != nil {
		return pose.Set{}, &pose.ProviderError{Provider: "movenet", Err: err}
	}
	defer input.Close()

	d.mu.Lock()
	d.net.SetInput(input, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	raw, err := output.DataPtrFloat32()
	if err != nil {
		return pose.Set{}, &pose.ProviderError{Provider: "movenet", Err: err}
	}

	set, err := parseKeypoints(raw, lb)
	if err != nil {
		return pose.Set{}, &pose.ProviderError{Provider: "movenet", Err: err}
	}

	debug.FrameLog("movenet keypoints", "confidence", set.TotalConfidence(),
		"width", img.Cols(), "height", img.Rows())

	return set, nil
}

// prepare letterboxes the BGR image into an NHWC float32 tensor.
func (d *Detector) prepare(img gocv.Mat, lb letterbox) (gocv.Mat, error) {
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(lb.contentW, lb.contentH), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(resized, &padded,
		lb.padTop, lb.size-lb.contentH-lb.padTop,
		lb.padLeft, lb.size-lb.contentW-lb.padLeft,
		gocv.BorderConstant, color.RGBA{0, 0, 0, 0})

	pixels := padded.ToBytes()
	buf := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(p)))
	}

	return gocv.NewMatWithSizesFromBytes([]int{1, lb.size, lb.size, 3}, gocv.MatTypeCV32F, buf)
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// letterbox describes how an image was scaled and padded into the square input.
type letterbox struct {
	size               int
	contentW, contentH int
	padLeft, padTop    int
}

func newLetterbox(w, h, size int) letterbox {
	scale := float64(size) / math.Max(float64(w), float64(h))
	cw := int(math.Round(float64(w) * scale))
	ch := int(math.Round(float64(h) * scale))
	cw = max(1, min(cw, size))
	ch = max(1, min(ch, size))
	return letterbox{
		size:     size,
		contentW: cw,
		contentH: ch,
		padLeft:  (size - cw) / 2,
		padTop:   (size - ch) / 2,
	}
}

// unpad maps a coordinate normalized to the padded input back to the
// original image, normalized 0-1.
func (lb letterbox) unpad(x, y float64) (float64, float64) {
	s := float64(lb.size)
	ox := (x*s - float64(lb.padLeft)) / float64(lb.contentW)
	oy := (y*s - float64(lb.padTop)) / float64(lb.contentH)
	return ox, oy
}

// parseKeypoints converts MoveNet output [1,1,17,3] of (y, x, score) rows
// into a COCO17 set.
func parseKeypoints(raw []float32, lb letterbox) (pose.Set, error) {
	if len(raw) < keypointCount*3 {
		return pose.Set{}, fmt.Errorf("unexpected output size %d", len(raw))
	}

	points := make([]pose.Landmark, keypointCount)
	for i := range points {
		y := float64(raw[i*3])
		x := float64(raw[i*3+1])
		score := float64(raw[i*3+2])

		ox, oy := lb.unpad(x, y)
		points[i] = pose.Landmark{X: ox, Y: oy, Score: score}
	}

	return pose.NewSet(pose.COCO17, points), nil
}
