package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrInvalidConfig is returned when Open is given a bad Config
	ErrInvalidConfig = errors.New("capture: invalid config")
	// ErrNotOpened is returned when the device cannot be opened
	ErrNotOpened = errors.New("capture: camera not opened")
	// ErrNoFrame is returned when the device yields no image
	ErrNoFrame = errors.New("capture: no frame")
)

// Camera captures frames from a local webcam.
// CaptureJPEG and Snapshot are safe for concurrent use.
type Camera struct {
	cfg Config

	mu     sync.Mutex
	device *gocv.VideoCapture
	frame  gocv.Mat
}

// Open opens the webcam described by cfg.
func Open(cfg Config) (*Camera, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	device, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrNotOpened, cfg.Device, err)
	}
	if !device.IsOpened() {
		device.Close()
		return nil, fmt.Errorf("%w: device %d", ErrNotOpened, cfg.Device)
	}

	// Drivers treat these as hints.
	device.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	device.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	device.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	return &Camera{
		cfg:    cfg,
		device: device,
		frame:  gocv.NewMat(),
	}, nil
}

// Config returns the capture configuration.
func (c *Camera) Config() Config {
	return c.cfg
}

// CaptureJPEG reads one frame and encodes it as JPEG.
func (c *Camera) CaptureJPEG() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.device.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, ErrNoFrame
	}
	if c.cfg.Mirror {
		gocv.Flip(c.frame, &c.frame, 1)
	}

	return EncodeJPEG(c.frame, c.cfg.Quality)
}

// Snapshot copies the most recently captured frame into dst.
// It returns false before the first successful capture.
func (c *Camera) Snapshot(dst *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame.Empty() {
		return false
	}
	c.frame.CopyTo(dst)
	return true
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frame.Close()
	return c.device.Close()
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, ErrNoFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
