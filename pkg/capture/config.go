// Package capture reads webcam frames with gocv and encodes them as JPEG
// for pose detection.
package capture

import "fmt"

// Config holds webcam capture parameters.
type Config struct {
	Device    int  `json:"device"`    // Camera index
	Width     int  `json:"width"`     // Requested frame width in pixels
	Height    int  `json:"height"`    // Requested frame height in pixels
	Framerate int  `json:"framerate"` // Requested FPS
	Quality   int  `json:"quality"`   // JPEG quality 1-100
	Mirror    bool `json:"mirror"`    // Flip horizontally, selfie view
}

// Limits for requested capture parameters
const (
	MinWidth     = 160
	MaxWidth     = 3840
	MinHeight    = 120
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 640x480, which is plenty for a 192px pose model.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   85,
		Mirror:    true,
	}
}

// HD720Config returns a 1280x720 configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// LowBandwidthConfig returns a small, compressed configuration for
// streaming frames to a remote server.
func LowBandwidthConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 15
	cfg.Quality = 70
	return cfg
}

// Presets returns the named capture presets.
func Presets() map[string]Config {
	return map[string]Config{
		"default": DefaultConfig(),
		"hd720":   HD720Config(),
		"low":     LowBandwidthConfig(),
	}
}

// GetPreset returns a preset by name, or nil.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Device < 0 {
		errs = append(errs, "device must not be negative")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}

	return errs
}
