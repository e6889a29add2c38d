// Package config provides configuration helpers for posture-guard commands.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
)

// Default service configuration.
const (
	DefaultPort      = 5000
	DefaultModelPath = "models/movenet_singlepose_lightning.onnx"
	DefaultLogLevel  = "info"
	DefaultServerURL = "http://localhost:5000"
	DefaultCamera    = 0
)

// Port returns the HTTP port from PORT env var or the provided default.
func Port(defaultPort int) int {
	return Int("PORT", defaultPort)
}

// ModelPath returns the pose model path from POSE_MODEL_PATH env var.
func ModelPath() string {
	return String("POSE_MODEL_PATH", DefaultModelPath)
}

// LogLevel returns the log level from LOG_LEVEL env var.
func LogLevel() string {
	return String("LOG_LEVEL", DefaultLogLevel)
}

// ServerURL returns the posture server base URL from POSTURE_SERVER_URL.
func ServerURL() string {
	return String("POSTURE_SERVER_URL", DefaultServerURL)
}

// CameraDevice returns the webcam index from CAMERA_DEVICE.
func CameraDevice() int {
	return Int("CAMERA_DEVICE", DefaultCamera)
}

// Threshold returns the deviation threshold from POSTURE_THRESHOLD.
func Threshold(defaultThreshold float64) float64 {
	return Float("POSTURE_THRESHOLD", defaultThreshold)
}

// SmoothingWindow returns the smoothing window size from POSTURE_SMOOTHING.
func SmoothingWindow(defaultWindow int) int {
	return Int("POSTURE_SMOOTHING", defaultWindow)
}

// Metric returns the streaming metric name from POSTURE_METRIC.
func Metric(defaultMetric string) string {
	return String("POSTURE_METRIC", defaultMetric)
}

// String returns the env var value or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as int, or def when unset or invalid.
// Invalid values are reported on stderr.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s=%q, using %d\n", key, v, def)
		return def
	}
	return n
}

// Float returns the env var parsed as a finite float64, or def when unset
// or invalid.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s=%q, using %g\n", key, v, def)
		return def
	}
	return f
}
