// posture-server: HTTP service for posture scoring and streaming sessions
// Accepts still images on /analyze and live camera streams on /ws/session
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/posture-guard/internal/config"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/api"
	"github.com/teslashibe/posture-guard/pkg/debug"
	"github.com/teslashibe/posture-guard/pkg/pose/movenet"
	"github.com/teslashibe/posture-guard/pkg/posture"
)

var (
	version     = "1.0.0"
	port        = flag.Int("port", config.DefaultPort, "HTTP server port")
	modelPath   = flag.String("model", "", "MoveNet ONNX model path (default $POSE_MODEL_PATH)")
	inputSize   = flag.Int("input-size", movenet.DefaultConfig().InputSize, "Model input size in pixels")
	profile     = flag.String("profile", "default", "Session settings profile: default, sensitive, relaxed")
	threshold   = flag.Float64("threshold", 0, "Default deviation threshold for sessions (default from profile)")
	smoothing   = flag.Int("smoothing", 0, "Default smoothing window for sessions (default from profile)")
	metric      = flag.String("metric", string(posture.MetricAngle), "Default session metric: angle or offset")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	debugFrames = flag.Bool("debug-frames", false, "Log every processed frame")
)

func main() {
	flag.Parse()

	// Override from environment
	*port = config.Port(*port)
	if *modelPath == "" {
		*modelPath = config.ModelPath()
	}
	*metric = config.Metric(*metric)

	level := config.LogLevel()
	if *debugFlag {
		level = "debug"
	}
	log.Init(level)
	debug.Enabled = *debugFlag
	debug.Frames = *debugFrames

	fmt.Println()
	fmt.Println("🧘 PostureGuard Server v" + version)
	fmt.Println()

	defaults, ok := posture.GetProfile(*profile)
	if !ok {
		log.Error("unknown profile", "profile", *profile)
		os.Exit(2)
	}
	if *threshold != 0 {
		defaults.Threshold = *threshold
	}
	if *smoothing != 0 {
		defaults.SmoothingWindow = *smoothing
	}
	defaults.Threshold = config.Threshold(defaults.Threshold)
	defaults.SmoothingWindow = config.SmoothingWindow(defaults.SmoothingWindow)
	kind, err := posture.ParseMetricKind(*metric)
	if err != nil {
		log.Error("invalid metric", "error", err)
		os.Exit(2)
	}
	defaults.Metric = kind
	if err := defaults.Validate(); err != nil {
		log.Error("invalid session defaults", "error", err)
		os.Exit(2)
	}

	detector, err := movenet.New(movenet.Config{ModelPath: *modelPath, InputSize: *inputSize})
	if err != nil {
		log.Error("failed to load pose model", "path", *modelPath, "error", err)
		os.Exit(1)
	}
	defer detector.Close()
	log.Info("pose model loaded", "path", *modelPath, "input_size", *inputSize)
	log.Info("session defaults", "profile", *profile, "threshold", defaults.Threshold,
		"smoothing", defaults.SmoothingWindow, "metric", defaults.Metric)

	srv := api.NewServer(detector, api.Options{
		Version:  version,
		Debug:    *debugFlag,
		Defaults: defaults,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", *port)
		log.Info("endpoints",
			"analyze", fmt.Sprintf("http://localhost:%d/analyze", *port),
			"session", fmt.Sprintf("ws://localhost:%d/ws/session", *port),
			"watch", fmt.Sprintf("ws://localhost:%d/ws/watch", *port),
			"health", fmt.Sprintf("http://localhost:%d/health", *port))

		if err := srv.Start(ctx, addr); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down",
		"sessions", srv.Streams().SessionCount(),
		"watchers", srv.Watch().ClientCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	fmt.Println("✅ Goodbye!")
}
