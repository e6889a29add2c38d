// posture-monitor: local webcam posture monitoring
// Runs pose detection in-process and renders the session in the terminal,
// as plain log lines, or in a preview window.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gocv.io/x/gocv"

	"github.com/teslashibe/posture-guard/internal/config"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/internal/tui"
	"github.com/teslashibe/posture-guard/pkg/capture"
	"github.com/teslashibe/posture-guard/pkg/debug"
	"github.com/teslashibe/posture-guard/pkg/pose/movenet"
	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/protocol"
	"github.com/teslashibe/posture-guard/pkg/session"
)

var (
	device      = flag.Int("device", config.DefaultCamera, "Camera index (default $CAMERA_DEVICE)")
	preset      = flag.String("preset", "default", "Capture preset: default, hd720, low")
	fps         = flag.Int("fps", 10, "Frames analyzed per second")
	modelPath   = flag.String("model", "", "MoveNet ONNX model path (default $POSE_MODEL_PATH)")
	profile     = flag.String("profile", "default", "Settings profile: default, sensitive, relaxed")
	threshold   = flag.Float64("threshold", 0, "Allowed deviation from baseline (default from profile)")
	smoothing   = flag.Int("smoothing", 0, "Smoothing window in frames (default from profile)")
	metric      = flag.String("metric", string(posture.MetricAngle), "Metric: angle or offset")
	window      = flag.Bool("window", false, "Show a camera preview window instead of the terminal UI")
	plain       = flag.Bool("plain", false, "Print status lines instead of the terminal UI")
	logFile     = flag.String("log-file", "", "Write logs to this file while the terminal UI runs")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	debugFrames = flag.Bool("debug-frames", false, "Log every processed frame")
)

func main() {
	flag.Parse()

	if *modelPath == "" {
		*modelPath = config.ModelPath()
	}
	if !isFlagSet("device") {
		*device = config.CameraDevice()
	}
	*metric = config.Metric(*metric)

	useTUI := !*window && !*plain
	if err := initLogging(useTUI); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	debug.Enabled = *debugFlag
	debug.Frames = *debugFrames

	cfg, ok := posture.GetProfile(*profile)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown profile %q\n", *profile)
		os.Exit(2)
	}
	if *threshold != 0 {
		cfg.Threshold = *threshold
	}
	if *smoothing != 0 {
		cfg.SmoothingWindow = *smoothing
	}
	cfg.Threshold = config.Threshold(cfg.Threshold)
	cfg.SmoothingWindow = config.SmoothingWindow(cfg.SmoothingWindow)
	kind, err := posture.ParseMetricKind(*metric)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	cfg.Metric = kind
	if *fps < 1 || *fps > 30 {
		fmt.Fprintln(os.Stderr, "Error: fps must be within 1-30")
		os.Exit(2)
	}

	capCfg := capture.GetPreset(*preset)
	if capCfg == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown preset %q\n", *preset)
		os.Exit(2)
	}
	capCfg.Device = *device

	detector, err := movenet.New(movenet.Config{ModelPath: *modelPath, InputSize: movenet.DefaultConfig().InputSize})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load pose model %s: %v\n", *modelPath, err)
		os.Exit(1)
	}
	defer detector.Close()

	cam, err := capture.Open(*capCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cam.Close()

	sess, err := session.New(detector, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	debug.Log("monitor configured", "device", capCfg.Device, "width", capCfg.Width,
		"height", capCfg.Height, "fps", *fps, "session", sess.ID())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Second / time.Duration(*fps)
	switch {
	case *window:
		runWindow(ctx, stop, sess, cam, interval)
	case *plain:
		runPlain(ctx, sess, cam, interval)
	default:
		runTUI(ctx, stop, sess, cam, interval)
	}
}

// initLogging keeps log output off the terminal while the UI owns it.
func initLogging(useTUI bool) error {
	level := config.LogLevel()
	if *debugFlag {
		level = "debug"
	}
	if !useTUI {
		log.Init(level)
		return nil
	}

	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
	}
	log.InitWriter(w, level)
	return nil
}

func runTUI(ctx context.Context, stop context.CancelFunc, sess *session.Session, cam *capture.Camera, interval time.Duration) {
	updates := make(chan protocol.StatusData, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(updates)
		sess.Run(ctx, cam, interval, func(u session.Update) {
			select {
			case updates <- protocol.StatusFromUpdate(u, 0):
			case <-ctx.Done():
			}
		})
	}()

	title := fmt.Sprintf("PostureGuard · camera %d", cam.Config().Device)
	p := tea.NewProgram(tui.New(title, tui.LocalController{Session: sess}, updates),
		tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	stop()
	wg.Wait()
}

func runPlain(ctx context.Context, sess *session.Session, cam *capture.Camera, interval time.Duration) {
	fmt.Println()
	fmt.Println("🧘 PostureGuard Monitor")
	fmt.Printf("   Session: %s\n", sess.ID())
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()

	var last posture.State = -1
	sess.Run(ctx, cam, interval, func(u session.Update) {
		st := u.Status
		if st.State == last && st.State != posture.StateCalibrating && st.State != posture.StateBad {
			return
		}
		last = st.State
		fmt.Printf("%s  %-32s %s\n", u.Time.Format("15:04:05"), st.Text(), st.Readout())
	})
}

// runWindow draws the latest status over the camera preview. gocv windows
// must be driven from the main goroutine.
func runWindow(ctx context.Context, stop context.CancelFunc, sess *session.Session, cam *capture.Camera, interval time.Duration) {
	var (
		mu     sync.Mutex
		status = posture.Status{State: posture.StateCalibrating, Remaining: posture.CalibrationDuration}
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx, cam, interval, func(u session.Update) {
			mu.Lock()
			status = u.Status
			mu.Unlock()
		})
	}()

	win := gocv.NewWindow("PostureGuard")
	defer win.Close()

	img := gocv.NewMat()
	defer img.Close()

	log.Info("preview window open", "session", sess.ID(), "keys", "q or esc to quit")
	for ctx.Err() == nil {
		if cam.Snapshot(&img) {
			mu.Lock()
			st := status
			mu.Unlock()
			capture.DrawStatus(&img, st)
			win.IMShow(img)
		}
		if key := win.WaitKey(30); key == 'q' || key == 27 {
			break
		}
	}

	stop()
	<-done
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
