// posture-stream: stream the local webcam to a posture-server session
// Detection runs on the server; this client renders the session live.
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

	"github.com/teslashibe/posture-guard/internal/config"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/internal/tui"
	"github.com/teslashibe/posture-guard/pkg/capture"
	"github.com/teslashibe/posture-guard/pkg/stream"
)

var (
	serverURL = flag.String("server", "", "Server base URL (default $POSTURE_SERVER_URL)")
	sessionID = flag.String("session", "", "Session ID (default: server-assigned)")
	device    = flag.Int("device", config.DefaultCamera, "Camera index")
	preset    = flag.String("preset", "low", "Capture preset: default, hd720, low")
	fps       = flag.Int("fps", 5, "Frames sent per second")
	threshold = flag.Float64("threshold", 0, "Deviation threshold (default: server)")
	smoothing = flag.Int("smoothing", 0, "Smoothing window (default: server)")
	metric    = flag.String("metric", "", "Metric: angle or offset (default: server)")
	logFile   = flag.String("log-file", "", "Write logs to this file")
	debugFlag = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *serverURL == "" {
		*serverURL = config.ServerURL()
	}
	if *fps < 1 || *fps > 30 {
		fmt.Fprintln(os.Stderr, "Error: fps must be within 1-30")
		os.Exit(2)
	}

	level := config.LogLevel()
	if *debugFlag {
		level = "debug"
	}
	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	log.InitWriter(w, level)

	capCfg := capture.GetPreset(*preset)
	if capCfg == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown preset %q\n", *preset)
		os.Exit(2)
	}
	capCfg.Device = *device

	cam, err := capture.Open(*capCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cam.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	client, err := stream.Dial(dialCtx, *serverURL, stream.DialOptions{
		SessionID: *sessionID,
		Threshold: *threshold,
		Smoothing: *smoothing,
		Metric:    *metric,
	})
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	log.Info("session opened", "server", *serverURL, "session", client.SessionID())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := time.Second / time.Duration(*fps)
		if err := client.Stream(ctx, cam, capCfg.Width, capCfg.Height, interval); err != nil {
			log.Error("stream stopped", "error", err)
		}
	}()

	title := fmt.Sprintf("PostureGuard · %s · %s", *serverURL, client.SessionID())
	p := tea.NewProgram(tui.New(title, client, client.Statuses()),
		tea.WithAltScreen(), tea.WithContext(ctx))

	go forwardErrors(ctx, p, client.Errors())

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	stop()
	wg.Wait()
}

// forwardErrors shows server-side errors in the UI.
func forwardErrors(ctx context.Context, p *tea.Program, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			log.Warn("server error", "error", err)
			p.Send(tui.ErrMsg{Err: err})
		}
	}
}
