// posture-check: score a single image against a running posture-server
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/posture-guard/internal/config"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/api"
)

var (
	serverURL = flag.String("server", "", "Server base URL (default $POSTURE_SERVER_URL)")
	timeout   = flag.Duration("timeout", 15*time.Second, "Request timeout")
	jsonOut   = flag.Bool("json", false, "Print the raw JSON response")
)

var (
	good  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	bad   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <image>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *serverURL == "" {
		*serverURL = config.ServerURL()
	}
	log.Init(config.LogLevel())

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := api.NewClient(*serverURL)
	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: server %s not healthy: %v\n", *serverURL, err)
		os.Exit(1)
	}

	resp, err := client.Analyze(ctx, image)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "Error: %s (HTTP %d)\n", se.Message, se.Code)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}
	printResult(flag.Arg(0), resp)
}

func printResult(name string, r *api.AnalyzeResponse) {
	fmt.Println(muted.Render(name))
	switch {
	case !r.Detected:
		fmt.Println(muted.Render("  " + r.Message))
	case r.Error != "":
		fmt.Println(bad.Render("  " + r.Error))
	case r.Score == nil || r.IsSlouched == nil:
		fmt.Println(muted.Render("  no score returned"))
	default:
		style, verdict := good, "Upright"
		if *r.IsSlouched {
			style, verdict = bad, "Slouching"
		}
		fmt.Printf("  %s  score %.0f/100", style.Render(verdict), *r.Score)
		if r.VerticalDistance != nil {
			fmt.Printf("  %s", muted.Render(fmt.Sprintf("offset %.4f", *r.VerticalDistance)))
		}
		fmt.Println()
	}
}
