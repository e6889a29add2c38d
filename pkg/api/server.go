// Package api provides the posture HTTP service: still-image analysis,
// streaming sessions and a live watch feed for dashboards.
package api

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/posture-guard/internal/log"
	"github.com/teslashibe/posture-guard/pkg/hub"
	"github.com/teslashibe/posture-guard/pkg/pose"
	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/protocol"
	"github.com/teslashibe/posture-guard/pkg/session"
	"github.com/teslashibe/posture-guard/pkg/stream"
)

// Options configures a Server
type Options struct {
	Version  string
	Debug    bool           // Request logging
	Defaults posture.Config // Initial settings of streaming sessions
	BodyMax  int            // Request body limit in bytes
}

// DefaultOptions returns options suitable for a local deployment
func DefaultOptions() Options {
	return Options{
		Version:  "dev",
		Defaults: posture.DefaultConfig(),
		BodyMax:  10 * 1024 * 1024,
	}
}

// Server is the posture HTTP service
type Server struct {
	app      *fiber.App
	provider pose.Provider
	version  string

	// Streaming sessions
	streams *stream.Hub

	// Watch feed of every session update
	watch *hub.Hub

	// Still-image stats
	analyzeRequests atomic.Uint64
	analyzeDetected atomic.Uint64
	analyzeRejected atomic.Uint64
	analyzeFailures atomic.Uint64
}

// NewServer creates a server that detects poses with provider
func NewServer(provider pose.Provider, opts Options) *Server {
	if opts.BodyMax <= 0 {
		opts.BodyMax = DefaultOptions().BodyMax
	}
	if opts.Defaults.Threshold == 0 {
		opts.Defaults = posture.DefaultConfig()
	}

	s := &Server{
		provider: provider,
		version:  opts.Version,
		streams:  stream.NewHub(provider, opts.Defaults),
		watch:    hub.New("watch"),
	}
	s.streams.OnUpdate(s.publishUpdate)

	app := fiber.New(fiber.Config{
		AppName:               "posture-guard",
		DisableStartupMessage: true,
		BodyLimit:             opts.BodyMax,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	app.Post("/analyze", s.handleAnalyze)
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	// Dashboard feed
	app.Use("/ws/watch", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/watch", s.watch.Handler())

	// Streaming sessions
	s.streams.RegisterRoutes(app)
	s.streams.RegisterAPIRoutes(app.Group("/api"))

	s.app = app
	return s
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Streams returns the streaming session hub
func (s *Server) Streams() *stream.Hub {
	return s.streams
}

// Watch returns the watch feed hub
func (s *Server) Watch() *hub.Hub {
	return s.watch
}

// Start runs the watch hub and serves on addr until the listener fails
// or the server is shut down. The hub stops when ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.watch.Run(ctx)

	log.Info("posture server listening", "addr", addr, "version", s.version)
	if err := s.app.Listen(addr); err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// publishUpdate forwards a session update to watchers
func (s *Server) publishUpdate(u session.Update) {
	msg, err := protocol.NewStatusMessage(u, 0)
	if err != nil {
		log.Error("watch encode failed", "session", u.SessionID, "error", err)
		return
	}
	if err := s.watch.Publish(u.SessionID, msg); err != nil {
		log.Error("watch publish failed", "session", u.SessionID, "error", err)
	}
}
