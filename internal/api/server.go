// Package api serves the simulator control surface and the live telemetry and
// coordination feeds over HTTP and websockets.
package api

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"

	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/coord"
)

// Simulator is the engine surface the control API drives. *sim.Engine implements it.
type Simulator interface {
	State() sim.WorldState
	TickRate() float64
	Submit(ctx context.Context, cmd sim.Command) (any, error)
}

// Config holds server options.
type Config struct {
	// SubmitTimeout bounds how long a request waits for the tick loop.
	SubmitTimeout time.Duration
}

// DefaultConfig returns a 2 s submit timeout.
func DefaultConfig() Config {
	return Config{SubmitTimeout: 2 * time.Second}
}

// Server is the HTTP front of a simulator and/or coordinator. With a nil
// Simulator the control routes answer 503 and only the coordination views work.
type Server struct {
	app    *fiber.App
	cfg    Config
	sim    Simulator
	recent *Recent

	telemetry    *Hub
	coordination *Hub
}

// NewServer builds the fiber app and registers every route.
func NewServer(cfg Config, simulator Simulator) *Server {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultConfig().SubmitTimeout
	}
	s := &Server{
		cfg:          cfg,
		sim:          simulator,
		recent:       NewRecent(),
		telemetry:    NewHub("telemetry"),
		coordination: NewHub("coordination"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "CoSense",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/state", s.handleState)
	app.Get("/coordination", s.handleCoordination)
	app.Get("/decisions", s.handleDecisions)
	app.Get("/decisions/:id", s.handleDecisions)
	app.Post("/decision", s.handleDecision)

	scenario := app.Group("/scenario")
	scenario.Get("/status", s.handleStatus)
	scenario.Post("/start", s.handleStart)
	scenario.Post("/stop", s.handleStop)
	scenario.Post("/toggle", s.handleToggle)
	scenario.Post("/scale", s.handleScale)
	scenario.Post("/reset", s.handleReset)

	robots := app.Group("/robots")
	robots.Get("/:id", s.handleRobot)
	robots.Post("/:id/stop", s.handleOverride(true))
	robots.Post("/:id/start", s.handleOverride(false))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.telemetry.Serve))
	app.Get("/ws/coordination", websocket.New(s.coordination.Serve))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Run starts the hubs and serves on ln until ctx is cancelled.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	go s.telemetry.Run(ctx)
	go s.coordination.Run(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()
	logrus.Infof("API listening on %s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			logrus.Warnf("API shutdown: %v", err)
		}
		return nil
	}
}

// Publish records a coordination output and pushes it to /ws/coordination.
// It makes Server a coord.Sink.
func (s *Server) Publish(out coord.Output) {
	s.recent.Add(out)
	if err := s.coordination.BroadcastJSON(out); err != nil {
		logrus.Errorf("encoding coordination output: %v", err)
	}
}

// PublishFrame pushes a telemetry frame to /ws/telemetry.
func (s *Server) PublishFrame(f sim.Frame) {
	if err := s.telemetry.BroadcastJSON(f); err != nil {
		logrus.Errorf("encoding telemetry frame: %v", err)
	}
}

// Forward relays frames to /ws/telemetry until frames is closed or ctx is cancelled.
func (s *Server) Forward(ctx context.Context, frames <-chan sim.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.PublishFrame(f)
		}
	}
}

// submit runs cmd on the tick loop within the configured timeout.
func (s *Server) submit(c *fiber.Ctx, cmd sim.Command) (any, error) {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.SubmitTimeout)
	defer cancel()
	return s.sim.Submit(ctx, cmd)
}

var errNoSimulator = fiber.NewError(fiber.StatusServiceUnavailable, "simulator not attached")

// errorHandler maps domain errors onto status codes and renders {"error": msg}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, sim.ErrUnknownRobot), errors.Is(err, sim.ErrUnknownZone):
		code = fiber.StatusNotFound
	case errors.Is(err, sim.ErrInvalidAction):
		code = fiber.StatusBadRequest
	case errors.Is(err, sim.ErrEngineBusy), errors.Is(err, sim.ErrEngineStopped),
		errors.Is(err, context.DeadlineExceeded):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError && code != fiber.StatusServiceUnavailable {
		logrus.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
