package cmd

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JasonLKelly/cosense-cloud/internal/api"
	"github.com/JasonLKelly/cosense-cloud/internal/feedback"
	"github.com/JasonLKelly/cosense-cloud/internal/stream"
	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/coord"
	"github.com/JasonLKelly/cosense-cloud/sim/trace"
)

var (
	simulatorURL string // Base URL of the simulator control API
	telemetryURL string // Telemetry feed the coordinator subscribes to
)

// simulateCmd serves the simulator alone; coordination runs elsewhere.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve the warehouse simulator and its telemetry feed",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup(cmd, nil)
		engine := newEngine(cfg)

		ctx, stop := signalContext()
		defer stop()

		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			logrus.Fatalf("Failed to listen on %s: %v", cfg.Listen, err)
		}
		server := api.NewServer(api.DefaultConfig(), engine)
		feed := engine.Subscribe("telemetry-feed", feedBuffer)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = engine.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			server.Forward(ctx, feed.C())
		}()

		if err := server.Run(ctx, ln); err != nil {
			logrus.Errorf("API server: %v", err)
		}
		cancel()
		wg.Wait()
		logrus.Infof("Simulator stopped at tick %d (%d frames dropped by the feed)", engine.State().Tick, feed.Dropped())
	},
}

// coordinateCmd consumes a remote telemetry feed and posts decisions back.
var coordinateCmd = &cobra.Command{
	Use:   "coordinate",
	Short: "Coordinate a remote simulator over its telemetry feed and control API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup(cmd, map[string]any{"listen": ":8001"})
		defer setupMetrics(cfg)()

		var fb coord.Feedback
		if cfg.Coord.ApplyDecisions {
			fb = feedback.NewClient(cfg.Coord.SimulatorURL, cfg.Coord.FeedbackTimeout)
			logrus.Infof("Posting decisions to %s", cfg.Coord.SimulatorURL)
		}
		c, dt := newCoordinator(cfg, fb)

		ctx, stop := signalContext()
		defer stop()

		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			logrus.Fatalf("Failed to listen on %s: %v", cfg.Listen, err)
		}
		server := api.NewServer(api.DefaultConfig(), nil)
		sinks := []coord.Sink{server}
		if s := influxSink(ctx, cfg); s != nil {
			defer s.Close()
			sinks = append(sinks, s)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		frames := make(chan sim.Frame, feedBuffer)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := stream.NewSubscriber(cfg.Coord.TelemetryURL).Run(ctx, frames); err != nil {
				logrus.Errorf("Telemetry subscriber: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = c.Run(ctx, frames, sinks...)
		}()

		if err := server.Run(ctx, ln); err != nil {
			logrus.Errorf("API server: %v", err)
		}
		cancel()
		wg.Wait()

		c.Metrics().Print(os.Stdout)
		if dt != nil {
			printTraceSummary(trace.Summarize(dt))
		}
	},
}

func init() {
	registerSimFlags(simulateCmd)

	coordinateCmd.Flags().StringVar(&listenAddr, "listen", ":8001", "HTTP listen address for decisions and the coordination feed")
	coordinateCmd.Flags().StringVar(&simulatorURL, "simulator-url", "http://localhost:8000", "Simulator control API base URL")
	coordinateCmd.Flags().StringVar(&telemetryURL, "telemetry-url", "ws://localhost:8000/ws/telemetry", "Simulator telemetry WebSocket URL")
	registerCoordFlags(coordinateCmd)
}
