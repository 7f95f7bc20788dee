package cmd

import (
	"context"
	"fmt"
	"maps"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JasonLKelly/cosense-cloud/internal/api"
	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/coord"
	"github.com/JasonLKelly/cosense-cloud/sim/trace"
)

var (
	horizon        int64  // Ticks to run headless; 0 runs in real time
	listenAddr     string // HTTP listen address
	tickRate       float64
	robotCount     int
	humanCount     int
	seed           int64
	layoutPath     string
	autoStart      bool
	traceLevel     string
	applyDecisions bool
	suppressRepeat bool
)

// feedBuffer is the per-subscriber telemetry channel depth.
const feedBuffer = 64

// runCmd runs simulator and coordinator in one process
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulator and coordinator as one closed loop",
	Run: func(cmd *cobra.Command, args []string) {
		var defaults map[string]any
		if horizon > 0 {
			defaults = map[string]any{"log": "warn"}
		}
		cfg := setup(cmd, defaults)
		defer setupMetrics(cfg)()
		engine := newEngine(cfg)

		var feedback coord.Feedback
		if cfg.Coord.ApplyDecisions {
			feedback = engine
		}
		c, dt := newCoordinator(cfg, feedback)

		ctx, stop := signalContext()
		defer stop()

		var outs []coord.Sink
		if s := influxSink(ctx, cfg); s != nil {
			defer s.Close()
			outs = append(outs, s)
		}

		if horizon > 0 {
			runHeadless(ctx, engine, c, outs)
		} else {
			runLive(ctx, cfg, engine, c, outs)
		}

		c.Metrics().Print(os.Stdout)
		if dt != nil {
			printTraceSummary(trace.Summarize(dt))
		}
		logrus.Info("Simulation complete.")
	},
}

// runHeadless steps the engine as fast as possible for horizon ticks.
func runHeadless(ctx context.Context, engine *sim.Engine, c *coord.Coordinator, outs []coord.Sink) {
	start := time.Now()
	for i := int64(0); i < horizon && ctx.Err() == nil; i++ {
		out := c.Process(ctx, engine.Step())
		for _, s := range outs {
			s.Publish(out)
		}
	}
	logrus.Infof("Ran %d ticks in %s", c.Metrics().Ticks, time.Since(start).Round(time.Millisecond))
}

// runLive ticks in real time and serves the control API and feeds until interrupted.
func runLive(ctx context.Context, cfg *Config, engine *sim.Engine, c *coord.Coordinator, outs []coord.Sink) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logrus.Fatalf("Failed to listen on %s: %v", cfg.Listen, err)
	}
	server := api.NewServer(api.DefaultConfig(), engine)
	frames := engine.Subscribe("coordinator", feedBuffer)
	feed := engine.Subscribe("telemetry-feed", feedBuffer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_ = engine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = c.Run(ctx, frames.C(), append(outs, server)...)
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
}

func printTraceSummary(s *trace.TraceSummary) {
	logrus.Infof("Trace: %d decisions across %d robots, %d escalations, %d feedback failures",
		s.TotalDecisions, s.UniqueRobots, s.Escalations, s.FeedbackFailures)
	fmt.Println("=== Decision Trace ===")
	fmt.Printf("Decisions            : %d\n", s.TotalDecisions)
	fmt.Printf("Robots               : %d\n", s.UniqueRobots)
	fmt.Printf("Escalations          : %d\n", s.Escalations)
	fmt.Printf("Feedback Failures    : %d\n", s.FeedbackFailures)
	fmt.Printf("Mean / Max Risk      : %.3f / %.3f\n", s.MeanRisk, s.MaxRisk)
	for _, reason := range slices.Sorted(maps.Keys(s.ReasonDistribution)) {
		fmt.Printf("  %-18s : %d\n", reason, s.ReasonDistribution[reason])
	}
}

func init() {
	runCmd.Flags().Int64Var(&horizon, "horizon", 0, "Ticks to simulate headless; 0 runs in real time with the HTTP API")
	registerSimFlags(runCmd)
	registerCoordFlags(runCmd)
}

// registerSimFlags adds the world and server flags shared by run and simulate.
func registerSimFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddr, "listen", ":8000", "HTTP listen address")
	cmd.Flags().Float64Var(&tickRate, "tick-rate", 10, "Simulation tick rate (Hz)")
	cmd.Flags().IntVar(&robotCount, "robots", 2, "Initial robot count")
	cmd.Flags().IntVar(&humanCount, "humans", 2, "Initial human count")
	cmd.Flags().Int64Var(&seed, "seed", 0, "World seed (0 selects a time-based seed)")
	cmd.Flags().StringVar(&layoutPath, "layout", "", "Warehouse layout YAML (default: stock layout)")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "Start advancing time immediately instead of waiting for POST /scenario/start")
}

// registerCoordFlags adds the coordination flags shared by run and coordinate.
func registerCoordFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions, assessments)")
	cmd.Flags().BoolVar(&applyDecisions, "apply-decisions", true, "Feed decisions back to the simulator")
	cmd.Flags().BoolVar(&suppressRepeat, "suppress-repeats", false, "Suppress repeated identical non-CONTINUE decisions")
}
