package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JasonLKelly/cosense-cloud/internal/influx"
	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/coord"
	"github.com/JasonLKelly/cosense-cloud/sim/fusion"
	"github.com/JasonLKelly/cosense-cloud/sim/trace"
)

var (
	configPath string // Optional YAML config file
	logLevel   string // Log verbosity level
	metricsOn  bool   // Export OTel metrics
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "cosense",
	Short: "Warehouse robot/human coordination simulator",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the layered configuration for cmd and applies the log level.
// defaults replaces the stock defaults of the given keys for this subcommand.
// Invalid configuration is fatal.
func setup(cmd *cobra.Command, defaults map[string]any) *Config {
	cfg, err := loadConfig(configPath, cmd.Flags(), defaults)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.Log)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", cfg.Log)
	}
	logrus.SetLevel(level)
	return cfg
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newEngine builds the world and wraps it in an engine.
func newEngine(cfg *Config) *sim.Engine {
	wcfg, err := cfg.worldConfig()
	if err != nil {
		logrus.Fatalf("Invalid world: %v", err)
	}
	world, err := sim.NewWorld(wcfg)
	if err != nil {
		logrus.Fatalf("Failed to build world: %v", err)
	}
	logrus.Infof("World seed %d: %d robots, %d humans", world.Seed(), world.RobotCount(), world.HumanCount())
	return sim.NewEngine(world, cfg.engineConfig())
}

// newCoordinator wires a coordinator around a fresh fusion store.
func newCoordinator(cfg *Config, feedback coord.Feedback) (*coord.Coordinator, *trace.DecisionTrace) {
	var dt *trace.DecisionTrace
	if level := trace.TraceLevel(cfg.Coord.Trace); level != trace.TraceLevelNone && level != "" {
		dt = trace.NewDecisionTrace(trace.TraceConfig{Level: level})
	}
	c, err := coord.New(cfg.coordConfig(), fusion.NewStore(), feedback, dt)
	if err != nil {
		logrus.Fatalf("Failed to build coordinator: %v", err)
	}
	return c, dt
}

// influxSink connects the optional InfluxDB sink. A nil sink means disabled
// or unreachable; coordination runs either way.
func influxSink(ctx context.Context, cfg *Config) *influx.Sink {
	if !cfg.Influx.Enabled {
		return nil
	}
	s, err := influx.Connect(ctx, cfg.Influx.Config)
	if err != nil {
		logrus.Warnf("InfluxDB sink disabled: %v", err)
		return nil
	}
	return s
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (settings may also come from COSENSE_* environment variables)")
	rootCmd.PersistentFlags().BoolVar(&metricsOn, "metrics", false, "Export coordinator OTel metrics to stderr (or metrics.output)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level (trace, debug, info, warn, error, fatal, panic); default info, warn for headless runs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(coordinateCmd)
}
