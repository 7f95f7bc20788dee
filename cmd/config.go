package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JasonLKelly/cosense-cloud/internal/influx"
	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/coord"
	"github.com/JasonLKelly/cosense-cloud/sim/layout"
	"github.com/JasonLKelly/cosense-cloud/sim/risk"
	"github.com/JasonLKelly/cosense-cloud/sim/trace"
)

// envPrefix namespaces environment overrides, e.g. COSENSE_SIM_ROBOTS.
const envPrefix = "COSENSE"

// Config is the fully layered configuration of every subcommand.
type Config struct {
	Log     string        `mapstructure:"log"`
	Listen  string        `mapstructure:"listen"`
	Sim     SimConfig     `mapstructure:"sim"`
	Risk    risk.Config   `mapstructure:"risk"`
	Coord   CoordConfig   `mapstructure:"coord"`
	Influx  InfluxConfig  `mapstructure:"influx"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SimConfig configures the world and its engine.
type SimConfig struct {
	TickRate    float64 `mapstructure:"tick_rate_hz"`
	Width       float64 `mapstructure:"world_width"`
	Height      float64 `mapstructure:"world_height"`
	ZoneID      string  `mapstructure:"zone_id"`
	Robots      int     `mapstructure:"robots"`
	Humans      int     `mapstructure:"humans"`
	Seed        int64   `mapstructure:"seed"`
	RobotBuffer float64 `mapstructure:"robot_buffer_m"`
	Layout      string  `mapstructure:"layout"` // YAML warehouse map; empty selects the stock layout
	AutoStart   bool    `mapstructure:"auto_start"`
}

// CoordConfig configures the coordination stage.
type CoordConfig struct {
	ApplyDecisions  bool          `mapstructure:"apply_decisions"`
	SimulatorURL    string        `mapstructure:"simulator_url"`
	TelemetryURL    string        `mapstructure:"telemetry_url"`
	FeedbackTimeout time.Duration `mapstructure:"feedback_timeout"`
	SuppressRepeats bool          `mapstructure:"suppress_repeats"`
	Trace           string        `mapstructure:"trace"`
}

// InfluxConfig enables the optional time-series sink.
type InfluxConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	influx.Config `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log", "info")
	v.SetDefault("listen", ":8000")

	world := sim.DefaultWorldConfig()
	v.SetDefault("sim.tick_rate_hz", sim.DefaultEngineConfig().TickRate)
	v.SetDefault("sim.world_width", world.Width)
	v.SetDefault("sim.world_height", world.Height)
	v.SetDefault("sim.zone_id", string(world.ZoneID))
	v.SetDefault("sim.robots", world.Robots)
	v.SetDefault("sim.humans", world.Humans)
	v.SetDefault("sim.seed", 0)
	v.SetDefault("sim.robot_buffer_m", world.RobotBuffer)
	v.SetDefault("sim.layout", "")
	v.SetDefault("sim.auto_start", false)

	r := risk.DefaultConfig()
	v.SetDefault("risk.proximity_warning_m", r.ProximityWarning)
	v.SetDefault("risk.proximity_critical_m", r.ProximityCritical)
	v.SetDefault("risk.speed_warning_ms", r.SpeedWarning)
	v.SetDefault("risk.speed_saturation_ms", r.SpeedSaturation)
	v.SetDefault("risk.ble_alert_rssi", r.BLEAlertRSSI)
	v.SetDefault("risk.ble_reference_rssi", r.BLEReferenceRSSI)
	v.SetDefault("risk.ble_span_db", r.BLESpan)
	v.SetDefault("risk.disagreement_rssi", r.DisagreementRSSI)
	v.SetDefault("risk.disagreement_level", r.DisagreementLevel)
	v.SetDefault("risk.slow_threshold", r.SlowThreshold)
	v.SetDefault("risk.stop_threshold", r.StopThreshold)
	v.SetDefault("risk.weights.proximity", r.Weights.Proximity)
	v.SetDefault("risk.weights.relative_speed", r.Weights.RelativeSpeed)
	v.SetDefault("risk.weights.ble", r.Weights.BLE)
	v.SetDefault("risk.weights.sensor_disagreement", r.Weights.SensorDisagreement)
	v.SetDefault("risk.zone_factors", r.ZoneFactors)
	v.SetDefault("risk.congestion_warning", r.CongestionWarning)

	v.SetDefault("coord.apply_decisions", true)
	v.SetDefault("coord.simulator_url", "http://localhost:8000")
	v.SetDefault("coord.telemetry_url", "ws://localhost:8000/ws/telemetry")
	v.SetDefault("coord.feedback_timeout", coord.DefaultConfig().FeedbackTimeout)
	v.SetDefault("coord.suppress_repeats", false)
	v.SetDefault("coord.trace", string(trace.TraceLevelNone))

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "cosense")
	v.SetDefault("influx.bucket", "coordination")
	v.SetDefault("influx.batch_size", 1000)
	v.SetDefault("influx.flush_interval_ms", 1000)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.interval", 10*time.Second)
	v.SetDefault("metrics.output", "")
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"log":              "log",
	"listen":           "listen",
	"tick-rate":        "sim.tick_rate_hz",
	"robots":           "sim.robots",
	"humans":           "sim.humans",
	"seed":             "sim.seed",
	"layout":           "sim.layout",
	"auto-start":       "sim.auto_start",
	"simulator-url":    "coord.simulator_url",
	"telemetry-url":    "coord.telemetry_url",
	"apply-decisions":  "coord.apply_decisions",
	"suppress-repeats": "coord.suppress_repeats",
	"trace":            "coord.trace",
	"metrics":          "metrics.enabled",
}

// loadConfig layers defaults, the optional config file, COSENSE_* environment
// variables and explicitly set flags, in increasing precedence. overrides
// replaces individual defaults.
func loadConfig(path string, flags *pflag.FlagSet, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, value := range overrides {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("sim.tick_rate_hz must be positive, got %g", c.Sim.TickRate)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if !trace.IsValidTraceLevel(c.Coord.Trace) {
		return fmt.Errorf("unknown trace level %q", c.Coord.Trace)
	}
	return nil
}

// worldConfig builds the world configuration, loading the layout file if set.
func (c *Config) worldConfig() (sim.WorldConfig, error) {
	w := sim.WorldConfig{
		ZoneID:      sim.ZoneID(c.Sim.ZoneID),
		Width:       c.Sim.Width,
		Height:      c.Sim.Height,
		Robots:      c.Sim.Robots,
		Humans:      c.Sim.Humans,
		Seed:        c.Sim.Seed,
		RobotBuffer: c.Sim.RobotBuffer,
	}
	if c.Sim.Layout != "" {
		m, err := layout.Load(c.Sim.Layout)
		if err != nil {
			return sim.WorldConfig{}, err
		}
		w.Layout = m
	}
	return w, w.Validate()
}

func (c *Config) engineConfig() sim.EngineConfig {
	e := sim.DefaultEngineConfig()
	e.TickRate = c.Sim.TickRate
	e.AutoStart = c.Sim.AutoStart
	// A tick can queue one decision per robot; keep room for operator commands.
	if n := 2*c.Sim.Robots + 64; n > e.CommandBuffer {
		e.CommandBuffer = n
	}
	return e
}

func (c *Config) coordConfig() coord.Config {
	return coord.Config{
		Risk:            c.Risk,
		FeedbackTimeout: c.Coord.FeedbackTimeout,
		SuppressRepeats: c.Coord.SuppressRepeats,
	}
}
