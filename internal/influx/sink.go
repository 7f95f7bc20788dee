// Package influx writes coordination states and decisions to InfluxDB as
// time series. Writes are batched and non-blocking.
package influx

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/JasonLKelly/cosense-cloud/sim/coord"
)

const (
	stateMeasurement    = "robot_state"
	decisionMeasurement = "coordination_decision"
)

// Config locates the InfluxDB bucket.
type Config struct {
	URL             string `mapstructure:"url"`
	Token           string `mapstructure:"token"`
	Org             string `mapstructure:"org"`
	Bucket          string `mapstructure:"bucket"`
	BatchSize       uint   `mapstructure:"batch_size"`
	FlushIntervalMs uint   `mapstructure:"flush_interval_ms"`
}

// pointWriter is the slice of api.WriteAPI the sink uses.
type pointWriter interface {
	WritePoint(point *influxdb2_write.Point)
	Flush()
}

// Sink is a coord.Sink backed by an InfluxDB write API.
type Sink struct {
	client influxdb2.Client
	writer pointWriter
}

// Connect creates the client, checks the server is reachable and starts
// draining asynchronous write errors into the log.
func Connect(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushIntervalMs == 0 {
		cfg.FlushIntervalMs = 1000
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(cfg.FlushIntervalMs).
			SetPrecision(time.Millisecond))

	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		if err == nil {
			err = fmt.Errorf("server not ready")
		}
		return nil, fmt.Errorf("influxdb at %s: %w", cfg.URL, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func(errs <-chan error) {
		for err := range errs {
			logrus.WithField("bucket", cfg.Bucket).Errorf("Error sending data to InfluxDB: %v", err)
		}
	}(writeAPI.Errors())

	logrus.Infof("InfluxDB sink writing to %s/%s", cfg.Org, cfg.Bucket)
	return &Sink{client: client, writer: writeAPI}, nil
}

// Publish queues one point per robot state and per decision.
func (s *Sink) Publish(out coord.Output) {
	for _, st := range out.States {
		s.writer.WritePoint(StatePoint(st))
	}
	for _, d := range out.Decisions {
		s.writer.WritePoint(DecisionPoint(d))
	}
}

// Close flushes pending points and releases the client.
func (s *Sink) Close() {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}

// StatePoint renders a coordination state.
func StatePoint(st coord.State) *influxdb2_write.Point {
	fields := map[string]any{
		"x":                st.X,
		"y":                st.Y,
		"velocity":         st.Velocity,
		"heading":          st.Heading,
		"risk_score":       st.RiskScore,
		"congestion_level": st.CongestionLevel,
	}
	if st.NearestHumanDistance != nil {
		fields["nearest_human_distance"] = *st.NearestHumanDistance
	}
	if st.RelativeVelocity != nil {
		fields["relative_velocity"] = *st.RelativeVelocity
	}
	return influxdb2_write.NewPoint(stateMeasurement,
		map[string]string{
			"robot_id":     string(st.RobotID),
			"zone_id":      string(st.ZoneID),
			"motion_state": string(st.MotionState),
			"visibility":   string(st.Visibility),
			"connectivity": string(st.Connectivity),
		},
		fields,
		time.UnixMilli(st.TimestampMs))
}

// DecisionPoint renders an emitted decision.
func DecisionPoint(d coord.Decision) *influxdb2_write.Point {
	codes := make([]string, len(d.ReasonCodes))
	for i, c := range d.ReasonCodes {
		codes[i] = string(c)
	}
	fields := map[string]any{
		"decision_id":  d.DecisionID,
		"risk_score":   d.RiskScore,
		"reason_codes": strings.Join(codes, ","),
		"summary":      d.Summary,
	}
	if d.NearestHumanDistance != nil {
		fields["nearest_human_distance"] = *d.NearestHumanDistance
	}
	return influxdb2_write.NewPoint(decisionMeasurement,
		map[string]string{
			"robot_id":       string(d.RobotID),
			"zone_id":        string(d.ZoneID),
			"action":         string(d.Action),
			"primary_reason": string(d.PrimaryReason),
		},
		fields,
		time.UnixMilli(d.TimestampMs))
}
