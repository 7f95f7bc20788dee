// Package coord closes the control loop: it folds telemetry into the fusion
// store, scores each robot, emits coordination state every tick and
// decisions when hysteresis allows, and feeds decisions back to the simulator.
package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/fusion"
	"github.com/JasonLKelly/cosense-cloud/sim/geom"
	"github.com/JasonLKelly/cosense-cloud/sim/risk"
	"github.com/JasonLKelly/cosense-cloud/sim/trace"
)

// Feedback delivers a decision to whatever owns the robots.
type Feedback interface {
	Apply(ctx context.Context, robotID sim.RobotID, action sim.Action) error
}

// Sink receives every tick's output in order.
type Sink interface {
	Publish(out Output)
}

// Decision is an emitted coordination decision.
type Decision struct {
	DecisionID           string            `json:"decision_id"`
	RobotID              sim.RobotID       `json:"robot_id"`
	TimestampMs          int64             `json:"timestamp_ms"`
	ZoneID               sim.ZoneID        `json:"zone_id"`
	Action               sim.Action        `json:"action"`
	ReasonCodes          []risk.ReasonCode `json:"reason_codes"`
	PrimaryReason        risk.ReasonCode   `json:"primary_reason"`
	RiskScore            float64           `json:"risk_score"`
	NearestHumanDistance *float64          `json:"nearest_human_distance,omitempty"`
	Summary              string            `json:"summary"`
}

// State is the per-tick coordination view of one robot. RelativeVelocity is
// the closing speed used for scoring; CombinedSpeed is the plain sum of both
// speeds and is informational only.
type State struct {
	RobotID              sim.RobotID      `json:"robot_id"`
	TimestampMs          int64            `json:"timestamp_ms"`
	ZoneID               sim.ZoneID       `json:"zone_id"`
	X                    float64          `json:"x"`
	Y                    float64          `json:"y"`
	Velocity             float64          `json:"velocity"`
	Heading              float64          `json:"heading"`
	MotionState          sim.MotionState  `json:"motion_state"`
	NearestHumanID       *sim.HumanID     `json:"nearest_human_id,omitempty"`
	NearestHumanDistance *float64         `json:"nearest_human_distance,omitempty"`
	RelativeVelocity     *float64         `json:"relative_velocity,omitempty"`
	CombinedSpeed        *float64         `json:"combined_speed,omitempty"`
	Visibility           sim.Visibility   `json:"visibility"`
	CongestionLevel      float64          `json:"congestion_level"`
	Connectivity         sim.Connectivity `json:"connectivity"`
	RiskScore            float64          `json:"risk_score"`
}

// Output is everything produced for one frame.
type Output struct {
	Tick        int64      `json:"tick"`
	TimestampMs int64      `json:"timestamp_ms"`
	States      []State    `json:"states"`
	Decisions   []Decision `json:"decisions"`
}

// Config controls scoring and feedback.
type Config struct {
	Risk            risk.Config
	FeedbackTimeout time.Duration
	// SuppressRepeats drops a non-CONTINUE decision identical to the robot's
	// previous one. Off by default: every non-CONTINUE assessment is re-emitted.
	SuppressRepeats bool
	// MeterProvider supplies the OTel instruments; nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns default thresholds and a 2 s feedback timeout.
func DefaultConfig() Config {
	return Config{
		Risk:            risk.DefaultConfig(),
		FeedbackTimeout: 2 * time.Second,
	}
}

// Coordinator is the coordination stage.
//
// Thread-safety: NOT thread-safe. Owned by a single goroutine (see Run).
type Coordinator struct {
	cfg      Config
	store    *fusion.Store
	feedback Feedback
	trace    *trace.DecisionTrace
	metrics  *Metrics
	inst     *instruments

	last     map[sim.RobotID]sim.Action
	tick     int64
	seenTick bool
}

// New builds a coordinator. feedback and dt may be nil.
func New(cfg Config, store *fusion.Store, feedback Feedback, dt *trace.DecisionTrace) (*Coordinator, error) {
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk config: %w", err)
	}
	if cfg.FeedbackTimeout <= 0 {
		cfg.FeedbackTimeout = DefaultConfig().FeedbackTimeout
	}
	inst, err := newInstruments(cfg.MeterProvider)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		feedback: feedback,
		trace:    dt,
		metrics:  NewMetrics(cfg.Risk.ProximityCritical),
		inst:     inst,
		last:     make(map[sim.RobotID]sim.Action),
	}, nil
}

// Metrics returns the run statistics gathered so far.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// LastAction returns the last emitted action for a robot.
func (c *Coordinator) LastAction(id sim.RobotID) (sim.Action, bool) {
	a, ok := c.last[id]
	return a, ok
}

// Run consumes frames until ctx is cancelled or frames is closed, passing
// each Output to every sink in order.
func (c *Coordinator) Run(ctx context.Context, frames <-chan sim.Frame, sinks ...Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			out := c.Process(ctx, frame)
			for _, s := range sinks {
				s.Publish(out)
			}
		}
	}
}

// Process ingests one frame: humans and zones first so every robot is
// scored against this tick's surroundings, then robots in frame order.
// A tick counter that moves backwards means the simulator was reset, so
// stale entities and hysteresis are dropped first.
func (c *Coordinator) Process(ctx context.Context, frame sim.Frame) Output {
	if c.seenTick && frame.Tick < c.tick {
		logrus.Infof("Telemetry tick went from %d to %d, resetting coordination state", c.tick, frame.Tick)
		c.store.Reset()
		clear(c.last)
	}
	c.tick, c.seenTick = frame.Tick, true
	c.metrics.Ticks++

	for _, h := range frame.Humans {
		c.ProcessHuman(h)
	}
	for _, z := range frame.Zones {
		c.ProcessZone(z)
	}

	out := Output{
		Tick:        frame.Tick,
		TimestampMs: frame.TimestampMs,
		States:      make([]State, 0, len(frame.Robots)),
	}
	for _, r := range frame.Robots {
		state, decision, err := c.ProcessRobot(ctx, r)
		if err != nil {
			continue
		}
		out.States = append(out.States, state)
		if decision != nil {
			out.Decisions = append(out.Decisions, *decision)
		}
	}
	return out
}

// ProcessHuman upserts a human sample. Malformed samples are logged and dropped.
func (c *Coordinator) ProcessHuman(h sim.HumanTelemetry) {
	if err := c.store.UpdateHuman(h); err != nil {
		logrus.Warnf("Dropping malformed telemetry: %v", err)
	}
}

// ProcessZone upserts a zone context. Malformed samples are logged and dropped.
func (c *Coordinator) ProcessZone(z sim.ZoneContext) {
	if err := c.store.UpdateZone(z); err != nil {
		logrus.Warnf("Dropping malformed telemetry: %v", err)
	}
}

// ProcessRobot upserts a robot sample, scores it and returns its State. The
// Decision is nil when hysteresis suppresses it. The error is non-nil only
// for malformed telemetry, which is dropped.
func (c *Coordinator) ProcessRobot(ctx context.Context, r sim.RobotTelemetry) (State, *Decision, error) {
	if err := c.store.UpdateRobot(r); err != nil {
		logrus.Warnf("Dropping malformed telemetry: %v", err)
		return State{}, nil, err
	}

	var human *sim.HumanTelemetry
	if h, _, ok := c.store.NearestHuman(r); ok {
		human = &h
	}
	var zone *sim.ZoneContext
	if z, ok := c.store.Zone(r.ZoneID); ok {
		zone = &z
	}

	a := c.cfg.Risk.Assess(r, human, zone)
	state := newState(r, human, zone, a)
	c.metrics.observe(state)
	c.inst.recordAssessment(ctx, a)
	if c.trace != nil {
		c.trace.RecordAssessment(trace.AssessmentRecord{
			RobotID:              string(r.RobotID),
			Tick:                 c.tick,
			Action:               string(a.Action),
			RiskScore:            a.RiskScore,
			NearestHumanDistance: a.NearestHumanDistance,
		})
	}

	previous, seen := c.last[r.RobotID]
	if !c.shouldEmit(previous, seen, a.Action) {
		return state, nil, nil
	}

	d := Decision{
		DecisionID:           uuid.NewString(),
		RobotID:              r.RobotID,
		TimestampMs:          r.TimestampMs,
		ZoneID:               r.ZoneID,
		Action:               a.Action,
		ReasonCodes:          a.ReasonCodes,
		PrimaryReason:        a.PrimaryReason,
		RiskScore:            a.RiskScore,
		NearestHumanDistance: a.NearestHumanDistance,
		Summary:              a.Summary,
	}
	c.last[r.RobotID] = a.Action
	c.metrics.recordDecision(d)
	c.inst.recordDecision(ctx, d)
	if c.trace != nil {
		c.trace.RecordDecision(trace.DecisionRecord{
			DecisionID:           d.DecisionID,
			RobotID:              string(d.RobotID),
			ZoneID:               string(d.ZoneID),
			Tick:                 c.tick,
			TimestampMs:          d.TimestampMs,
			Action:               string(d.Action),
			PreviousAction:       string(previous),
			PrimaryReason:        string(d.PrimaryReason),
			ReasonCodes:          reasonStrings(d.ReasonCodes),
			RiskScore:            d.RiskScore,
			NearestHumanDistance: d.NearestHumanDistance,
		})
	}
	if d.Action != sim.ActionContinue {
		logrus.WithFields(logrus.Fields{
			"robot":  d.RobotID,
			"action": d.Action,
			"risk":   d.RiskScore,
		}).Debug(d.Summary)
	}

	c.deliver(ctx, d)
	return state, &d, nil
}

// shouldEmit applies decision hysteresis: always on first sight and on any
// change; repeats only for non-CONTINUE actions unless suppressed.
func (c *Coordinator) shouldEmit(previous sim.Action, seen bool, action sim.Action) bool {
	switch {
	case !seen, action != previous:
		return true
	case action == sim.ActionContinue:
		return false
	}
	return !c.cfg.SuppressRepeats
}

// deliver pushes d to the feedback target. Failures are logged and dropped;
// the next tick re-assesses the robot anyway.
func (c *Coordinator) deliver(ctx context.Context, d Decision) {
	if c.feedback == nil {
		return
	}
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FeedbackTimeout)
	defer cancel()
	err := c.feedback.Apply(fctx, d.RobotID, d.Action)
	switch {
	case err == nil:
		return
	case errors.Is(err, sim.ErrUnknownRobot), errors.Is(err, sim.ErrManualOverride):
		logrus.WithField("robot", d.RobotID).Debugf("decision not applied: %v", err)
		return
	}
	c.metrics.FeedbackFailures++
	c.inst.recordFeedbackError(ctx, d)
	if c.trace != nil {
		c.trace.RecordFeedback(trace.FeedbackRecord{
			DecisionID: d.DecisionID,
			RobotID:    string(d.RobotID),
			Action:     string(d.Action),
			Error:      err.Error(),
		})
	}
	logrus.WithFields(logrus.Fields{
		"robot":  d.RobotID,
		"action": d.Action,
	}).Warnf("Failed to apply decision: %v", err)
}

func newState(r sim.RobotTelemetry, human *sim.HumanTelemetry, zone *sim.ZoneContext, a risk.Assessment) State {
	s := State{
		RobotID:              r.RobotID,
		TimestampMs:          r.TimestampMs,
		ZoneID:               r.ZoneID,
		X:                    r.X,
		Y:                    r.Y,
		Velocity:             r.Velocity,
		Heading:              r.Heading,
		MotionState:          r.MotionState,
		NearestHumanDistance: a.NearestHumanDistance,
		RelativeVelocity:     a.RelativeVelocity,
		Visibility:           sim.VisibilityNormal,
		Connectivity:         sim.ConnectivityNormal,
		RiskScore:            a.RiskScore,
	}
	if human != nil {
		id := human.HumanID
		combined := geom.Round(r.Velocity+human.Velocity, 2)
		s.NearestHumanID = &id
		s.CombinedSpeed = &combined
	}
	if zone != nil {
		s.Visibility = zone.Visibility
		s.CongestionLevel = zone.CongestionLevel
		s.Connectivity = zone.Connectivity
	}
	return s
}

func reasonStrings(codes []risk.ReasonCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
