// Package risk scores how dangerous a robot's situation is and picks the
// coordination action. Assess is a pure function of one robot sample, its
// nearest human and its zone.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// ReasonCode names a factor behind a decision.
type ReasonCode string

const (
	ReasonNone               ReasonCode = "NONE"
	ReasonCloseProximity     ReasonCode = "CLOSE_PROXIMITY"
	ReasonHighRelativeSpeed  ReasonCode = "HIGH_RELATIVE_SPEED"
	ReasonBLEProximity       ReasonCode = "BLE_PROXIMITY_DETECTED"
	ReasonSensorDisagreement ReasonCode = "SENSOR_DISAGREEMENT"
	ReasonLowVisibility      ReasonCode = "LOW_VISIBILITY"
	ReasonHighCongestion     ReasonCode = "HIGH_CONGESTION"
)

// ReasonPriority is the policy order of scored reasons. Codes are emitted in
// this order and the first one present is the primary reason.
var ReasonPriority = [...]ReasonCode{
	ReasonCloseProximity,
	ReasonHighRelativeSpeed,
	ReasonBLEProximity,
	ReasonSensorDisagreement,
}

// minProjectionDistance is the separation below which closing speed is undefined.
const minProjectionDistance = 0.01

// Components are the normalized inputs to the score, each in [0, 1].
type Components struct {
	Proximity          float64 `json:"proximity"`
	RelativeSpeed      float64 `json:"relative_speed"`
	BLE                float64 `json:"ble"`
	SensorDisagreement float64 `json:"sensor_disagreement"`
}

// byReason returns the component value behind a scored reason code.
func (c Components) byReason(code ReasonCode) float64 {
	switch code {
	case ReasonCloseProximity:
		return c.Proximity
	case ReasonHighRelativeSpeed:
		return c.RelativeSpeed
	case ReasonBLEProximity:
		return c.BLE
	case ReasonSensorDisagreement:
		return c.SensorDisagreement
	}
	return 0
}

// Assessment is the outcome of scoring one robot sample.
type Assessment struct {
	RobotID              sim.RobotID  `json:"robot_id"`
	RiskScore            float64      `json:"risk_score"`
	Action               sim.Action   `json:"action"`
	ReasonCodes          []ReasonCode `json:"reason_codes"`
	PrimaryReason        ReasonCode   `json:"primary_reason"`
	NearestHumanDistance *float64     `json:"nearest_human_distance,omitempty"`
	RelativeVelocity     *float64     `json:"relative_velocity,omitempty"`
	Summary              string       `json:"summary"`
	Components           Components   `json:"components"`
}

// Assess scores robot against the default configuration.
func Assess(robot sim.RobotTelemetry, human *sim.HumanTelemetry, zone *sim.ZoneContext) Assessment {
	return DefaultConfig().Assess(robot, human, zone)
}

// Assess scores robot against its nearest human (nil when none shares the
// zone) and its zone context (nil when unknown). Absent sensor readings
// contribute nothing.
func (c Config) Assess(robot sim.RobotTelemetry, human *sim.HumanTelemetry, zone *sim.ZoneContext) Assessment {
	a := Assessment{RobotID: robot.RobotID}
	var comp Components
	var distance float64

	if human != nil {
		robotPos := geom.Point{X: robot.X, Y: robot.Y}
		humanPos := geom.Point{X: human.X, Y: human.Y}
		distance = geom.Distance(robotPos, humanPos)
		comp.Proximity = c.proximity(distance)

		closing := ClosingSpeed(robotPos, robot.Velocity, robot.Heading, humanPos, human.Velocity, headingOrZero(human.Heading))
		if closing > c.SpeedWarning {
			comp.RelativeSpeed = math.Min(1, closing/c.SpeedSaturation)
		}
		d, v := geom.Round(distance, 2), geom.Round(closing, 2)
		a.NearestHumanDistance = &d
		a.RelativeVelocity = &v
	}

	if robot.BLERSSI != nil && *robot.BLERSSI > c.BLEAlertRSSI {
		comp.BLE = geom.Clamp((c.BLEReferenceRSSI-*robot.BLERSSI)/c.BLESpan, 0, 1)
	}

	if robot.UltrasonicDistance != nil && robot.BLERSSI != nil {
		ultrasonicClose := *robot.UltrasonicDistance < c.ProximityWarning
		bleClose := *robot.BLERSSI > c.DisagreementRSSI
		if ultrasonicClose != bleClose {
			comp.SensorDisagreement = c.DisagreementLevel
		}
	}

	score := comp.Proximity*c.Weights.Proximity +
		comp.RelativeSpeed*c.Weights.RelativeSpeed +
		comp.BLE*c.Weights.BLE +
		comp.SensorDisagreement*c.Weights.SensorDisagreement
	score = geom.Clamp(score, 0, 1)
	a.RiskScore = geom.Round(score, 3)
	a.Components = comp

	// Thresholds compare the unrounded score.
	switch {
	case score >= c.StopThreshold:
		a.Action = sim.ActionStop
	case score >= c.SlowThreshold:
		a.Action = sim.ActionSlow
	default:
		a.Action = sim.ActionContinue
	}

	for _, code := range ReasonPriority {
		if comp.byReason(code) > 0 {
			a.ReasonCodes = append(a.ReasonCodes, code)
		}
	}
	if c.ZoneFactors && zone != nil {
		if zone.Visibility == sim.VisibilityPoor {
			a.ReasonCodes = append(a.ReasonCodes, ReasonLowVisibility)
		}
		if zone.CongestionLevel >= c.CongestionWarning {
			a.ReasonCodes = append(a.ReasonCodes, ReasonHighCongestion)
		}
	}
	if len(a.ReasonCodes) == 0 {
		a.ReasonCodes = []ReasonCode{ReasonNone}
	}
	a.PrimaryReason = a.ReasonCodes[0]
	a.Summary = summarize(robot.RobotID, a.Action, a.ReasonCodes, a.NearestHumanDistance)
	return a
}

// proximity maps a distance onto [0, 1]: 1 inside the critical radius, 0 at
// or beyond the warning radius, linear between.
func (c Config) proximity(d float64) float64 {
	switch {
	case d < c.ProximityCritical:
		return 1
	case d < c.ProximityWarning:
		return (c.ProximityWarning - d) / (c.ProximityWarning - c.ProximityCritical)
	}
	return 0
}

// ClosingSpeed projects the robot's velocity relative to the human onto the
// robot→human unit vector. Positive means the pair is converging.
func ClosingSpeed(robot geom.Point, robotSpeed, robotHeading float64, human geom.Point, humanSpeed, humanHeading float64) float64 {
	dx, dy := human.X-robot.X, human.Y-robot.Y
	dist := math.Hypot(dx, dy)
	if dist < minProjectionDistance {
		return 0
	}
	rvx, rvy := geom.VelocityComponents(robotSpeed, robotHeading)
	hvx, hvy := geom.VelocityComponents(humanSpeed, humanHeading)
	return ((rvx-hvx)*dx + (rvy-hvy)*dy) / dist
}

func headingOrZero(h *float64) float64 {
	if h == nil {
		return 0
	}
	return *h
}

var actionVerbs = map[sim.Action]string{
	sim.ActionSlow:    "slowing",
	sim.ActionStop:    "stopping",
	sim.ActionReroute: "rerouting",
}

// summarize renders the one-line operator summary from at most two reasons.
func summarize(robot sim.RobotID, action sim.Action, codes []ReasonCode, distance *float64) string {
	if action == sim.ActionContinue {
		return fmt.Sprintf("%s proceeding normally", robot)
	}
	var reasons []string
	for _, code := range codes[:min(2, len(codes))] {
		switch code {
		case ReasonCloseProximity:
			if distance != nil {
				reasons = append(reasons, fmt.Sprintf("human within %.1fm", *distance))
			} else {
				reasons = append(reasons, "human nearby")
			}
		case ReasonHighRelativeSpeed:
			reasons = append(reasons, "high closing speed")
		case ReasonBLEProximity:
			reasons = append(reasons, "BLE proximity alert")
		case ReasonSensorDisagreement:
			reasons = append(reasons, "sensor readings conflict")
		case ReasonLowVisibility:
			reasons = append(reasons, "low visibility")
		case ReasonHighCongestion:
			reasons = append(reasons, "high congestion")
		}
	}
	reason := "precautionary"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, " and ")
	}
	return fmt.Sprintf("%s %s: %s", robot, actionVerbs[action], reason)
}
