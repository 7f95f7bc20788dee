// telemetry.go
//
// Wire shapes emitted by the World each tick and consumed by the fusion
// store. Validate is called at every ingestion boundary.

package sim

import (
	"fmt"
	"math"
)

// RobotTelemetry is one robot's per-tick report.
type RobotTelemetry struct {
	RobotID            RobotID     `json:"robot_id"`
	TimestampMs        int64       `json:"timestamp_ms"`
	ZoneID             ZoneID      `json:"zone_id"`
	X                  float64     `json:"x"`
	Y                  float64     `json:"y"`
	Velocity           float64     `json:"velocity"`
	Heading            float64     `json:"heading"`
	MotionState        MotionState `json:"motion_state"`
	UltrasonicDistance *float64    `json:"ultrasonic_distance,omitempty"`
	BLERSSI            *float64    `json:"ble_rssi,omitempty"`
	Destination        string      `json:"destination,omitempty"`
}

// Validate rejects telemetry that would corrupt fusion or risk scoring.
func (t *RobotTelemetry) Validate() error {
	if err := t.RobotID.Validate(); err != nil {
		return err
	}
	if err := t.ZoneID.Validate(); err != nil {
		return fmt.Errorf("robot %s: %w", t.RobotID, err)
	}
	if err := finite(t.X, t.Y, t.Velocity, t.Heading); err != nil {
		return fmt.Errorf("robot %s: %w", t.RobotID, err)
	}
	if t.Velocity < 0 {
		return fmt.Errorf("robot %s: negative velocity %g", t.RobotID, t.Velocity)
	}
	if t.Heading < 0 || t.Heading >= 360 {
		return fmt.Errorf("robot %s: heading %g outside [0,360)", t.RobotID, t.Heading)
	}
	if !t.MotionState.Valid() {
		return fmt.Errorf("robot %s: unknown motion_state %q", t.RobotID, t.MotionState)
	}
	if t.UltrasonicDistance != nil {
		if err := finite(*t.UltrasonicDistance); err != nil || *t.UltrasonicDistance < 0 {
			return fmt.Errorf("robot %s: invalid ultrasonic_distance", t.RobotID)
		}
	}
	if t.BLERSSI != nil {
		if err := finite(*t.BLERSSI); err != nil {
			return fmt.Errorf("robot %s: invalid ble_rssi", t.RobotID)
		}
	}
	return nil
}

// HumanTelemetry is one human's per-tick report. Position carries sensor noise.
type HumanTelemetry struct {
	HumanID            HumanID  `json:"human_id"`
	TimestampMs        int64    `json:"timestamp_ms"`
	ZoneID             ZoneID   `json:"zone_id"`
	X                  float64  `json:"x"`
	Y                  float64  `json:"y"`
	Velocity           float64  `json:"velocity"`
	Heading            *float64 `json:"heading,omitempty"`
	PositionConfidence float64  `json:"position_confidence"`
}

// Validate rejects telemetry that would corrupt fusion or risk scoring.
func (t *HumanTelemetry) Validate() error {
	if err := t.HumanID.Validate(); err != nil {
		return err
	}
	if err := t.ZoneID.Validate(); err != nil {
		return fmt.Errorf("human %s: %w", t.HumanID, err)
	}
	if err := finite(t.X, t.Y, t.Velocity, t.PositionConfidence); err != nil {
		return fmt.Errorf("human %s: %w", t.HumanID, err)
	}
	if t.Velocity < 0 {
		return fmt.Errorf("human %s: negative velocity %g", t.HumanID, t.Velocity)
	}
	if t.Heading != nil && (math.IsNaN(*t.Heading) || *t.Heading < 0 || *t.Heading >= 360) {
		return fmt.Errorf("human %s: heading outside [0,360)", t.HumanID)
	}
	if t.PositionConfidence < 0 || t.PositionConfidence > 1 {
		return fmt.Errorf("human %s: position_confidence %g outside [0,1]", t.HumanID, t.PositionConfidence)
	}
	return nil
}

// ZoneContext is one zone's per-tick environmental report.
type ZoneContext struct {
	ZoneID          ZoneID       `json:"zone_id"`
	TimestampMs     int64        `json:"timestamp_ms"`
	Visibility      Visibility   `json:"visibility"`
	CongestionLevel float64      `json:"congestion_level"`
	RobotCount      int          `json:"robot_count"`
	HumanCount      int          `json:"human_count"`
	Connectivity    Connectivity `json:"connectivity"`
}

// Validate rejects malformed zone context.
func (z *ZoneContext) Validate() error {
	if err := z.ZoneID.Validate(); err != nil {
		return err
	}
	if !z.Visibility.Valid() {
		return fmt.Errorf("zone %s: unknown visibility %q", z.ZoneID, z.Visibility)
	}
	if !z.Connectivity.Valid() {
		return fmt.Errorf("zone %s: unknown connectivity %q", z.ZoneID, z.Connectivity)
	}
	if math.IsNaN(z.CongestionLevel) || z.CongestionLevel < 0 || z.CongestionLevel > 1 {
		return fmt.Errorf("zone %s: congestion_level %g outside [0,1]", z.ZoneID, z.CongestionLevel)
	}
	if z.RobotCount < 0 || z.HumanCount < 0 {
		return fmt.Errorf("zone %s: negative entity count", z.ZoneID)
	}
	return nil
}

// Frame is one tick's worth of telemetry, in emission order.
type Frame struct {
	Tick        int64            `json:"tick"`
	TimestampMs int64            `json:"timestamp_ms"`
	Robots      []RobotTelemetry `json:"robots"`
	Humans      []HumanTelemetry `json:"humans"`
	Zones       []ZoneContext    `json:"zones"`
}

func finite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value %v", v)
		}
	}
	return nil
}
