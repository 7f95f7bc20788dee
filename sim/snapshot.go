// snapshot.go
//
// Immutable views of the World: per-tick telemetry frames for the
// coordination stage and state snapshots for the control API.

package sim

import (
	"math"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// RobotState is the API view of one robot.
type RobotState struct {
	RobotID         RobotID      `json:"robot_id"`
	ZoneID          ZoneID       `json:"zone_id"`
	Priority        int          `json:"priority"`
	X               float64      `json:"x"`
	Y               float64      `json:"y"`
	Velocity        float64      `json:"velocity"`
	Heading         float64      `json:"heading"`
	MotionState     MotionState  `json:"motion_state"`
	CommandedAction Action       `json:"commanded_action"`
	ManualOverride  bool         `json:"manual_override"`
	Destination     string       `json:"destination,omitempty"`
	Path            []geom.Point `json:"path,omitempty"`
}

// HumanState is the API view of one human.
type HumanState struct {
	HumanID  HumanID  `json:"human_id"`
	ZoneID   ZoneID   `json:"zone_id"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Velocity float64  `json:"velocity"`
	Heading  *float64 `json:"heading,omitempty"`
}

// ZoneState is the API view of one zone.
type ZoneState struct {
	ZoneID          ZoneID       `json:"zone_id"`
	Bounds          geom.Rect    `json:"bounds"`
	Visibility      Visibility   `json:"visibility"`
	Connectivity    Connectivity `json:"connectivity"`
	CongestionLevel float64      `json:"congestion_level"`
	RobotCount      int          `json:"robot_count"`
	HumanCount      int          `json:"human_count"`
}

// WorldState is a point-in-time copy of the whole world.
type WorldState struct {
	SimTime float64      `json:"sim_time"`
	Tick    int64        `json:"tick"`
	Running bool         `json:"running"`
	Seed    int64        `json:"seed"`
	Width   float64      `json:"width"`
	Height  float64      `json:"height"`
	Zones   []ZoneState  `json:"zones"`
	Robots  []RobotState `json:"robots"`
	Humans  []HumanState `json:"humans"`
}

// Robot returns the robot with the given id from the snapshot.
func (s WorldState) Robot(id RobotID) (RobotState, bool) {
	for _, r := range s.Robots {
		if r.RobotID == id {
			return r, true
		}
	}
	return RobotState{}, false
}

func (r *Robot) state() RobotState {
	return RobotState{
		RobotID:         r.ID,
		ZoneID:          r.ZoneID,
		Priority:        r.Priority,
		X:               geom.Round(r.Pos.X, 2),
		Y:               geom.Round(r.Pos.Y, 2),
		Velocity:        geom.Round(r.Velocity, 2),
		Heading:         roundHeading(r.Heading),
		MotionState:     r.MotionState,
		CommandedAction: r.CommandedAction,
		ManualOverride:  r.ManualOverride,
		Destination:     r.Destination,
		Path:            append([]geom.Point(nil), r.Path[min(r.PathIndex, len(r.Path)):]...),
	}
}

// Snapshot copies the current world into a WorldState. Running is left for the caller.
func (w *World) Snapshot() WorldState {
	s := WorldState{
		SimTime: geom.Round(w.simTime, 2),
		Tick:    w.tick,
		Seed:    w.seed,
		Width:   w.bounds.Width,
		Height:  w.bounds.Height,
		Zones:   make([]ZoneState, len(w.zones)),
		Robots:  make([]RobotState, len(w.robots)),
		Humans:  make([]HumanState, len(w.humans)),
	}
	for i, z := range w.zones {
		s.Zones[i] = ZoneState{
			ZoneID:          z.ID,
			Bounds:          z.Bounds,
			Visibility:      z.Visibility,
			Connectivity:    z.Connectivity,
			CongestionLevel: geom.Round(z.Congestion, 2),
			RobotCount:      z.RobotCount,
			HumanCount:      z.HumanCount,
		}
	}
	for i, r := range w.robots {
		s.Robots[i] = r.state()
	}
	for i, h := range w.humans {
		s.Humans[i] = HumanState{
			HumanID:  h.ID,
			ZoneID:   h.ZoneID,
			X:        geom.Round(h.Pos.X, 2),
			Y:        geom.Round(h.Pos.Y, 2),
			Velocity: geom.Round(h.Velocity, 2),
			Heading:  roundHeadingPtr(h.Heading),
		}
	}
	return s
}

// Telemetry renders the current tick as a Frame. Human positions carry
// positioning noise shared by both axes; confidence falls with the error.
func (w *World) Telemetry() Frame {
	ts := w.startMs + int64(math.Round(w.simTime*1000))
	f := Frame{
		Tick:        w.tick,
		TimestampMs: ts,
		Robots:      make([]RobotTelemetry, len(w.robots)),
		Humans:      make([]HumanTelemetry, len(w.humans)),
		Zones:       make([]ZoneContext, len(w.zones)),
	}

	for i, r := range w.robots {
		f.Robots[i] = RobotTelemetry{
			RobotID:            r.ID,
			TimestampMs:        ts,
			ZoneID:             r.ZoneID,
			X:                  geom.Round(r.Pos.X, 2),
			Y:                  geom.Round(r.Pos.Y, 2),
			Velocity:           geom.Round(r.Velocity, 2),
			Heading:            roundHeading(r.Heading),
			MotionState:        r.MotionState,
			UltrasonicDistance: copyFloat(r.Ultrasonic),
			BLERSSI:            copyFloat(r.BLERSSI),
			Destination:        r.Destination,
		}
	}

	rng := w.rng.ForSubsystem(SubsystemTelemetry)
	for i, h := range w.humans {
		noise := rng.NormFloat64() * telemetryPosNoise
		pos := clampToBounds(geom.Point{X: h.Pos.X + noise, Y: h.Pos.Y + noise}, w.bounds)
		f.Humans[i] = HumanTelemetry{
			HumanID:            h.ID,
			TimestampMs:        ts,
			ZoneID:             h.ZoneID,
			X:                  geom.Round(pos.X, 2),
			Y:                  geom.Round(pos.Y, 2),
			Velocity:           geom.Round(h.Velocity, 2),
			Heading:            roundHeadingPtr(h.Heading),
			PositionConfidence: geom.Round(math.Max(0.5, 1-math.Abs(noise)/2), 2),
		}
	}

	for i, z := range w.zones {
		f.Zones[i] = ZoneContext{
			ZoneID:          z.ID,
			TimestampMs:     ts,
			Visibility:      z.Visibility,
			CongestionLevel: geom.Round(z.Congestion, 2),
			RobotCount:      z.RobotCount,
			HumanCount:      z.HumanCount,
			Connectivity:    z.Connectivity,
		}
	}
	return f
}

// roundHeading rounds to 0.1° and keeps the result inside [0, 360).
func roundHeading(h float64) float64 {
	return geom.NormalizeHeading(geom.Round(h, 1))
}

func roundHeadingPtr(h *float64) *float64 {
	if h == nil {
		return nil
	}
	v := roundHeading(*h)
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
