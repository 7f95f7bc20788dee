// Package testutil provides shared telemetry fixtures and assertion helpers
// for the coordination-stage test packages (sim/risk, sim/coord).
package testutil

import (
	"math"
	"testing"

	"github.com/JasonLKelly/cosense-cloud/sim"
)

// TestZone is the zone every fixture lives in unless overridden.
const TestZone sim.ZoneID = "zone-c"

// Float returns a pointer to v, for optional sensor fields.
func Float(v float64) *float64 { return &v }

// Robot returns a valid robot sample at (x, y) in TestZone.
func Robot(id sim.RobotID, x, y float64) sim.RobotTelemetry {
	return sim.RobotTelemetry{
		RobotID:     id,
		ZoneID:      TestZone,
		X:           x,
		Y:           y,
		MotionState: sim.MotionMoving,
	}
}

// Human returns a valid, fully confident human sample at (x, y) in TestZone.
func Human(id sim.HumanID, x, y float64) sim.HumanTelemetry {
	return sim.HumanTelemetry{
		HumanID:            id,
		ZoneID:             TestZone,
		X:                  x,
		Y:                  y,
		PositionConfidence: 1,
	}
}

// Zone returns a valid zone context with normal conditions.
func Zone(congestion float64) sim.ZoneContext {
	return sim.ZoneContext{
		ZoneID:          TestZone,
		Visibility:      sim.VisibilityNormal,
		Connectivity:    sim.ConnectivityNormal,
		CongestionLevel: congestion,
	}
}

// Frame bundles samples into a frame stamped with tick and timestampMs.
func Frame(tick, timestampMs int64, robots []sim.RobotTelemetry, humans []sim.HumanTelemetry, zones []sim.ZoneContext) sim.Frame {
	for i := range robots {
		robots[i].TimestampMs = timestampMs
	}
	for i := range humans {
		humans[i].TimestampMs = timestampMs
	}
	for i := range zones {
		zones[i].TimestampMs = timestampMs
	}
	return sim.Frame{Tick: tick, TimestampMs: timestampMs, Robots: robots, Humans: humans, Zones: zones}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
