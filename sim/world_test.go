package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
	"github.com/JasonLKelly/cosense-cloud/sim/layout"
)

const testStartMs = int64(1_700_000_000_000)

func newTestWorld(t *testing.T, robots, humans int) *World {
	t.Helper()
	cfg := DefaultWorldConfig()
	cfg.Robots = robots
	cfg.Humans = humans
	cfg.Seed = 42
	cfg.StartTimeMs = testStartMs
	w, err := NewWorld(cfg)
	require.NoError(t, err)
	return w
}

func inBounds(p geom.Point, b geom.Rect) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

func TestWorldConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorldConfig)
		wantErr bool
	}{
		{"default", func(*WorldConfig) {}, false},
		{"too narrow", func(c *WorldConfig) { c.Width = 5 }, true},
		{"negative robots", func(c *WorldConfig) { c.Robots = -1 }, true},
		{"zero buffer", func(c *WorldConfig) { c.RobotBuffer = 0 }, true},
		{"bad zone id", func(c *WorldConfig) { c.ZoneID = "zone c" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWorldConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewWorld_SpawnsAtChargingAndPacking(t *testing.T) {
	// GIVEN a default world with 2 robots and 2 humans
	w := newTestWorld(t, 2, 2)

	// THEN robots start at charging waypoints with creation-order priority
	robots := w.Robots()
	require.Len(t, robots, 2)
	charging1, ok := w.Layout().Waypoint("charging-1")
	require.True(t, ok)
	assert.Equal(t, charging1.Point(), robots[0].Pos)
	assert.Equal(t, RobotID("robot-1"), robots[0].ID)
	assert.Equal(t, 1, robots[0].Priority)
	assert.Equal(t, 2, robots[1].Priority)
	assert.Equal(t, ActionContinue, robots[0].CommandedAction)
	assert.NotEmpty(t, robots[0].Path, "robots are routed on spawn")

	// AND humans start at packing waypoints, which become their home
	humans := w.Humans()
	require.Len(t, humans, 2)
	packing1, ok := w.Layout().Waypoint("packing-1")
	require.True(t, ok)
	assert.Equal(t, packing1.Point(), humans[0].Pos)
	require.NotNil(t, humans[0].Home)
	assert.Equal(t, packing1.Point(), *humans[0].Home)

	// AND every entity belongs to the default zone
	assert.Equal(t, ZoneID("zone-c"), robots[1].ZoneID)
	assert.Equal(t, ZoneID("zone-c"), humans[1].ZoneID)
}

func TestWorld_Stop_DeceleratesMonotonicallyToZero(t *testing.T) {
	// GIVEN a robot moving at full speed
	w := newTestWorld(t, 1, 0)
	r := w.robots[0]
	r.Velocity = RobotMaxSpeed
	r.Heading = 0

	// WHEN STOP is applied
	require.NoError(t, w.ApplyDecision(r.ID, ActionStop))

	// THEN velocity never increases and reaches zero within v/(2a) plus one tick
	const dt = 0.1
	maxTicks := int(math.Ceil(RobotMaxSpeed/(2*RobotAcceleration)/dt)) + 1
	prev := r.Velocity
	ticks := 0
	for r.Velocity > 0 {
		require.LessOrEqual(t, ticks, maxTicks, "robot still moving after %d ticks", ticks)
		w.Tick(dt)
		ticks++
		assert.LessOrEqual(t, r.Velocity, prev)
		prev = r.Velocity
	}
	assert.Equal(t, MotionStopped, r.MotionState)

	// AND it stays stopped
	for i := 0; i < 20; i++ {
		w.Tick(dt)
		assert.Zero(t, r.Velocity)
	}
}

func TestWorld_Slow_CapsVelocity(t *testing.T) {
	// GIVEN a lone robot moving at full speed
	w := newTestWorld(t, 1, 0)
	r := w.robots[0]
	r.Velocity = RobotMaxSpeed

	// WHEN SLOW is applied
	require.NoError(t, w.ApplyDecision(r.ID, ActionSlow))
	w.Tick(0.1)

	// THEN velocity stays at or below the slow cap from then on
	for i := 0; i < 100; i++ {
		w.Tick(0.1)
		assert.LessOrEqual(t, r.Velocity, RobotSlowSpeed+1e-9, "tick %d", i)
	}
}

func TestWorld_Continue_ReachesAboveSlowSpeed(t *testing.T) {
	// GIVEN a lone robot under CONTINUE
	w := newTestWorld(t, 1, 0)

	// WHEN it runs for ten seconds
	peak := 0.0
	for i := 0; i < 100; i++ {
		w.Tick(0.1)
		peak = math.Max(peak, w.robots[0].Velocity)
	}

	// THEN it exceeds the slow cap at some point without exceeding max speed
	assert.Greater(t, peak, RobotSlowSpeed)
	assert.LessOrEqual(t, peak, RobotMaxSpeed)
}

func TestWorld_PositionsStayInBounds(t *testing.T) {
	// GIVEN a busy world where one robot is steered at a target outside the floor
	w := newTestWorld(t, 5, 5)
	w.robots[0].SetPath([]geom.Point{{X: -20, Y: 100}}, "")

	// WHEN it runs for thirty seconds
	for i := 0; i < 300; i++ {
		w.Tick(0.1)

		// THEN every entity stays inside the world rectangle
		for _, r := range w.robots {
			require.True(t, inBounds(r.Pos, w.Bounds()), "robot %s at %+v", r.ID, r.Pos)
			require.GreaterOrEqual(t, r.Velocity, 0.0)
		}
		for _, h := range w.humans {
			require.True(t, inBounds(h.Pos, w.Bounds()), "human %s at %+v", h.ID, h.Pos)
		}
	}
}

func TestWorld_Sensors_Range(t *testing.T) {
	tests := []struct {
		name           string
		distance       float64
		wantUltrasonic bool
		wantBLE        bool
	}{
		{"close human seen by both", 3, true, true},
		{"beyond ultrasonic within BLE", 12, false, true},
		{"beyond both ranges", 40, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a parked robot and a single human at a known distance
			w := newTestWorld(t, 1, 1)
			r := w.robots[0]
			r.Pos = geom.Point{X: 5, Y: 15}
			r.Velocity = 0
			r.CommandedAction = ActionStop
			h := w.humans[0]
			h.Pos = geom.Point{X: 5 + tt.distance, Y: 15}
			h.IdleUntil = 1000

			// WHEN the world ticks
			w.Tick(0.1)

			// THEN readings exist only for humans inside each sensor's range
			assert.Equal(t, tt.wantUltrasonic, r.Ultrasonic != nil)
			assert.Equal(t, tt.wantBLE, r.BLERSSI != nil)
			if r.Ultrasonic != nil {
				assert.GreaterOrEqual(t, *r.Ultrasonic, ultrasonicFloor)
				assert.InDelta(t, tt.distance, *r.Ultrasonic, 1.0)
			}
		})
	}
}

func TestRSSIAt_FallsWithDistance(t *testing.T) {
	assert.InDelta(t, -40.0, rssiAt(1), 1e-9)
	assert.InDelta(t, -60.0, rssiAt(10), 1e-9)
	assert.Greater(t, rssiAt(2), rssiAt(5))
	assert.Equal(t, rssiAt(0.1), rssiAt(0), "distance is floored at 0.1 m")
}

func TestWorld_Congestion_IncreasesWithScale(t *testing.T) {
	// GIVEN a world with 2 robots and 1 human
	w := newTestWorld(t, 2, 1)
	w.Tick(0.1)
	before := w.Zones()[0].Congestion

	// WHEN it scales to 10 robots and 10 humans
	w.AddRobots(8)
	w.AddHumans(9)
	w.Tick(0.1)
	z := w.Zones()[0]

	// THEN congestion strictly increases and stays normalized
	assert.Greater(t, z.Congestion, before)
	assert.LessOrEqual(t, z.Congestion, 1.0)
	assert.Equal(t, 10, z.RobotCount)
	assert.Equal(t, 10, z.HumanCount)
	assert.Equal(t, RobotID("robot-10"), w.robots[9].ID)
	assert.Equal(t, 10, w.robots[9].Priority)
}

func TestZone_UpdateCongestion(t *testing.T) {
	tests := []struct {
		name           string
		area           geom.Rect
		robots, humans int
		want           float64
	}{
		{"reference density maps to half", geom.Rect{Width: 10, Height: 10}, 1, 0, 0.5},
		{"empty zone", geom.Rect{Width: 10, Height: 10}, 0, 0, 0},
		{"saturates at one", geom.Rect{Width: 10, Height: 10}, 5, 5, 1},
		{"degenerate area", geom.Rect{}, 3, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := &Zone{Bounds: tt.area}
			z.UpdateCongestion(tt.robots, tt.humans)
			assert.InDelta(t, tt.want, z.Congestion, 1e-9)
			assert.Equal(t, tt.robots, z.RobotCount)
		})
	}
}

func TestWorld_ManualOverride_TakesPrecedence(t *testing.T) {
	w := newTestWorld(t, 1, 0)

	// GIVEN an operator stop
	st, err := w.SetManualOverride("robot-1", true)
	require.NoError(t, err)
	assert.Equal(t, ActionStop, st.CommandedAction)
	assert.True(t, st.ManualOverride)

	// WHEN an automated decision arrives
	err = w.ApplyDecision("robot-1", ActionContinue)

	// THEN it is rejected and the robot stays stopped
	assert.True(t, errors.Is(err, ErrManualOverride))
	r, _ := w.Robot("robot-1")
	assert.Equal(t, ActionStop, r.CommandedAction)

	// AND once released, decisions apply again
	st, err = w.SetManualOverride("robot-1", false)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, st.CommandedAction)
	assert.False(t, st.ManualOverride)
	require.NoError(t, w.ApplyDecision("robot-1", ActionSlow))
	r, _ = w.Robot("robot-1")
	assert.Equal(t, ActionSlow, r.CommandedAction)
}

func TestWorld_ApplyDecision_Errors(t *testing.T) {
	w := newTestWorld(t, 1, 0)

	err := w.ApplyDecision("robot-99", ActionStop)
	assert.True(t, errors.Is(err, ErrUnknownRobot))

	err = w.ApplyDecision("robot-1", Action("HALT"))
	assert.True(t, errors.Is(err, ErrInvalidAction))

	_, err = w.SetManualOverride("robot-99", true)
	assert.True(t, errors.Is(err, ErrUnknownRobot))
}

func TestWorld_Reroute_ReplansCurrentDestination(t *testing.T) {
	// GIVEN a robot heading to a waypoint
	w := newTestWorld(t, 2, 0)
	r := w.robots[0]
	require.NotEmpty(t, r.Destination)
	dest := r.Destination

	// WHEN REROUTE is applied
	require.NoError(t, w.ApplyDecision(r.ID, ActionReroute))

	// THEN the robot keeps its destination with a fresh path from the current position
	assert.Equal(t, ActionReroute, r.CommandedAction)
	assert.Equal(t, dest, r.Destination)
	assert.NotEmpty(t, r.Path)
	assert.Zero(t, r.PathIndex)
}

func TestWorld_LowerPriorityRobotYields(t *testing.T) {
	tests := []struct {
		name      string
		gap       float64
		wantState MotionState
		maxSpeed  float64
	}{
		{"inside half buffer brakes", 0.5, MotionYielding, RobotMaxSpeed},
		{"inside buffer creeps", 1.0, MotionMoving, RobotYieldSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN robot-2 moving fast right next to robot-1
			w := newTestWorld(t, 2, 0)
			r1, r2 := w.robots[0], w.robots[1]
			r2.Pos = geom.Point{X: r1.Pos.X + tt.gap, Y: r1.Pos.Y}
			r2.Velocity = RobotMaxSpeed
			r2.SetPath([]geom.Point{{X: 25, Y: 15}}, "")

			// WHEN the world ticks
			w.Tick(0.1)

			// THEN robot-2 gives way and robot-1 does not
			assert.Equal(t, tt.wantState, r2.MotionState)
			assert.Less(t, r2.Velocity, RobotMaxSpeed)
			assert.LessOrEqual(t, r2.Velocity, tt.maxSpeed)
			assert.NotEqual(t, MotionYielding, r1.MotionState)
		})
	}
}

func TestWorld_SameSeed_IsDeterministic(t *testing.T) {
	// GIVEN two worlds with the same seed and time origin
	a := newTestWorld(t, 3, 3)
	b := newTestWorld(t, 3, 3)

	// WHEN both run for twenty seconds
	for i := 0; i < 200; i++ {
		a.Tick(0.1)
		b.Tick(0.1)
	}

	// THEN their states and telemetry match exactly
	assert.Equal(t, a.Snapshot(), b.Snapshot())
	assert.Equal(t, a.Telemetry(), b.Telemetry())
}

func TestWorld_Telemetry_ValidAndTimestamped(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	for i := 0; i < 25; i++ {
		w.Tick(0.1)
	}

	f := w.Telemetry()
	assert.Equal(t, int64(25), f.Tick)
	assert.Equal(t, testStartMs+2500, f.TimestampMs)
	require.Len(t, f.Robots, 3)
	require.Len(t, f.Humans, 3)
	require.Len(t, f.Zones, 1)
	for i := range f.Robots {
		assert.NoError(t, f.Robots[i].Validate())
		assert.Equal(t, f.TimestampMs, f.Robots[i].TimestampMs)
	}
	for i := range f.Humans {
		assert.NoError(t, f.Humans[i].Validate())
		assert.GreaterOrEqual(t, f.Humans[i].PositionConfidence, 0.5)
		assert.True(t, inBounds(geom.Point{X: f.Humans[i].X, Y: f.Humans[i].Y}, w.Bounds()))
	}
	assert.NoError(t, f.Zones[0].Validate())
}

func TestWorld_SetConditions(t *testing.T) {
	w := newTestWorld(t, 1, 1)
	poor, offline := VisibilityPoor, ConnectivityOffline

	require.NoError(t, w.SetConditions("", &poor, nil))
	z := w.Zones()[0]
	assert.Equal(t, VisibilityPoor, z.Visibility)
	assert.Equal(t, ConnectivityNormal, z.Connectivity)

	require.NoError(t, w.SetConditions("zone-c", nil, &offline))
	assert.Equal(t, ConnectivityOffline, w.Zones()[0].Connectivity)

	err := w.SetConditions("zone-x", &poor, nil)
	assert.True(t, errors.Is(err, ErrUnknownZone))

	bad := Visibility("FOGGY")
	assert.Error(t, w.SetConditions("", &bad, nil))
}

func TestWorld_Reset_RebuildsWithOverrides(t *testing.T) {
	// GIVEN a world that has run for a while
	w := newTestWorld(t, 2, 2)
	for i := 0; i < 50; i++ {
		w.Tick(0.1)
	}
	degraded := VisibilityDegraded

	// WHEN it is reset with new counts and visibility
	require.NoError(t, w.Reset(ResetParams{Robots: 4, Humans: 1, Visibility: &degraded}))

	// THEN time restarts and the overrides apply
	assert.Zero(t, w.SimTime())
	assert.Zero(t, w.TickCount())
	assert.Equal(t, 4, w.RobotCount())
	assert.Equal(t, 1, w.HumanCount())
	assert.Equal(t, VisibilityDegraded, w.Zones()[0].Visibility)

	// AND zero counts keep the previous configuration
	require.NoError(t, w.Reset(ResetParams{}))
	assert.Equal(t, 4, w.RobotCount())
	assert.Equal(t, VisibilityNormal, w.Zones()[0].Visibility)

	assert.Error(t, w.Reset(ResetParams{Robots: -1}))
}

func TestWorld_Snapshot_HeadingNormalized(t *testing.T) {
	w := newTestWorld(t, 1, 0)
	w.robots[0].Heading = 359.96

	s := w.Snapshot()
	r, ok := s.Robot("robot-1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, r.Heading, 0.0)
	assert.Less(t, r.Heading, 360.0)

	_, ok = s.Robot("robot-9")
	assert.False(t, ok)
}

func TestWorld_ZoneMembershipFollowsPosition(t *testing.T) {
	// GIVEN a map split into two zones with both spawns in zone-a
	cfg := DefaultWorldConfig()
	cfg.Robots, cfg.Humans, cfg.Seed = 1, 1, 3
	cfg.Layout = &layout.Map{
		ID: "split", Width: 40, Height: 20, GridResolution: layout.DefaultGridResolution,
		Waypoints: []layout.Waypoint{
			{ID: "charging-1", X: 5, Y: 10},
			{ID: "packing-1", X: 5, Y: 5},
		},
		Zones: []layout.ZoneArea{
			{ID: "zone-a", Width: 20, Height: 20},
			{ID: "zone-b", X: 20, Width: 20, Height: 20},
		},
	}
	w, err := NewWorld(cfg)
	require.NoError(t, err)
	require.Equal(t, ZoneID("zone-a"), w.robots[0].ZoneID)
	require.Equal(t, ZoneID("zone-a"), w.humans[0].ZoneID)

	// WHEN both entities end up across the boundary
	r := w.robots[0]
	r.clearPath()
	r.Velocity = 0
	r.IdleUntil = math.Inf(1)
	r.Pos = geom.Point{X: 35, Y: 10}
	w.humans[0].Pos = geom.Point{X: 30, Y: 10}
	w.Tick(0.1)

	// THEN telemetry reports the new zone and congestion counts follow
	frame := w.Telemetry()
	assert.Equal(t, ZoneID("zone-b"), frame.Robots[0].ZoneID)
	assert.Equal(t, ZoneID("zone-b"), frame.Humans[0].ZoneID)
	counts := map[ZoneID][2]int{}
	for _, z := range w.Zones() {
		counts[z.ID] = [2]int{z.RobotCount, z.HumanCount}
	}
	assert.Equal(t, [2]int{0, 0}, counts["zone-a"])
	assert.Equal(t, [2]int{1, 1}, counts["zone-b"])
}
