package risk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/geom"
	"github.com/JasonLKelly/cosense-cloud/sim/internal/testutil"
)

var ptr = testutil.Float

func robotAt(x, y float64) sim.RobotTelemetry { return testutil.Robot("robot-1", x, y) }

func humanAt(x, y float64) *sim.HumanTelemetry {
	h := testutil.Human("human-1", x, y)
	return &h
}

func TestAssess_CloseProximityBelowSlowThreshold(t *testing.T) {
	// GIVEN a stationary robot 2.0 m from a stationary human with no BLE reading
	robot := robotAt(10, 10)
	human := humanAt(12, 10)

	// WHEN assessed
	a := Assess(robot, human, nil)

	// THEN only proximity contributes: (3.0-2.0)/(3.0-1.5) × 0.45 ≈ 0.30
	assert.InDelta(t, 0.667, a.Components.Proximity, 0.001)
	assert.InDelta(t, 0.30, a.RiskScore, 0.005)
	assert.Equal(t, sim.ActionContinue, a.Action)
	assert.Equal(t, []ReasonCode{ReasonCloseProximity}, a.ReasonCodes)
	assert.Equal(t, ReasonCloseProximity, a.PrimaryReason)
	require.NotNil(t, a.NearestHumanDistance)
	assert.Equal(t, 2.0, *a.NearestHumanDistance)
	assert.Equal(t, "robot-1 proceeding normally", a.Summary)
}

func TestAssess_AbsentSensorsContributeNothing(t *testing.T) {
	// GIVEN no human in the zone and no sensor readings
	robot := robotAt(10, 10)
	robot.Velocity = 2

	// WHEN assessed
	a := Assess(robot, nil, nil)

	// THEN the score is zero and the only reason is NONE
	assert.Zero(t, a.RiskScore)
	assert.Zero(t, a.Components.SensorDisagreement)
	assert.Zero(t, a.Components.BLE)
	assert.Equal(t, []ReasonCode{ReasonNone}, a.ReasonCodes)
	assert.Equal(t, ReasonNone, a.PrimaryReason)
	assert.Nil(t, a.NearestHumanDistance)
	assert.Nil(t, a.RelativeVelocity)
}

func TestAssess_DisagreementNeedsBothSensors(t *testing.T) {
	tests := []struct {
		name       string
		ultrasonic *float64
		rssi       *float64
		want       float64
	}{
		{"ultrasonic only", ptr(1.0), nil, 0},
		{"BLE only", nil, ptr(-50), 0},
		{"both close", ptr(1.0), ptr(-50), 0},
		{"both far", ptr(8.0), ptr(-80), 0},
		{"ultrasonic close, BLE far", ptr(1.0), ptr(-80), 0.5},
		{"ultrasonic far, BLE close", ptr(8.0), ptr(-50), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robot := robotAt(10, 10)
			robot.UltrasonicDistance = tt.ultrasonic
			robot.BLERSSI = tt.rssi

			a := Assess(robot, nil, nil)
			assert.Equal(t, tt.want, a.Components.SensorDisagreement)
			assert.Equal(t, tt.want > 0, containsCode(a.ReasonCodes, ReasonSensorDisagreement))
		})
	}
}

func TestAssess_BLEComponent(t *testing.T) {
	tests := []struct {
		name string
		rssi float64
		want float64
	}{
		{"at alert threshold", -60, 0},
		{"weak but alerting", -55, 0.75},
		{"mid", -50, 0.5},
		{"at reference", -40, 0},
		{"stronger than reference clamps", -35, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robot := robotAt(10, 10)
			robot.BLERSSI = ptr(tt.rssi)

			a := Assess(robot, nil, nil)
			assert.InDelta(t, tt.want, a.Components.BLE, 1e-9)
			assert.Equal(t, tt.want > 0, containsCode(a.ReasonCodes, ReasonBLEProximity))
		})
	}
}

func TestAssess_ReasonsFollowPolicyOrder(t *testing.T) {
	// GIVEN every component firing at once
	robot := robotAt(10, 10)
	robot.Velocity = 2
	robot.Heading = 0
	robot.UltrasonicDistance = ptr(5.0)
	robot.BLERSSI = ptr(-45)
	human := humanAt(11, 10)
	human.Velocity = 1
	human.Heading = ptr(180)

	// WHEN assessed
	a := Assess(robot, human, nil)

	// THEN codes come out in policy order and the summary names the first two
	assert.Equal(t, []ReasonCode{
		ReasonCloseProximity,
		ReasonHighRelativeSpeed,
		ReasonBLEProximity,
		ReasonSensorDisagreement,
	}, a.ReasonCodes)
	assert.Equal(t, ReasonCloseProximity, a.PrimaryReason)
	assert.Equal(t, sim.ActionStop, a.Action)
	assert.InDelta(t, 0.838, a.RiskScore, 0.001)
	require.NotNil(t, a.RelativeVelocity)
	assert.InDelta(t, 3.0, *a.RelativeVelocity, 1e-9)
	assert.Equal(t, "robot-1 stopping: human within 1.0m and high closing speed", a.Summary)
}

func TestAssess_ActionThresholds(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		speed    float64
		want     sim.Action
		summary  string
	}{
		{"far away", 10, 0, sim.ActionContinue, "robot-1 proceeding normally"},
		{"inside critical radius", 1.0, 0, sim.ActionSlow, "robot-1 slowing: human within 1.0m"},
		{"inside critical radius and closing fast", 1.0, 3.0, sim.ActionStop, "robot-1 stopping: human within 1.0m and high closing speed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robot := robotAt(10, 10)
			robot.Velocity = tt.speed
			a := Assess(robot, humanAt(10+tt.distance, 10), nil)
			assert.Equal(t, tt.want, a.Action)
			assert.Equal(t, tt.summary, a.Summary)
		})
	}
}

func TestAssess_ThresholdUsesUnroundedScore(t *testing.T) {
	// GIVEN a human 1.668m away: proximity 0.888, raw score 0.3996
	a := Assess(robotAt(10, 10), humanAt(11.668, 10), nil)

	// THEN the reported score rounds to the slow threshold
	assert.Equal(t, 0.4, a.RiskScore)

	// AND the action is still chosen from the raw score
	assert.Equal(t, sim.ActionContinue, a.Action)
	assert.Equal(t, "robot-1 proceeding normally", a.Summary)
}

func TestAssess_ScoreClampedForExtremeInputs(t *testing.T) {
	// GIVEN absurd inputs and inflated weights
	cfg := DefaultConfig()
	cfg.Weights = Weights{Proximity: 1, RelativeSpeed: 1, BLE: 1, SensorDisagreement: 1}
	robot := robotAt(10, 10)
	robot.Velocity = 100
	robot.UltrasonicDistance = ptr(50)
	robot.BLERSSI = ptr(-45)

	// WHEN assessed
	a := cfg.Assess(robot, humanAt(10.05, 10), nil)

	// THEN the score is capped at one
	assert.Equal(t, 1.0, a.RiskScore)
	assert.Equal(t, sim.ActionStop, a.Action)
}

func TestAssess_ScoreAlwaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		robot := robotAt(rng.Float64()*50, rng.Float64()*30)
		robot.Velocity = rng.Float64() * 10
		robot.Heading = rng.Float64() * 360
		if rng.Intn(2) == 0 {
			robot.UltrasonicDistance = ptr(rng.Float64() * 10)
		}
		if rng.Intn(2) == 0 {
			robot.BLERSSI = ptr(-100 + rng.Float64()*80)
		}
		var human *sim.HumanTelemetry
		if rng.Intn(4) > 0 {
			human = humanAt(robot.X+rng.NormFloat64()*3, robot.Y+rng.NormFloat64()*3)
			human.Velocity = rng.Float64() * 3
		}

		a := Assess(robot, human, nil)
		require.GreaterOrEqual(t, a.RiskScore, 0.0)
		require.LessOrEqual(t, a.RiskScore, 1.0)
		require.NotEmpty(t, a.ReasonCodes)
		require.Equal(t, a.ReasonCodes[0], a.PrimaryReason)
	}
}

func TestAssess_ZoneFactorsAreInformational(t *testing.T) {
	robot := robotAt(10, 10)
	human := humanAt(12, 10)
	zone := &sim.ZoneContext{
		ZoneID:          "zone-c",
		Visibility:      sim.VisibilityPoor,
		Connectivity:    sim.ConnectivityNormal,
		CongestionLevel: 0.7,
	}

	// GIVEN zone factors disabled (default) they are ignored
	off := Assess(robot, human, zone)
	assert.Equal(t, []ReasonCode{ReasonCloseProximity}, off.ReasonCodes)

	// WHEN enabled they are appended after scored codes without moving the score
	cfg := DefaultConfig()
	cfg.ZoneFactors = true
	on := cfg.Assess(robot, human, zone)
	assert.Equal(t, []ReasonCode{ReasonCloseProximity, ReasonLowVisibility, ReasonHighCongestion}, on.ReasonCodes)
	assert.Equal(t, off.RiskScore, on.RiskScore)
	assert.Equal(t, off.Action, on.Action)

	// AND with nothing else firing, the zone code becomes primary
	alone := cfg.Assess(robotAt(10, 10), nil, zone)
	assert.Equal(t, ReasonLowVisibility, alone.PrimaryReason)
}

func TestClosingSpeed(t *testing.T) {
	origin := geom.Point{X: 0, Y: 0}
	ahead := geom.Point{X: 5, Y: 0}
	tests := []struct {
		name         string
		human        geom.Point
		robotSpeed   float64
		robotHeading float64
		humanSpeed   float64
		humanHeading float64
		want         float64
	}{
		{"robot approaching stationary human", ahead, 2, 0, 0, 0, 2},
		{"both approaching", ahead, 2, 0, 1, 180, 3},
		{"robot moving away", ahead, 2, 180, 0, 0, -2},
		{"perpendicular motion", ahead, 2, 90, 0, 0, 0},
		{"coincident", origin, 2, 0, 1, 180, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClosingSpeed(origin, tt.robotSpeed, tt.robotHeading, tt.human, tt.humanSpeed, tt.humanHeading)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"critical beyond warning", func(c *Config) { c.ProximityCritical = 4 }, true},
		{"stop below slow", func(c *Config) { c.StopThreshold = 0.3 }, true},
		{"zero BLE span", func(c *Config) { c.BLESpan = 0 }, true},
		{"negative weight", func(c *Config) { c.Weights.BLE = -0.1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestReasonPriority_MatchesComponents(t *testing.T) {
	c := Components{Proximity: 0.1, RelativeSpeed: 0.2, BLE: 0.3, SensorDisagreement: 0.4}
	for i, code := range ReasonPriority {
		assert.InDelta(t, 0.1*float64(i+1), c.byReason(code), 1e-9)
	}
	assert.Zero(t, c.byReason(ReasonLowVisibility))
	assert.Zero(t, c.byReason(ReasonNone))
}

func containsCode(codes []ReasonCode, want ReasonCode) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}
