// robot.go
//
// Defines the Robot entity and its per-tick kinematic state machine:
// commanded-action speed caps, idle pauses, path following and
// priority-based yielding to nearby robots.

package sim

import (
	"math"
	"math/rand"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// Robot motion parameters.
const (
	RobotMaxSpeed     = 2.0 // m/s
	RobotAcceleration = 1.0 // m/s²
	RobotSlowSpeed    = 0.5 // m/s cap under SLOW
	RobotYieldSpeed   = 0.3 // m/s cap while yielding outside half the buffer
	WaypointTolerance = 0.5 // m
	movingThreshold   = 0.1 // m/s below which a robot reports stopped
	minPauseSeconds   = 1.0
	maxPauseSeconds   = 10.0
)

// Robot is a simulated warehouse robot. Mutated only by the owning World.
type Robot struct {
	ID              RobotID
	Priority        int // lower value has right-of-way
	ZoneID          ZoneID
	Pos             geom.Point
	Velocity        float64 // m/s, ≥ 0
	Heading         float64 // degrees, [0, 360)
	MotionState     MotionState
	Path            []geom.Point
	PathIndex       int
	Destination     string // waypoint id, empty for a random target
	CommandedAction Action
	ManualOverride  bool
	Ultrasonic      *float64 // m, nil when no human within range
	BLERSSI         *float64 // dBm, nil when no human within range
	IdleUntil       float64  // sim seconds
}

// neighbour is the pre-tick view of another robot used for yielding.
type neighbour struct {
	id       RobotID
	priority int
	pos      geom.Point
}

// SetPath replaces the robot's path and destination.
func (r *Robot) SetPath(path []geom.Point, destination string) {
	r.Path = path
	r.PathIndex = 0
	r.Destination = destination
}

// clearPath drops the path and destination.
func (r *Robot) clearPath() {
	r.Path = nil
	r.PathIndex = 0
	r.Destination = ""
}

// target returns the current waypoint, if any.
func (r *Robot) target() (geom.Point, bool) {
	if r.PathIndex < len(r.Path) {
		return r.Path[r.PathIndex], true
	}
	return geom.Point{}, false
}

// speedCap returns the maximum speed implied by the commanded action.
func (r *Robot) speedCap() float64 {
	if r.CommandedAction == ActionSlow {
		return RobotSlowSpeed
	}
	return RobotMaxSpeed
}

// update advances the robot by dt seconds. neighbours is the snapshot of every
// robot taken at the start of the tick, so update order does not matter.
func (r *Robot) update(dt, simTime float64, bounds geom.Rect, rng *rand.Rand, neighbours []neighbour, buffer float64) {
	if r.CommandedAction == ActionStop {
		r.brake(dt, bounds)
		if r.Velocity == 0 {
			r.MotionState = MotionStopped
		} else {
			r.MotionState = MotionSlowing
		}
		return
	}

	maxSpeed := r.speedCap()

	if simTime < r.IdleUntil {
		r.Velocity = 0
		r.MotionState = MotionStopped
		return
	}

	target, ok := r.target()
	if !ok {
		r.Velocity = 0
		r.MotionState = MotionStopped
		return
	}

	mustYield := false
	nearest := math.Inf(1)
	for _, n := range neighbours {
		if n.id == r.ID || n.priority >= r.Priority {
			continue
		}
		if d := geom.Distance(r.Pos, n.pos); d < buffer {
			mustYield = true
			nearest = math.Min(nearest, d)
		}
	}
	if mustYield {
		if nearest < buffer*0.5 {
			r.brake(dt, bounds)
			r.MotionState = MotionYielding
			return
		}
		maxSpeed = math.Min(maxSpeed, RobotYieldSpeed)
	}

	dist := geom.Distance(r.Pos, target)
	if dist < WaypointTolerance {
		if r.PathIndex < len(r.Path)-1 {
			r.PathIndex++
		} else {
			r.IdleUntil = simTime + minPauseSeconds + rng.Float64()*(maxPauseSeconds-minPauseSeconds)
			r.clearPath()
		}
		return
	}

	r.Heading = geom.HeadingTo(r.Pos, target)
	if r.Velocity < maxSpeed {
		r.Velocity = math.Min(maxSpeed, r.Velocity+RobotAcceleration*dt)
	} else {
		r.Velocity = maxSpeed
	}
	if r.Velocity > movingThreshold {
		r.MotionState = MotionMoving
	} else {
		r.MotionState = MotionStopped
	}

	step := math.Min(r.Velocity*dt, dist)
	r.Pos = clampToBounds(geom.Point{
		X: r.Pos.X + (target.X-r.Pos.X)/dist*step,
		Y: r.Pos.Y + (target.Y-r.Pos.Y)/dist*step,
	}, bounds)
}

// brake decelerates at twice the nominal rate and coasts along the current heading.
func (r *Robot) brake(dt float64, bounds geom.Rect) {
	r.Velocity = math.Max(0, r.Velocity-2*RobotAcceleration*dt)
	if r.Velocity == 0 {
		return
	}
	vx, vy := geom.VelocityComponents(r.Velocity, r.Heading)
	r.Pos = clampToBounds(geom.Point{X: r.Pos.X + vx*dt, Y: r.Pos.Y + vy*dt}, bounds)
}

// clampToBounds keeps p inside the closed world rectangle.
func clampToBounds(p geom.Point, bounds geom.Rect) geom.Point {
	return geom.Point{
		X: geom.Clamp(p.X, bounds.X, bounds.X+bounds.Width),
		Y: geom.Clamp(p.Y, bounds.Y, bounds.Y+bounds.Height),
	}
}
