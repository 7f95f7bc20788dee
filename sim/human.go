// human.go
//
// Defines the Human entity: a wandering worker biased toward a home anchor,
// with random idle periods and smoothed walking speed.

package sim

import (
	"math"
	"math/rand"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// Human motion parameters.
const (
	HumanMaxSpeed       = 1.5   // m/s walking speed
	humanMinSpeed       = 0.5   // m/s lower bound of the sampled target speed
	humanIdleChance     = 0.002 // per tick
	humanArrivalIdle    = 0.3   // chance of pausing on arrival
	humanHomeBias       = 0.7   // chance a new target stays near home
	humanHomeSpread     = 3.0   // m, σ of the home offset
	humanTargetMargin   = 2.0   // m from each wall
	humanSpeedSmoothing = 0.9   // EMA weight on the previous velocity
)

// Human is a simulated worker. Humans are observed, never commanded.
type Human struct {
	ID        HumanID
	ZoneID    ZoneID
	Pos       geom.Point
	Velocity  float64
	Heading   *float64 // nil until the human first moves
	Home      *geom.Point
	Target    *geom.Point
	IdleUntil float64
}

// pickTarget chooses the next wander target: near home most of the time,
// otherwise anywhere inside the margin.
func (h *Human) pickTarget(bounds geom.Rect, rng *rand.Rand) {
	minX, maxX := bounds.X+humanTargetMargin, bounds.X+bounds.Width-humanTargetMargin
	minY, maxY := bounds.Y+humanTargetMargin, bounds.Y+bounds.Height-humanTargetMargin

	if h.Home != nil && rng.Float64() < humanHomeBias {
		h.Target = &geom.Point{
			X: geom.Clamp(h.Home.X+rng.NormFloat64()*humanHomeSpread, minX, maxX),
			Y: geom.Clamp(h.Home.Y+rng.NormFloat64()*humanHomeSpread, minY, maxY),
		}
		return
	}
	h.Target = &geom.Point{
		X: minX + rng.Float64()*(maxX-minX),
		Y: minY + rng.Float64()*(maxY-minY),
	}
}

func (h *Human) update(dt, simTime float64, bounds geom.Rect, rng *rand.Rand) {
	if simTime < h.IdleUntil {
		h.Velocity = 0
		return
	}
	if rng.Float64() < humanIdleChance {
		h.IdleUntil = simTime + 2 + rng.Float64()*6
		h.Velocity = 0
		return
	}
	if h.Target == nil {
		h.pickTarget(bounds, rng)
	}

	target := *h.Target
	dist := geom.Distance(h.Pos, target)
	if dist < WaypointTolerance {
		h.pickTarget(bounds, rng)
		if rng.Float64() < humanArrivalIdle {
			h.IdleUntil = simTime + 1 + rng.Float64()*4
		}
		return
	}

	heading := geom.HeadingTo(h.Pos, target)
	h.Heading = &heading
	want := humanMinSpeed + rng.Float64()*(HumanMaxSpeed-humanMinSpeed)
	h.Velocity = h.Velocity*humanSpeedSmoothing + want*(1-humanSpeedSmoothing)

	step := math.Min(h.Velocity*dt, dist)
	h.Pos = clampToBounds(geom.Point{
		X: h.Pos.X + (target.X-h.Pos.X)/dist*step,
		Y: h.Pos.Y + (target.Y-h.Pos.Y)/dist*step,
	}, bounds)
}
