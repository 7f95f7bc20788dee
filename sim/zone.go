package sim

import (
	"math"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// Congestion normalization: this density (entities/m²) maps to 0.5.
const (
	congestionReferenceDensity = 0.01
	congestionReferenceLevel   = 0.5
)

// Zone is a bounded area with its own environmental state.
type Zone struct {
	ID           ZoneID
	Bounds       geom.Rect
	Visibility   Visibility
	Connectivity Connectivity
	Congestion   float64 // [0, 1]
	RobotCount   int
	HumanCount   int
}

// UpdateCongestion recomputes entity counts and the normalized congestion level.
func (z *Zone) UpdateCongestion(robots, humans int) {
	z.RobotCount = robots
	z.HumanCount = humans
	area := z.Bounds.Area()
	if area <= 0 {
		z.Congestion = 0
		return
	}
	density := float64(robots+humans) / area
	z.Congestion = math.Min(1, density/congestionReferenceDensity*congestionReferenceLevel)
}
