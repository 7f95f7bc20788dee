// Package geom holds the planar geometry shared by the world, the pathfinder
// and the risk engine. All coordinates are meters in the warehouse frame;
// headings are degrees in [0, 360).
package geom

import "math"

// Point is a position in world coordinates (meters).
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Rect is an axis-aligned rectangle anchored at its minimum corner.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Area returns the rectangle's area in square meters.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies inside r (min edges inclusive, max edges exclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// HeadingTo returns the heading in degrees [0, 360) from a toward b.
func HeadingTo(a, b Point) float64 {
	return NormalizeHeading(math.Atan2(b.Y-a.Y, b.X-a.X) * 180 / math.Pi)
}

// NormalizeHeading wraps deg into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	// math.Mod can return 360 for tiny negative inputs after the correction above
	if h >= 360 {
		h = 0
	}
	return h
}

// VelocityComponents converts a speed and heading into (vx, vy).
func VelocityComponents(speed, headingDeg float64) (float64, float64) {
	rad := headingDeg * math.Pi / 180
	return speed * math.Cos(rad), speed * math.Sin(rad)
}

// Clamp bounds v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
