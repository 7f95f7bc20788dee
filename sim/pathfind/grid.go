// Package pathfind implements grid-based A* search with dynamic-obstacle
// awareness and line-of-sight path smoothing. It has no dependencies on the
// rest of the simulator beyond plain geometry.
package pathfind

import (
	"math"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// Cell is a grid cell coordinate.
type Cell struct {
	X int
	Y int
}

// Grid is the static occupancy grid built once from the warehouse layout.
type Grid struct {
	Width      int     // cells along x
	Height     int     // cells along y
	Resolution float64 // meters per cell
	blocked    []bool  // row-major static occupancy
}

// NewGrid creates an empty grid covering widthM × heightM meters.
// A non-positive resolution falls back to 0.5 m per cell.
func NewGrid(widthM, heightM, resolution float64) *Grid {
	if resolution <= 0 {
		resolution = 0.5
	}
	w := int(widthM / resolution)
	h := int(heightM / resolution)
	return &Grid{
		Width:      w,
		Height:     h,
		Resolution: resolution,
		blocked:    make([]bool, w*h),
	}
}

// BlockRect marks every cell covered by r as a static obstacle.
// Cells outside the grid are ignored.
func (g *Grid) BlockRect(r geom.Rect) {
	x1 := int(r.X / g.Resolution)
	y1 := int(r.Y / g.Resolution)
	x2 := int((r.X + r.Width) / g.Resolution)
	y2 := int((r.Y + r.Height) / g.Resolution)
	for x := max(0, x1); x < min(g.Width, x2); x++ {
		for y := max(0, y1); y < min(g.Height, y2); y++ {
			g.blocked[y*g.Width+x] = true
		}
	}
}

// BlockCell marks a single cell as a static obstacle.
func (g *Grid) BlockCell(c Cell) {
	if g.InBounds(c) {
		g.blocked[c.Y*g.Width+c.X] = true
	}
}

// InBounds reports whether c lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.Width && c.Y >= 0 && c.Y < g.Height
}

// Blocked reports whether c is outside the grid or statically blocked.
func (g *Grid) Blocked(c Cell) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.blocked[c.Y*g.Width+c.X]
}

// ToCell converts a world position to the cell that contains it.
func (g *Grid) ToCell(p geom.Point) Cell {
	return Cell{
		X: int(math.Floor(p.X / g.Resolution)),
		Y: int(math.Floor(p.Y / g.Resolution)),
	}
}

// ToWorld returns the world position of the center of c.
func (g *Grid) ToWorld(c Cell) geom.Point {
	return geom.Point{
		X: (float64(c.X) + 0.5) * g.Resolution,
		Y: (float64(c.Y) + 0.5) * g.Resolution,
	}
}
