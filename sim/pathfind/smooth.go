package pathfind

import "github.com/JasonLKelly/cosense-cloud/sim/geom"

// smooth drops intermediate waypoints while a straight grid walk stays clear,
// always keeping the furthest visible waypoint.
func (s search) smooth(path []geom.Point) []geom.Point {
	if len(path) <= 2 {
		return path
	}
	out := []geom.Point{path[0]}
	i := 0
	for i < len(path)-1 {
		j := len(path) - 1
		for j > i+1 {
			if s.lineOfSight(path[i], path[j]) {
				break
			}
			j--
		}
		out = append(out, path[j])
		i = j
	}
	return out
}

// LineOfSight reports whether every cell on the Bresenham walk from a to b is walkable.
func (p *Pathfinder) LineOfSight(a, b geom.Point) bool {
	return search{p: p, self: Cell{-1, -1}}.lineOfSight(a, b)
}

func (s search) lineOfSight(a, b geom.Point) bool {
	c0 := s.p.grid.ToCell(a)
	c1 := s.p.grid.ToCell(b)

	dx := abs(c1.X - c0.X)
	dy := abs(c1.Y - c0.Y)
	sx, sy := 1, 1
	if c0.X >= c1.X {
		sx = -1
	}
	if c0.Y >= c1.Y {
		sy = -1
	}
	err := dx - dy

	x, y := c0.X, c0.Y
	for {
		if !s.walkable(Cell{x, y}) {
			return false
		}
		if x == c1.X && y == c1.Y {
			return true
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}
