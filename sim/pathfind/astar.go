package pathfind

import (
	"container/heap"
	"math"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// maxSnapRing bounds the ring search used to replace a blocked start or goal.
const maxSnapRing = 10

// direction is one of the eight neighbour moves and its cost in cells.
type direction struct {
	dx, dy int
	cost   float64
}

var directions = [8]direction{
	{0, -1, 1}, {1, 0, 1}, {0, 1, 1}, {-1, 0, 1},
	{1, -1, math.Sqrt2}, {1, 1, math.Sqrt2}, {-1, 1, math.Sqrt2}, {-1, -1, math.Sqrt2},
}

// node is a cell visited during one search. Discarded after reconstruction.
type node struct {
	cell   Cell
	g      float64 // cost from start
	h      float64 // heuristic to goal
	parent *node
	seq    uint64 // insertion order, breaks f ties
	index  int    // position in the open set, -1 when not queued
	closed bool
}

func (n *node) f() float64 { return n.g + n.h }

// openSet implements heap.Interface ordered by f, then insertion order.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type openSet []*node

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f() != o[j].f() {
		return o[i].f() < o[j].f()
	}
	return o[i].seq < o[j].seq
}
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}

func (o *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*o)
	*o = append(*o, n)
}

func (o *openSet) Pop() any {
	old := *o
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*o = old[:last]
	return n
}

// Pathfinder runs A* over a static Grid plus a per-tick set of dynamic obstacles.
//
// Thread-safety: NOT thread-safe. Owned by the World's tick goroutine.
type Pathfinder struct {
	grid    *Grid
	dynamic map[Cell]struct{}
}

// New creates a Pathfinder over grid with no dynamic obstacles.
func New(grid *Grid) *Pathfinder {
	return &Pathfinder{
		grid:    grid,
		dynamic: make(map[Cell]struct{}),
	}
}

// Grid returns the static grid.
func (p *Pathfinder) Grid() *Grid {
	return p.grid
}

// SetDynamicObstacles replaces the dynamic obstacle set (other robots' cells).
func (p *Pathfinder) SetDynamicObstacles(cells []Cell) {
	clear(p.dynamic)
	for _, c := range cells {
		p.dynamic[c] = struct{}{}
	}
}

// Walkable reports whether c is inside the grid and neither statically nor dynamically blocked.
func (p *Pathfinder) Walkable(c Cell) bool {
	if p.grid.Blocked(c) {
		return false
	}
	_, occupied := p.dynamic[c]
	return !occupied
}

// WorldToGrid converts world coordinates to a grid cell.
func (p *Pathfinder) WorldToGrid(pt geom.Point) Cell {
	return p.grid.ToCell(pt)
}

// GridToWorld converts a grid cell to the world coordinates of its center.
func (p *Pathfinder) GridToWorld(c Cell) geom.Point {
	return p.grid.ToWorld(c)
}

// search holds the per-call view of walkability. The requester's own cell is
// exempt from dynamic blocking since the requester is what occupies it.
type search struct {
	p    *Pathfinder
	self Cell
}

func (s search) walkable(c Cell) bool {
	if c == s.self {
		return !s.p.grid.Blocked(c)
	}
	return s.p.Walkable(c)
}

// FindPath returns a smoothed sequence of world waypoints from start to goal,
// or nil when the goal is unreachable. A blocked start or goal is replaced by the
// nearest walkable cell within maxSnapRing rings.
func (p *Pathfinder) FindPath(start, goal geom.Point) []geom.Point {
	s := search{p: p, self: p.grid.ToCell(start)}

	sc, ok := s.snap(s.self)
	if !ok {
		return nil
	}
	gc, ok := s.snap(p.grid.ToCell(goal))
	if !ok {
		return nil
	}

	end := s.astar(sc, gc)
	if end == nil {
		return nil
	}
	return s.smooth(p.reconstruct(end))
}

func (s search) snap(c Cell) (Cell, bool) {
	if s.walkable(c) {
		return c, true
	}
	for dist := 1; dist <= maxSnapRing; dist++ {
		for dx := -dist; dx <= dist; dx++ {
			for dy := -dist; dy <= dist; dy++ {
				if abs(dx) != dist && abs(dy) != dist {
					continue
				}
				n := Cell{c.X + dx, c.Y + dy}
				if s.walkable(n) {
					return n, true
				}
			}
		}
	}
	return Cell{}, false
}

func (s search) astar(start, goal Cell) *node {
	heuristic := func(c Cell) float64 {
		return math.Hypot(float64(goal.X-c.X), float64(goal.Y-c.Y))
	}

	var seq uint64
	nodes := map[Cell]*node{}
	first := &node{cell: start, g: 0, h: heuristic(start), index: -1}
	nodes[start] = first
	open := openSet{}
	heap.Push(&open, first)

	for open.Len() > 0 {
		cur := heap.Pop(&open).(*node)
		if cur.cell == goal {
			return cur
		}
		cur.closed = true

		for _, d := range directions {
			nc := Cell{cur.cell.X + d.dx, cur.cell.Y + d.dy}
			if !s.walkable(nc) {
				continue
			}
			nb := nodes[nc]
			if nb != nil && nb.closed {
				continue
			}
			// diagonal may not squeeze between two blocked orthogonal cells
			if d.dx != 0 && d.dy != 0 &&
				!s.walkable(Cell{cur.cell.X + d.dx, cur.cell.Y}) &&
				!s.walkable(Cell{cur.cell.X, cur.cell.Y + d.dy}) {
				continue
			}

			g := cur.g + d.cost
			if nb == nil {
				nb = &node{cell: nc, g: math.Inf(1), index: -1}
				nodes[nc] = nb
			}
			if g >= nb.g {
				continue
			}
			nb.g = g
			nb.h = heuristic(nc)
			nb.parent = cur
			if nb.index >= 0 {
				heap.Fix(&open, nb.index)
			} else {
				seq++
				nb.seq = seq
				heap.Push(&open, nb)
			}
		}
	}
	return nil
}

func (p *Pathfinder) reconstruct(end *node) []geom.Point {
	var path []geom.Point
	for n := end; n != nil; n = n.parent {
		path = append(path, p.grid.ToWorld(n.cell))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
