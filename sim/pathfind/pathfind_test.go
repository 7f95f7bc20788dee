package pathfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// newRackGrid returns a 20×10 m grid with a rack wall at x∈[8,10) spanning y∈[0,8),
// leaving a 2 m gap at the top.
func newRackGrid() *Grid {
	g := NewGrid(20, 10, 0.5)
	g.BlockRect(geom.Rect{X: 8, Y: 0, Width: 2, Height: 8})
	return g
}

func assertValidPath(t *testing.T, p *Pathfinder, path []geom.Point) {
	t.Helper()
	for i, wp := range path {
		assert.True(t, p.Walkable(p.WorldToGrid(wp)), "waypoint %d %v is occupied", i, wp)
		if i > 0 {
			assert.True(t, p.LineOfSight(path[i-1], wp), "no line of sight %v -> %v", path[i-1], wp)
		}
	}
}

func TestFindPath_ReachableGoal_EndpointsAndLineOfSight(t *testing.T) {
	p := New(newRackGrid())
	start := geom.Point{X: 2, Y: 2}
	goal := geom.Point{X: 18, Y: 2}

	path := p.FindPath(start, goal)

	require.NotEmpty(t, path)
	assert.Equal(t, p.GridToWorld(p.WorldToGrid(start)), path[0])
	assert.Equal(t, p.GridToWorld(p.WorldToGrid(goal)), path[len(path)-1])
	assertValidPath(t, p, path)
	// the wall forces at least one intermediate waypoint through the gap
	assert.Greater(t, len(path), 2)
}

func TestFindPath_OpenGrid_SmoothsToStraightLine(t *testing.T) {
	p := New(NewGrid(10, 10, 0.5))
	path := p.FindPath(geom.Point{X: 1, Y: 1}, geom.Point{X: 9, Y: 6})
	require.Len(t, path, 2)
}

func TestFindPath_SameCell_SingleWaypoint(t *testing.T) {
	p := New(NewGrid(10, 10, 0.5))
	path := p.FindPath(geom.Point{X: 3.1, Y: 3.1}, geom.Point{X: 3.2, Y: 3.3})
	require.Len(t, path, 1)
	assert.Equal(t, geom.Point{X: 3.25, Y: 3.25}, path[0])
}

func TestFindPath_EnclosedGoal_ReturnsEmpty(t *testing.T) {
	// GIVEN a goal cell surrounded by a ring of blocked cells
	g := NewGrid(30, 30, 0.5)
	g.BlockRect(geom.Rect{X: 10, Y: 10, Width: 10, Height: 0.5})
	g.BlockRect(geom.Rect{X: 10, Y: 19.5, Width: 10, Height: 0.5})
	g.BlockRect(geom.Rect{X: 10, Y: 10, Width: 0.5, Height: 10})
	g.BlockRect(geom.Rect{X: 19.5, Y: 10, Width: 0.5, Height: 10})
	p := New(g)

	// WHEN searching from outside the enclosure
	path := p.FindPath(geom.Point{X: 2, Y: 2}, geom.Point{X: 15, Y: 15})

	// THEN no path exists
	assert.Empty(t, path)
}

func TestFindPath_BlockedGoal_SnapsToNearestWalkable(t *testing.T) {
	p := New(newRackGrid())
	goal := geom.Point{X: 8.25, Y: 4.25} // inside the rack wall

	path := p.FindPath(geom.Point{X: 2, Y: 4}, goal)

	require.NotEmpty(t, path)
	last := path[len(path)-1]
	// first walkable cell of ring 1, scanning dx then dy
	assert.Equal(t, p.GridToWorld(Cell{15, 7}), last)
	assertValidPath(t, p, path)
}

func TestFindPath_FullyBlockedRegion_SnapFails(t *testing.T) {
	g := NewGrid(30, 30, 0.5)
	g.BlockRect(geom.Rect{X: 0, Y: 0, Width: 30, Height: 30})
	p := New(g)
	assert.Empty(t, p.FindPath(geom.Point{X: 1, Y: 1}, geom.Point{X: 20, Y: 20}))
}

func TestFindPath_CornerSqueezeDisallowed(t *testing.T) {
	// GIVEN a cell whose only exits are diagonal between two blocked cells
	g := NewGrid(1.5, 1.5, 0.5)
	g.BlockCell(Cell{1, 0})
	g.BlockCell(Cell{0, 1})
	p := New(g)

	// WHEN searching from the corner cell to its diagonal neighbour
	path := p.FindPath(g.ToWorld(Cell{0, 0}), g.ToWorld(Cell{1, 1}))

	// THEN the diagonal squeeze is rejected
	assert.Empty(t, path)
}

func TestFindPath_DiagonalAllowedWithOneOrthogonalOpen(t *testing.T) {
	g := NewGrid(1.5, 1.5, 0.5)
	g.BlockCell(Cell{1, 0})
	p := New(g)
	path := p.FindPath(g.ToWorld(Cell{0, 0}), g.ToWorld(Cell{1, 1}))
	require.Len(t, path, 2)
}

func TestFindPath_DynamicObstacles(t *testing.T) {
	g := NewGrid(10, 1.5, 0.5)
	p := New(g)
	start := g.ToWorld(Cell{0, 1})
	goal := g.ToWorld(Cell{19, 1})

	// GIVEN a column of other robots across the corridor
	p.SetDynamicObstacles([]Cell{{10, 0}, {10, 1}, {10, 2}})

	// THEN the corridor is impassable
	assert.Empty(t, p.FindPath(start, goal))

	// WHEN the obstacles move away
	p.SetDynamicObstacles(nil)

	// THEN the corridor is open again
	assert.NotEmpty(t, p.FindPath(start, goal))
}

func TestFindPath_OwnCellIgnoredAsDynamicObstacle(t *testing.T) {
	g := NewGrid(10, 10, 0.5)
	p := New(g)
	start := geom.Point{X: 2.2, Y: 2.2}
	p.SetDynamicObstacles([]Cell{p.WorldToGrid(start)})

	path := p.FindPath(start, geom.Point{X: 8, Y: 8})

	require.NotEmpty(t, path)
	assert.Equal(t, p.GridToWorld(p.WorldToGrid(start)), path[0])
}

func TestLineOfSight(t *testing.T) {
	p := New(newRackGrid())
	tests := []struct {
		name string
		a, b geom.Point
		want bool
	}{
		{"same side", geom.Point{X: 1, Y: 1}, geom.Point{X: 7, Y: 7}, true},
		{"through rack", geom.Point{X: 2, Y: 2}, geom.Point{X: 18, Y: 2}, false},
		{"above rack", geom.Point{X: 2, Y: 9}, geom.Point{X: 18, Y: 9}, true},
		{"endpoint blocked", geom.Point{X: 2, Y: 2}, geom.Point{X: 9, Y: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.LineOfSight(tt.a, tt.b))
			assert.Equal(t, tt.want, p.LineOfSight(tt.b, tt.a))
		})
	}
}

func TestGrid_Conversions(t *testing.T) {
	g := NewGrid(50, 30, 0.5)
	assert.Equal(t, 100, g.Width)
	assert.Equal(t, 60, g.Height)
	assert.Equal(t, Cell{5, 7}, g.ToCell(geom.Point{X: 2.6, Y: 3.9}))
	assert.Equal(t, geom.Point{X: 2.75, Y: 3.75}, g.ToWorld(Cell{5, 7}))
	assert.True(t, g.Blocked(Cell{-1, 0}), "out of bounds counts as blocked")
	assert.True(t, g.Blocked(Cell{100, 0}))
	assert.False(t, g.Blocked(Cell{0, 0}))
}
