// Package layout defines the warehouse map consumed by the world at startup:
// dimensions, grid resolution, rectangular obstacles, named waypoints and zones.
// This package has no dependencies on sim/; it stores pure data types.
package layout

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
)

// CellType classifies an obstacle rectangle.
type CellType string

const (
	CellFloor       CellType = "floor"
	CellRack        CellType = "rack"
	CellConveyor    CellType = "conveyor"
	CellWorkstation CellType = "workstation"
	CellDock        CellType = "dock"
	CellWall        CellType = "wall"
	CellCharging    CellType = "charging"
)

var validCellTypes = map[CellType]bool{
	CellFloor: true, CellRack: true, CellConveyor: true, CellWorkstation: true,
	CellDock: true, CellWall: true, CellCharging: true,
}

// BlocksMovement reports whether robots and humans must route around cells of this type.
func (c CellType) BlocksMovement() bool {
	switch c {
	case CellRack, CellWall, CellConveyor, CellWorkstation:
		return true
	}
	return false
}

// Waypoint prefixes that mark spawn locations.
const (
	RobotSpawnPrefix = "charging"
	HumanSpawnPrefix = "packing"
)

// DefaultGridResolution is the pathfinding cell size in meters.
const DefaultGridResolution = 0.5

// Obstacle is a rectangular map feature anchored at its minimum corner.
type Obstacle struct {
	ID        string   `yaml:"id" json:"id"`
	Type      CellType `yaml:"type" json:"type"`
	X         float64  `yaml:"x" json:"x"`
	Y         float64  `yaml:"y" json:"y"`
	Width     float64  `yaml:"width" json:"width"`
	Height    float64  `yaml:"height" json:"height"`
	Label     string   `yaml:"label,omitempty" json:"label,omitempty"`
	Color     string   `yaml:"color,omitempty" json:"color,omitempty"`
	Direction string   `yaml:"direction,omitempty" json:"direction,omitempty"` // conveyors only
}

// Rect returns the obstacle footprint.
func (o Obstacle) Rect() geom.Rect {
	return geom.Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
}

// Waypoint is a named navigation target.
type Waypoint struct {
	ID   string  `yaml:"id" json:"id"`
	Name string  `yaml:"name" json:"name"`
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
}

// Point returns the waypoint position.
func (w Waypoint) Point() geom.Point {
	return geom.Point{X: w.X, Y: w.Y}
}

// ZoneArea is a named rectangular region with its own environmental state.
type ZoneArea struct {
	ID     string  `yaml:"id" json:"id"`
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Rect returns the zone extent.
func (z ZoneArea) Rect() geom.Rect {
	return geom.Rect{X: z.X, Y: z.Y, Width: z.Width, Height: z.Height}
}

// Map is a complete warehouse layout.
type Map struct {
	ID             string     `yaml:"id" json:"id"`
	Name           string     `yaml:"name" json:"name"`
	Version        string     `yaml:"version,omitempty" json:"version,omitempty"`
	Width          float64    `yaml:"width" json:"width"`
	Height         float64    `yaml:"height" json:"height"`
	GridResolution float64    `yaml:"grid_resolution,omitempty" json:"grid_resolution"`
	Obstacles      []Obstacle `yaml:"obstacles,omitempty" json:"obstacles"`
	Waypoints      []Waypoint `yaml:"waypoints,omitempty" json:"waypoints"`
	Zones          []ZoneArea `yaml:"zones,omitempty" json:"zones"`
}

// Load reads a YAML warehouse map from path. Unknown fields are rejected.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading warehouse map: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML warehouse map.
func Parse(data []byte) (*Map, error) {
	var m Map
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing warehouse map: %w", err)
	}
	if m.GridResolution == 0 {
		m.GridResolution = DefaultGridResolution
	}
	if m.Version == "" {
		m.Version = "1.0"
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks dimensions, obstacle types and unique ids.
func (m *Map) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("map dimensions must be positive, got %gx%g", m.Width, m.Height)
	}
	if m.GridResolution <= 0 {
		return fmt.Errorf("grid_resolution must be positive, got %g", m.GridResolution)
	}
	bounds := m.Bounds()
	for i, o := range m.Obstacles {
		if !validCellTypes[o.Type] {
			return fmt.Errorf("obstacle[%d] %q: unknown type %q", i, o.ID, o.Type)
		}
		if o.Width <= 0 || o.Height <= 0 {
			return fmt.Errorf("obstacle[%d] %q: width and height must be positive", i, o.ID)
		}
	}
	seen := make(map[string]bool, len(m.Waypoints))
	for i, w := range m.Waypoints {
		if w.ID == "" {
			return fmt.Errorf("waypoint[%d]: id is required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("waypoint[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = true
		if !bounds.Contains(w.Point()) {
			return fmt.Errorf("waypoint %q at (%g, %g) is outside the map", w.ID, w.X, w.Y)
		}
	}
	zones := make(map[string]bool, len(m.Zones))
	for i, z := range m.Zones {
		if z.ID == "" {
			return fmt.Errorf("zone[%d]: id is required", i)
		}
		if zones[z.ID] {
			return fmt.Errorf("zone[%d]: duplicate id %q", i, z.ID)
		}
		zones[z.ID] = true
		if z.Width <= 0 || z.Height <= 0 {
			return fmt.Errorf("zone %q: width and height must be positive", z.ID)
		}
	}
	return nil
}

// Bounds returns the full map rectangle.
func (m *Map) Bounds() geom.Rect {
	return geom.Rect{Width: m.Width, Height: m.Height}
}

// Waypoint returns the waypoint with the given id.
func (m *Map) Waypoint(id string) (Waypoint, bool) {
	for _, w := range m.Waypoints {
		if w.ID == id {
			return w, true
		}
	}
	return Waypoint{}, false
}

// WaypointsWithPrefix returns the waypoints whose id starts with prefix, in map order.
func (m *Map) WaypointsWithPrefix(prefix string) []Waypoint {
	var out []Waypoint
	for _, w := range m.Waypoints {
		if strings.HasPrefix(w.ID, prefix) {
			out = append(out, w)
		}
	}
	return out
}

// ZoneAreas returns the configured zones, or a single zone covering the whole
// map named defaultID when none are configured.
func (m *Map) ZoneAreas(defaultID string) []ZoneArea {
	if len(m.Zones) > 0 {
		return m.Zones
	}
	return []ZoneArea{{ID: defaultID, Width: m.Width, Height: m.Height}}
}
