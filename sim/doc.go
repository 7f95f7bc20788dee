// Package sim provides the warehouse world and the engine that advances it.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - world.go: the World, sole owner of robots, humans and zones, and its Tick
//   - robot.go: robot kinematics and the motion state machine
//   - engine.go: the goroutine that owns a World, its command channel and frame fan-out
//
// # Architecture
//
// The sim package owns entities and the tick; everything else lives in
// sub-packages that depend on it, never the reverse:
//   - sim/geom/: planar vectors, headings and rectangles
//   - sim/layout/: warehouse map data (obstacles, waypoints, zones) loaded from YAML
//   - sim/pathfind/: grid A* with dynamic obstacles and path smoothing
//   - sim/fusion/: latest-sample store and nearest-human queries
//   - sim/risk/: risk scoring and action selection
//   - sim/coord/: the coordination loop, hysteresis and feedback
//   - sim/trace/: decision trace recording
//
// # Concurrency
//
// A World is not thread-safe. The Engine is its only writer: HTTP handlers
// and coordinators submit Commands, and read the latest WorldState snapshot
// or subscribe to per-tick Frames. Frames are shared between subscribers and
// must be treated as read-only.
package sim
