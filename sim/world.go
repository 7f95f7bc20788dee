// world.go
//
// Defines the World: the single owner and writer of robot, human and zone
// state. Tick advances every entity by a fixed timestep; everything else is a
// command applied between ticks.

package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JasonLKelly/cosense-cloud/sim/geom"
	"github.com/JasonLKelly/cosense-cloud/sim/layout"
	"github.com/JasonLKelly/cosense-cloud/sim/pathfind"
)

// Sensor model parameters.
const (
	UltrasonicRange   = 10.0 // m
	BLERange          = 15.0 // m
	ultrasonicNoise   = 0.1  // m, σ
	ultrasonicFloor   = 0.1  // m
	bleNoise          = 2.5  // dBm, σ
	bleReferenceRSSI  = -40  // dBm at 1 m
	blePathLossPerDec = 20   // dBm per decade of distance
	telemetryPosNoise = 0.3  // m, σ of human positioning error
	spawnMargin       = 5.0  // m from each wall for random spawns
	targetMargin      = 2.0  // m from each wall for random targets
	maxRandomAttempts = 100
)

// WorldConfig holds the static parameters of a world.
type WorldConfig struct {
	ZoneID      ZoneID      // id of the default zone when the layout defines none
	Width       float64     // m, ignored when Layout is set
	Height      float64     // m, ignored when Layout is set
	Robots      int         // initial robot count
	Humans      int         // initial human count
	Seed        int64       // 0 selects a time-based seed
	RobotBuffer float64     // m, robot-robot yield distance
	StartTimeMs int64       // telemetry timestamp origin; 0 selects wall-clock now
	Layout      *layout.Map // nil selects layout.Default(Width, Height)
}

// DefaultWorldConfig returns the stock 50×30 m single-zone configuration.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		ZoneID:      "zone-c",
		Width:       50,
		Height:      30,
		Robots:      2,
		Humans:      2,
		RobotBuffer: 1.5,
	}
}

// Validate checks that the configuration can build a world.
func (c WorldConfig) Validate() error {
	if err := c.ZoneID.Validate(); err != nil {
		return err
	}
	if c.Layout == nil && (c.Width < 10 || c.Height < 10) {
		return fmt.Errorf("world must be at least 10x10 m, got %gx%g", c.Width, c.Height)
	}
	if c.Layout != nil {
		if err := c.Layout.Validate(); err != nil {
			return err
		}
	}
	if c.Robots < 0 || c.Humans < 0 {
		return fmt.Errorf("entity counts must be non-negative, got robots=%d humans=%d", c.Robots, c.Humans)
	}
	if c.RobotBuffer <= 0 {
		return fmt.Errorf("robot buffer must be positive, got %g", c.RobotBuffer)
	}
	return nil
}

// ResetParams overrides parts of the configuration when rebuilding a world.
// Zero counts and nil conditions keep the current configuration.
type ResetParams struct {
	Robots       int           `json:"robots,omitempty"`
	Humans       int           `json:"humans,omitempty"`
	Visibility   *Visibility   `json:"visibility,omitempty"`
	Connectivity *Connectivity `json:"connectivity,omitempty"`
}

// World owns every entity and advances them in lock step.
//
// Thread-safety: NOT thread-safe. Owned by a single goroutine (see Engine).
type World struct {
	cfg        WorldConfig
	seed       int64
	startMs    int64
	layout     *layout.Map
	bounds     geom.Rect
	pathfinder *pathfind.Pathfinder
	rng        *PartitionedRNG

	zones      []*Zone
	robots     []*Robot
	humans     []*Human
	robotIndex map[RobotID]*Robot

	robotSpawns  []layout.Waypoint
	humanSpawns  []layout.Waypoint
	destinations []layout.Waypoint

	simTime float64
	tick    int64
}

// NewWorld builds a world and spawns its initial entities.
func NewWorld(cfg WorldConfig) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid world config: %w", err)
	}
	w := &World{cfg: cfg}
	w.startMs = cfg.StartTimeMs
	if w.startMs == 0 {
		w.startMs = time.Now().UnixMilli()
	}
	w.build()
	return w, nil
}

// build (re)creates grid, zones and entities from the current configuration.
func (w *World) build() {
	w.seed = w.cfg.Seed
	if w.seed == 0 {
		w.seed = time.Now().UnixNano()
	}
	w.rng = NewPartitionedRNG(NewSimulationKey(w.seed))

	m := w.cfg.Layout
	if m == nil {
		m = layout.Default(w.cfg.Width, w.cfg.Height)
	}
	w.layout = m
	w.bounds = m.Bounds()

	grid := pathfind.NewGrid(m.Width, m.Height, m.GridResolution)
	for _, o := range m.Obstacles {
		if o.Type.BlocksMovement() {
			grid.BlockRect(o.Rect())
		}
	}
	w.pathfinder = pathfind.New(grid)

	w.zones = w.zones[:0]
	for _, za := range m.ZoneAreas(string(w.cfg.ZoneID)) {
		w.zones = append(w.zones, &Zone{
			ID:           ZoneID(za.ID),
			Bounds:       za.Rect(),
			Visibility:   VisibilityNormal,
			Connectivity: ConnectivityNormal,
		})
	}

	w.robotSpawns = m.WaypointsWithPrefix(layout.RobotSpawnPrefix)
	w.humanSpawns = m.WaypointsWithPrefix(layout.HumanSpawnPrefix)
	w.destinations = m.Waypoints

	w.robots = nil
	w.humans = nil
	w.robotIndex = make(map[RobotID]*Robot)
	w.simTime = 0
	w.tick = 0

	w.AddRobots(w.cfg.Robots)
	w.AddHumans(w.cfg.Humans)

	logrus.WithFields(logrus.Fields{
		"seed":   w.seed,
		"map":    m.ID,
		"zones":  len(w.zones),
		"robots": len(w.robots),
		"humans": len(w.humans),
	}).Debug("world built")
}

// === Tick ===

// Tick advances the world by dt seconds: robots against a pre-tick neighbour
// snapshot, then humans, then zone membership and sensors on post-move
// positions, then congestion, then destinations for robots whose pause has
// elapsed.
func (w *World) Tick(dt float64) {
	w.simTime += dt
	w.tick++

	w.refreshDynamicObstacles()
	snapshot := make([]neighbour, len(w.robots))
	for i, r := range w.robots {
		snapshot[i] = neighbour{id: r.ID, priority: r.Priority, pos: r.Pos}
	}

	robotRNG := w.rng.ForSubsystem(SubsystemRobots)
	for _, r := range w.robots {
		r.update(dt, w.simTime, w.bounds, robotRNG, snapshot, w.cfg.RobotBuffer)
	}

	humanRNG := w.rng.ForSubsystem(SubsystemHumans)
	for _, h := range w.humans {
		h.update(dt, w.simTime, w.bounds, humanRNG)
	}

	w.updateZones()
	w.updateSensors()
	w.updateCongestion()

	refreshed := false
	for _, r := range w.robots {
		if len(r.Path) > 0 || w.simTime < r.IdleUntil {
			continue
		}
		if !refreshed {
			w.refreshDynamicObstacles()
			refreshed = true
		}
		w.assignDestination(r)
	}
}

func (w *World) refreshDynamicObstacles() {
	cells := make([]pathfind.Cell, len(w.robots))
	for i, r := range w.robots {
		cells[i] = w.pathfinder.WorldToGrid(r.Pos)
	}
	w.pathfinder.SetDynamicObstacles(cells)
}

// updateZones moves entities into the zone containing their new position.
func (w *World) updateZones() {
	for _, r := range w.robots {
		r.ZoneID = w.zoneFor(r.Pos)
	}
	for _, h := range w.humans {
		h.ZoneID = w.zoneFor(h.Pos)
	}
}

func (w *World) updateSensors() {
	rng := w.rng.ForSubsystem(SubsystemSensors)
	for _, r := range w.robots {
		nearest := math.Inf(1)
		for _, h := range w.humans {
			nearest = math.Min(nearest, geom.Distance(r.Pos, h.Pos))
		}

		r.Ultrasonic = nil
		if nearest < UltrasonicRange {
			d := geom.Round(math.Max(ultrasonicFloor, nearest+rng.NormFloat64()*ultrasonicNoise), 2)
			r.Ultrasonic = &d
		}

		r.BLERSSI = nil
		if nearest < BLERange {
			rssi := geom.Round(rssiAt(nearest)+rng.NormFloat64()*bleNoise, 1)
			r.BLERSSI = &rssi
		}
	}
}

// rssiAt is the noiseless log-distance path-loss model.
func rssiAt(dist float64) float64 {
	return bleReferenceRSSI - blePathLossPerDec*math.Log10(math.Max(dist, 0.1))
}

func (w *World) updateCongestion() {
	robots := make(map[ZoneID]int, len(w.zones))
	humans := make(map[ZoneID]int, len(w.zones))
	for _, r := range w.robots {
		robots[r.ZoneID]++
	}
	for _, h := range w.humans {
		humans[h.ZoneID]++
	}
	for _, z := range w.zones {
		z.UpdateCongestion(robots[z.ID], humans[z.ID])
	}
}

// === Destinations ===

// assignDestination routes r to a random waypoint. When no waypoint is
// reachable the robot falls back to a straight-line random target.
func (w *World) assignDestination(r *Robot) {
	rng := w.rng.ForSubsystem(SubsystemDestinations)
	for attempt := 0; attempt < 3 && len(w.destinations) > 0; attempt++ {
		wp := w.destinations[rng.Intn(len(w.destinations))]
		if geom.Distance(wp.Point(), r.Pos) < WaypointTolerance {
			continue
		}
		if path := w.pathfinder.FindPath(r.Pos, wp.Point()); len(path) > 0 {
			r.SetPath(path, wp.ID)
			logrus.WithFields(logrus.Fields{
				"robot":       r.ID,
				"destination": wp.ID,
				"waypoints":   len(path),
			}).Trace("destination assigned")
			return
		}
	}

	target := w.randomPoint(rng, targetMargin, false)
	if len(w.destinations) == 0 {
		if path := w.pathfinder.FindPath(r.Pos, target); len(path) > 0 {
			r.SetPath(path, "")
			return
		}
	}
	logrus.WithField("robot", r.ID).Debugf("no reachable waypoint, heading for random target (%.1f, %.1f)", target.X, target.Y)
	r.SetPath([]geom.Point{target}, "")
}

// replan recomputes the path to r's current goal around the current dynamic obstacles.
func (w *World) replan(r *Robot) {
	var goal geom.Point
	switch {
	case r.Destination != "":
		wp, ok := w.layout.Waypoint(r.Destination)
		if !ok {
			w.assignDestination(r)
			return
		}
		goal = wp.Point()
	case len(r.Path) > 0:
		goal = r.Path[len(r.Path)-1]
	default:
		return
	}
	w.refreshDynamicObstacles()
	if path := w.pathfinder.FindPath(r.Pos, goal); len(path) > 0 {
		r.SetPath(path, r.Destination)
		return
	}
	w.assignDestination(r)
}

// randomPoint samples a uniform point inside the margin. When walkable is set
// it retries until the point is outside every static obstacle.
func (w *World) randomPoint(rng *rand.Rand, margin float64, walkable bool) geom.Point {
	mx := math.Min(margin, w.bounds.Width/4)
	my := math.Min(margin, w.bounds.Height/4)
	var p geom.Point
	for i := 0; i < maxRandomAttempts; i++ {
		p = geom.Point{
			X: w.bounds.X + mx + rng.Float64()*(w.bounds.Width-2*mx),
			Y: w.bounds.Y + my + rng.Float64()*(w.bounds.Height-2*my),
		}
		if !walkable || !w.pathfinder.Grid().Blocked(w.pathfinder.WorldToGrid(p)) {
			return p
		}
	}
	return p
}

// === Scale ===

// AddRobots spawns n robots at charging waypoints (cycled) and routes each one immediately.
func (w *World) AddRobots(n int) {
	for i := 0; i < n; i++ {
		idx := len(w.robots)
		pos := w.spawnPoint(w.robotSpawns, idx)
		r := &Robot{
			ID:              RobotID(fmt.Sprintf("robot-%d", idx+1)),
			Priority:        idx + 1,
			ZoneID:          w.zoneFor(pos),
			Pos:             pos,
			MotionState:     MotionStopped,
			CommandedAction: ActionContinue,
		}
		w.robots = append(w.robots, r)
		w.robotIndex[r.ID] = r
		w.refreshDynamicObstacles()
		w.assignDestination(r)
	}
	if n > 0 {
		w.updateCongestion()
	}
}

// AddHumans spawns n humans at packing waypoints (cycled); the spawn point becomes their home.
func (w *World) AddHumans(n int) {
	for i := 0; i < n; i++ {
		idx := len(w.humans)
		pos := w.spawnPoint(w.humanSpawns, idx)
		home := pos
		w.humans = append(w.humans, &Human{
			ID:     HumanID(fmt.Sprintf("human-%d", idx+1)),
			ZoneID: w.zoneFor(pos),
			Pos:    pos,
			Home:   &home,
		})
	}
	if n > 0 {
		w.updateCongestion()
	}
}

// spawnPoint cycles through spawns, offsetting later rounds so entities do
// not stack. Without spawns it samples a random walkable point.
func (w *World) spawnPoint(spawns []layout.Waypoint, idx int) geom.Point {
	if len(spawns) == 0 {
		return w.randomPoint(w.rng.ForSubsystem(SubsystemSpawn), spawnMargin, true)
	}
	p := spawns[idx%len(spawns)].Point()
	if round := idx / len(spawns); round > 0 {
		shifted := clampToBounds(geom.Point{X: p.X + 0.75*float64(round), Y: p.Y}, w.bounds)
		if !w.pathfinder.Grid().Blocked(w.pathfinder.WorldToGrid(shifted)) {
			p = shifted
		}
	}
	return p
}

// zoneFor returns the first zone containing p, or the first zone.
func (w *World) zoneFor(p geom.Point) ZoneID {
	for _, z := range w.zones {
		if z.Bounds.Contains(p) {
			return z.ID
		}
	}
	return w.zones[0].ID
}

// === Commands ===

// ApplyDecision sets a robot's commanded action. REROUTE also replans the
// robot's current goal. Robots under manual override are left untouched.
func (w *World) ApplyDecision(id RobotID, action Action) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	r, ok := w.robotIndex[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRobot, id)
	}
	if r.ManualOverride {
		return fmt.Errorf("%w: %s", ErrManualOverride, id)
	}
	r.CommandedAction = action
	if action == ActionReroute {
		w.replan(r)
	}
	return nil
}

// SetManualOverride stops a robot under operator control, or releases it back
// to automatic coordination.
func (w *World) SetManualOverride(id RobotID, stop bool) (RobotState, error) {
	r, ok := w.robotIndex[id]
	if !ok {
		return RobotState{}, fmt.Errorf("%w: %s", ErrUnknownRobot, id)
	}
	if stop {
		r.CommandedAction = ActionStop
		r.ManualOverride = true
	} else {
		r.CommandedAction = ActionContinue
		r.ManualOverride = false
	}
	return r.state(), nil
}

// SetConditions updates visibility and/or connectivity of one zone, or of
// every zone when zoneID is empty.
func (w *World) SetConditions(zoneID ZoneID, vis *Visibility, conn *Connectivity) error {
	if vis != nil && !vis.Valid() {
		return fmt.Errorf("unknown visibility %q", *vis)
	}
	if conn != nil && !conn.Valid() {
		return fmt.Errorf("unknown connectivity %q", *conn)
	}
	matched := false
	for _, z := range w.zones {
		if zoneID != "" && z.ID != zoneID {
			continue
		}
		matched = true
		if vis != nil {
			z.Visibility = *vis
		}
		if conn != nil {
			z.Connectivity = *conn
		}
	}
	if !matched {
		return fmt.Errorf("%w: %s", ErrUnknownZone, zoneID)
	}
	return nil
}

// Reset rebuilds the world from scratch with optional count and condition overrides.
func (w *World) Reset(p ResetParams) error {
	if p.Robots < 0 || p.Humans < 0 {
		return fmt.Errorf("reset counts must be non-negative, got robots=%d humans=%d", p.Robots, p.Humans)
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		return fmt.Errorf("unknown visibility %q", *p.Visibility)
	}
	if p.Connectivity != nil && !p.Connectivity.Valid() {
		return fmt.Errorf("unknown connectivity %q", *p.Connectivity)
	}
	if p.Robots > 0 {
		w.cfg.Robots = p.Robots
	}
	if p.Humans > 0 {
		w.cfg.Humans = p.Humans
	}
	w.build()
	if p.Visibility != nil || p.Connectivity != nil {
		return w.SetConditions("", p.Visibility, p.Connectivity)
	}
	return nil
}

// === Accessors ===

// SimTime returns elapsed simulation seconds.
func (w *World) SimTime() float64 { return w.simTime }

// TickCount returns the number of ticks since the last build.
func (w *World) TickCount() int64 { return w.tick }

// Seed returns the resolved RNG seed.
func (w *World) Seed() int64 { return w.seed }

// Bounds returns the world rectangle.
func (w *World) Bounds() geom.Rect { return w.bounds }

// Layout returns the warehouse map in use.
func (w *World) Layout() *layout.Map { return w.layout }

// RobotCount returns the number of robots.
func (w *World) RobotCount() int { return len(w.robots) }

// HumanCount returns the number of humans.
func (w *World) HumanCount() int { return len(w.humans) }

// Robot returns a copy of the robot with the given id.
func (w *World) Robot(id RobotID) (Robot, bool) {
	r, ok := w.robotIndex[id]
	if !ok {
		return Robot{}, false
	}
	return r.clone(), true
}

// Robots returns copies of every robot in creation order.
func (w *World) Robots() []Robot {
	out := make([]Robot, len(w.robots))
	for i, r := range w.robots {
		out[i] = r.clone()
	}
	return out
}

// Humans returns copies of every human in creation order.
func (w *World) Humans() []Human {
	out := make([]Human, len(w.humans))
	for i, h := range w.humans {
		out[i] = h.clone()
	}
	return out
}

// Zones returns copies of every zone.
func (w *World) Zones() []Zone {
	out := make([]Zone, len(w.zones))
	for i, z := range w.zones {
		out[i] = *z
	}
	return out
}

func (r *Robot) clone() Robot {
	c := *r
	c.Path = append([]geom.Point(nil), r.Path...)
	if r.Ultrasonic != nil {
		v := *r.Ultrasonic
		c.Ultrasonic = &v
	}
	if r.BLERSSI != nil {
		v := *r.BLERSSI
		c.BLERSSI = &v
	}
	return c
}

func (h *Human) clone() Human {
	c := *h
	if h.Heading != nil {
		v := *h.Heading
		c.Heading = &v
	}
	if h.Home != nil {
		v := *h.Home
		c.Home = &v
	}
	if h.Target != nil {
		v := *h.Target
		c.Target = &v
	}
	return c
}
