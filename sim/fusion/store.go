// Package fusion keeps the latest telemetry per entity and answers the
// nearest-neighbour queries that feed risk scoring.
//
// The store holds one sample per id, last write wins. It is owned by the
// coordination stage and is NOT thread-safe.
package fusion

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/JasonLKelly/cosense-cloud/sim"
)

// Store is the fusion point between the three telemetry streams.
type Store struct {
	robots map[sim.RobotID]sim.RobotTelemetry
	humans map[sim.HumanID]sim.HumanTelemetry
	zones  map[sim.ZoneID]sim.ZoneContext

	// humanIDs is kept sorted so nearest-human ties break the same way every run.
	humanIDs []sim.HumanID
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		robots: make(map[sim.RobotID]sim.RobotTelemetry),
		humans: make(map[sim.HumanID]sim.HumanTelemetry),
		zones:  make(map[sim.ZoneID]sim.ZoneContext),
	}
}

// UpdateRobot validates and upserts a robot sample.
func (s *Store) UpdateRobot(t sim.RobotTelemetry) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("robot telemetry: %w", err)
	}
	s.robots[t.RobotID] = t
	return nil
}

// UpdateHuman validates and upserts a human sample.
func (s *Store) UpdateHuman(t sim.HumanTelemetry) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("human telemetry: %w", err)
	}
	if _, ok := s.humans[t.HumanID]; !ok {
		i, _ := slices.BinarySearch(s.humanIDs, t.HumanID)
		s.humanIDs = slices.Insert(s.humanIDs, i, t.HumanID)
	}
	s.humans[t.HumanID] = t
	return nil
}

// UpdateZone validates and upserts a zone context sample.
func (s *Store) UpdateZone(z sim.ZoneContext) error {
	if err := z.Validate(); err != nil {
		return fmt.Errorf("zone context: %w", err)
	}
	s.zones[z.ZoneID] = z
	return nil
}

// NearestHuman returns the closest human sharing the robot's zone and its
// distance. Exact ties go to the lowest human id.
func (s *Store) NearestHuman(robot sim.RobotTelemetry) (sim.HumanTelemetry, float64, bool) {
	var nearest sim.HumanTelemetry
	best := math.Inf(1)
	found := false
	for _, id := range s.humanIDs {
		h := s.humans[id]
		if h.ZoneID != robot.ZoneID {
			continue
		}
		if d := math.Hypot(h.X-robot.X, h.Y-robot.Y); d < best {
			nearest, best, found = h, d, true
		}
	}
	if !found {
		return sim.HumanTelemetry{}, 0, false
	}
	return nearest, best, true
}

// Robot returns the latest sample for id.
func (s *Store) Robot(id sim.RobotID) (sim.RobotTelemetry, bool) {
	t, ok := s.robots[id]
	return t, ok
}

// Zone returns the latest context for id.
func (s *Store) Zone(id sim.ZoneID) (sim.ZoneContext, bool) {
	z, ok := s.zones[id]
	return z, ok
}

// Robots returns every robot sample ordered by id.
func (s *Store) Robots() []sim.RobotTelemetry {
	out := make([]sim.RobotTelemetry, 0, len(s.robots))
	for _, t := range s.robots {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b sim.RobotTelemetry) int { return cmp.Compare(a.RobotID, b.RobotID) })
	return out
}

// Humans returns every human sample ordered by id.
func (s *Store) Humans() []sim.HumanTelemetry {
	out := make([]sim.HumanTelemetry, len(s.humanIDs))
	for i, id := range s.humanIDs {
		out[i] = s.humans[id]
	}
	return out
}

// Len returns the number of robots and humans tracked.
func (s *Store) Len() int { return len(s.robots) + len(s.humans) }

// Reset forgets every sample, e.g. after the simulator rebuilt its world.
func (s *Store) Reset() {
	logrus.Debugf("fusion store reset (%d robots, %d humans, %d zones)", len(s.robots), len(s.humans), len(s.zones))
	clear(s.robots)
	clear(s.humans)
	clear(s.zones)
	s.humanIDs = s.humanIDs[:0]
}
