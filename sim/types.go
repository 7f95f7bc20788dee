package sim

import (
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors returned by World and Engine operations.
var (
	ErrUnknownRobot   = errors.New("unknown robot")
	ErrUnknownZone    = errors.New("unknown zone")
	ErrManualOverride = errors.New("robot under manual override")
	ErrInvalidAction  = errors.New("invalid action")
	ErrEngineBusy     = errors.New("engine command queue full")
	ErrEngineStopped  = errors.New("engine stopped")
)

// idPattern is the accepted shape of every entity id crossing an ingestion boundary.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// RobotID identifies a robot.
type RobotID string

// HumanID identifies a human worker.
type HumanID string

// ZoneID identifies a zone.
type ZoneID string

// Validate checks the id format.
func (id RobotID) Validate() error { return validateID("robot_id", string(id)) }

// Validate checks the id format.
func (id HumanID) Validate() error { return validateID("human_id", string(id)) }

// Validate checks the id format.
func (id ZoneID) Validate() error { return validateID("zone_id", string(id)) }

func validateID(field, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s %q: malformed id", field, id)
	}
	return nil
}

// Action is a commanded robot behavior.
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionSlow     Action = "SLOW"
	ActionStop     Action = "STOP"
	ActionReroute  Action = "REROUTE"
)

// Valid reports whether a is one of the four known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionContinue, ActionSlow, ActionStop, ActionReroute:
		return true
	}
	return false
}

// ParseAction converts a wire string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// MotionState is the observable motion of a robot.
type MotionState string

const (
	MotionMoving   MotionState = "moving"
	MotionStopped  MotionState = "stopped"
	MotionSlowing  MotionState = "slowing"
	MotionYielding MotionState = "yielding"
)

// Valid reports whether m is a known motion state.
func (m MotionState) Valid() bool {
	switch m {
	case MotionMoving, MotionStopped, MotionSlowing, MotionYielding:
		return true
	}
	return false
}

// Visibility is a zone's sight condition.
type Visibility string

const (
	VisibilityNormal   Visibility = "normal"
	VisibilityDegraded Visibility = "degraded"
	VisibilityPoor     Visibility = "poor"
)

// Valid reports whether v is a known visibility level.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityNormal, VisibilityDegraded, VisibilityPoor:
		return true
	}
	return false
}

// Connectivity is a zone's network condition.
type Connectivity string

const (
	ConnectivityNormal   Connectivity = "normal"
	ConnectivityDegraded Connectivity = "degraded"
	ConnectivityOffline  Connectivity = "offline"
)

// Valid reports whether c is a known connectivity level.
func (c Connectivity) Valid() bool {
	switch c {
	case ConnectivityNormal, ConnectivityDegraded, ConnectivityOffline:
		return true
	}
	return false
}
