package sim

// Command is a mutation of the World delivered through the Engine's command
// channel and applied at the start of the next tick, on the tick goroutine.
type Command interface {
	execute(e *Engine) (any, error)
}

// ApplyDecision sets a robot's commanded action unless it is under manual override.
type ApplyDecision struct {
	RobotID RobotID
	Action  Action
}

func (c ApplyDecision) execute(e *Engine) (any, error) {
	return nil, e.world.ApplyDecision(c.RobotID, c.Action)
}

// SetManualOverride stops (Stop=true) or releases a robot under operator control.
// The result is the robot's RobotState after the change.
type SetManualOverride struct {
	RobotID RobotID
	Stop    bool
}

func (c SetManualOverride) execute(e *Engine) (any, error) {
	return e.world.SetManualOverride(c.RobotID, c.Stop)
}

// SetConditions toggles zone visibility and/or connectivity. An empty ZoneID targets every zone.
type SetConditions struct {
	ZoneID       ZoneID
	Visibility   *Visibility
	Connectivity *Connectivity
}

func (c SetConditions) execute(e *Engine) (any, error) {
	return nil, e.world.SetConditions(c.ZoneID, c.Visibility, c.Connectivity)
}

// Counts is the entity population after a Scale or Reset.
type Counts struct {
	RobotCount int `json:"robot_count"`
	HumanCount int `json:"human_count"`
}

func (e *Engine) counts() Counts {
	return Counts{RobotCount: e.world.RobotCount(), HumanCount: e.world.HumanCount()}
}

// Scale adds robots and/or humans. The result is the new Counts.
type Scale struct {
	Robots int
	Humans int
}

func (c Scale) execute(e *Engine) (any, error) {
	if c.Robots > 0 {
		e.world.AddRobots(c.Robots)
	}
	if c.Humans > 0 {
		e.world.AddHumans(c.Humans)
	}
	return e.counts(), nil
}

// Reset stops the engine and rebuilds the world. The result is the new Counts.
type Reset struct {
	Params ResetParams
}

func (c Reset) execute(e *Engine) (any, error) {
	e.setRunning(false)
	if err := e.world.Reset(c.Params); err != nil {
		return nil, err
	}
	return e.counts(), nil
}

// SetRunning starts or pauses time advancement.
type SetRunning struct {
	Running bool
}

func (c SetRunning) execute(e *Engine) (any, error) {
	e.setRunning(c.Running)
	return nil, nil
}
