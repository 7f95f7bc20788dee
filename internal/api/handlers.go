package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/JasonLKelly/cosense-cloud/sim"
)

// DecisionRequest is the body of POST /decision.
type DecisionRequest struct {
	RobotID sim.RobotID `json:"robot_id"`
	Action  string      `json:"action"`
}

// DecisionResponse is the reply to POST /decision. Status is "applied" or
// "skipped"; Reason is set when skipped.
type DecisionResponse struct {
	Status  string      `json:"status"`
	RobotID sim.RobotID `json:"robot_id"`
	Action  sim.Action  `json:"action,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Skip reasons reported by POST /decision.
const (
	reasonManualOverride = "manual_override"
	reasonUnknownRobot   = "unknown_robot"
)

// ToggleRequest is the body of POST /scenario/toggle. An empty ZoneID targets every zone.
type ToggleRequest struct {
	ZoneID       sim.ZoneID        `json:"zone_id,omitempty"`
	Visibility   *sim.Visibility   `json:"visibility,omitempty"`
	Connectivity *sim.Connectivity `json:"connectivity,omitempty"`
}

// ScaleRequest is the body of POST /scenario/scale.
type ScaleRequest struct {
	Robots int `json:"robots"`
	Humans int `json:"humans"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	running := false
	if s.sim != nil {
		running = s.sim.State().Running
	}
	return c.JSON(fiber.Map{"status": "healthy", "running": running})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	return c.JSON(s.sim.State())
}

func (s *Server) handleCoordination(c *fiber.Ctx) error {
	tick, states := s.recent.States()
	return c.JSON(fiber.Map{"tick": tick, "robots": states})
}

func (s *Server) handleDecisions(c *fiber.Ctx) error {
	robot := sim.RobotID(c.Params("id"))
	limit := c.QueryInt("limit", 20)
	if robot != "" {
		limit = c.QueryInt("limit", 10)
	}
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	return c.JSON(s.recent.Decisions(robot, limit))
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.sim == nil {
		return c.JSON(fiber.Map{"running": false, "error": "simulator not attached"})
	}
	st := s.sim.State()
	ids := make([]sim.RobotID, len(st.Robots))
	for i, r := range st.Robots {
		ids[i] = r.RobotID
	}
	status := fiber.Map{
		"running":     st.Running,
		"sim_time":    st.SimTime,
		"tick":        st.Tick,
		"seed":        st.Seed,
		"robot_count": len(st.Robots),
		"human_count": len(st.Humans),
		"robot_ids":   ids,
		"zones":       st.Zones,
	}
	if len(st.Zones) > 0 {
		z := st.Zones[0]
		status["visibility"] = z.Visibility
		status["connectivity"] = z.Connectivity
		status["congestion_level"] = z.CongestionLevel
	}
	return c.JSON(status)
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	if s.sim.State().Running {
		return c.JSON(fiber.Map{"status": "already_running"})
	}
	if _, err := s.submit(c, sim.SetRunning{Running: true}); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "started", "tick_rate_hz": s.sim.TickRate()})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	if _, err := s.submit(c, sim.SetRunning{Running: false}); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "stopped", "sim_time": s.sim.State().SimTime})
}

func (s *Server) handleToggle(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.Visibility != nil && !req.Visibility.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unknown visibility "+string(*req.Visibility))
	}
	if req.Connectivity != nil && !req.Connectivity.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unknown connectivity "+string(*req.Connectivity))
	}
	cmd := sim.SetConditions{ZoneID: req.ZoneID, Visibility: req.Visibility, Connectivity: req.Connectivity}
	if _, err := s.submit(c, cmd); err != nil {
		return err
	}

	// the published snapshot lags the command by one drain
	resp := fiber.Map{}
	for _, z := range s.sim.State().Zones {
		if req.ZoneID == "" || z.ZoneID == req.ZoneID {
			resp["visibility"] = z.Visibility
			resp["connectivity"] = z.Connectivity
			break
		}
	}
	if req.Visibility != nil {
		resp["visibility"] = *req.Visibility
	}
	if req.Connectivity != nil {
		resp["connectivity"] = *req.Connectivity
	}
	return c.JSON(resp)
}

func (s *Server) handleScale(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	var req ScaleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.Robots < 0 || req.Humans < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "counts must be non-negative")
	}
	counts, err := s.submit(c, sim.Scale{Robots: req.Robots, Humans: req.Humans})
	if err != nil {
		return err
	}
	return c.JSON(counts)
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	var params sim.ResetParams
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	switch {
	case params.Robots < 0 || params.Humans < 0:
		return fiber.NewError(fiber.StatusBadRequest, "counts must be non-negative")
	case params.Visibility != nil && !params.Visibility.Valid():
		return fiber.NewError(fiber.StatusBadRequest, "unknown visibility "+string(*params.Visibility))
	case params.Connectivity != nil && !params.Connectivity.Valid():
		return fiber.NewError(fiber.StatusBadRequest, "unknown connectivity "+string(*params.Connectivity))
	}
	v, err := s.submit(c, sim.Reset{Params: params})
	if err != nil {
		return err
	}
	counts := v.(sim.Counts)
	return c.JSON(fiber.Map{"status": "reset", "robot_count": counts.RobotCount, "human_count": counts.HumanCount})
}

func (s *Server) handleDecision(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	action, err := sim.ParseAction(req.Action)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := req.RobotID.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	_, err = s.submit(c, sim.ApplyDecision{RobotID: req.RobotID, Action: action})
	switch {
	case errors.Is(err, sim.ErrManualOverride):
		return c.JSON(DecisionResponse{Status: "skipped", RobotID: req.RobotID, Reason: reasonManualOverride})
	case errors.Is(err, sim.ErrUnknownRobot):
		// Robots can vanish in a reset while their decisions are in flight.
		return c.JSON(DecisionResponse{Status: "skipped", RobotID: req.RobotID, Reason: reasonUnknownRobot})
	case err != nil:
		return err
	}
	return c.JSON(DecisionResponse{Status: "applied", RobotID: req.RobotID, Action: action})
}

func (s *Server) handleRobot(c *fiber.Ctx) error {
	if s.sim == nil {
		return errNoSimulator
	}
	st := s.sim.State()
	r, ok := st.Robot(sim.RobotID(c.Params("id")))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "robot "+c.Params("id")+" not found")
	}
	return c.JSON(r)
}

func (s *Server) handleOverride(stop bool) fiber.Handler {
	status := "started"
	if stop {
		status = "stopped"
	}
	return func(c *fiber.Ctx) error {
		if s.sim == nil {
			return errNoSimulator
		}
		v, err := s.submit(c, sim.SetManualOverride{RobotID: sim.RobotID(c.Params("id")), Stop: stop})
		if err != nil {
			return err
		}
		r := v.(sim.RobotState)
		return c.JSON(fiber.Map{
			"status":           status,
			"robot_id":         r.RobotID,
			"commanded_action": r.CommandedAction,
			"manual_override":  r.ManualOverride,
		})
	}
}
