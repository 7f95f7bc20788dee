// Package feedback delivers coordination decisions to a remote simulator over HTTP.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JasonLKelly/cosense-cloud/sim"
)

// DefaultTimeout bounds a single POST /decision.
const DefaultTimeout = 2 * time.Second

// Client posts decisions to a simulator's /decision endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the simulator at baseURL (e.g. http://localhost:8001).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type decisionRequest struct {
	RobotID sim.RobotID `json:"robot_id"`
	Action  sim.Action  `json:"action"`
}

type decisionResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Apply posts one decision. A robot under manual override maps to
// sim.ErrManualOverride and an unknown robot to sim.ErrUnknownRobot.
func (c *Client) Apply(ctx context.Context, robotID sim.RobotID, action sim.Action) error {
	body, err := json.Marshal(decisionRequest{RobotID: robotID, Action: action})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/decision", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting decision for %s: %w", robotID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading decision response for %s: %w", robotID, err)
	}
	var dr decisionResponse
	_ = json.Unmarshal(raw, &dr)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", sim.ErrUnknownRobot, robotID)
	case resp.StatusCode != http.StatusOK:
		msg := dr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("simulator rejected decision for %s: %s: %s", robotID, resp.Status, msg)
	case dr.Status == "skipped" && dr.Reason == "unknown_robot":
		return fmt.Errorf("%w: %s", sim.ErrUnknownRobot, robotID)
	case dr.Status == "skipped":
		return fmt.Errorf("%w: %s (%s)", sim.ErrManualOverride, robotID, dr.Reason)
	}
	return nil
}
