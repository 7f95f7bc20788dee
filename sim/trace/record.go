// Package trace records coordination decisions for post-run analysis.
// This package has no dependencies on sim/ or sim/coord/; it stores pure data types.
package trace

// DecisionRecord captures one emitted coordination decision.
type DecisionRecord struct {
	DecisionID           string
	RobotID              string
	ZoneID               string
	Tick                 int64
	TimestampMs          int64
	Action               string
	PreviousAction       string // empty on first sight
	PrimaryReason        string
	ReasonCodes          []string
	RiskScore            float64
	NearestHumanDistance *float64
}

// FeedbackRecord captures a decision that could not be delivered to the simulator.
type FeedbackRecord struct {
	DecisionID string
	RobotID    string
	Action     string
	Error      string
}

// AssessmentRecord captures one per-tick risk assessment, decision or not.
type AssessmentRecord struct {
	RobotID              string
	Tick                 int64
	Action               string
	RiskScore            float64
	NearestHumanDistance *float64
}
