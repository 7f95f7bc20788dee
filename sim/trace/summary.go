package trace

// actionSeverity orders actions for escalation counting. Unknown actions rank 0.
var actionSeverity = map[string]int{
	"CONTINUE": 0,
	"REROUTE":  1,
	"SLOW":     2,
	"STOP":     3,
}

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	TotalDecisions     int
	UniqueRobots       int
	Escalations        int // decisions more severe than the robot's previous one
	FeedbackFailures   int
	MeanRisk           float64
	MaxRisk            float64
	ActionDistribution map[string]int // action → count of decisions
	ReasonDistribution map[string]int // primary reason → count of decisions
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		ActionDistribution: make(map[string]int),
		ReasonDistribution: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	summary.TotalDecisions = len(dt.Decisions)
	summary.FeedbackFailures = len(dt.Feedback)

	robots := make(map[string]struct{})
	if len(dt.Decisions) > 0 {
		totalRisk := 0.0
		for _, d := range dt.Decisions {
			robots[d.RobotID] = struct{}{}
			summary.ActionDistribution[d.Action]++
			summary.ReasonDistribution[d.PrimaryReason]++
			totalRisk += d.RiskScore
			if d.RiskScore > summary.MaxRisk {
				summary.MaxRisk = d.RiskScore
			}
			if d.PreviousAction != "" && actionSeverity[d.Action] > actionSeverity[d.PreviousAction] {
				summary.Escalations++
			}
		}
		summary.MeanRisk = totalRisk / float64(len(dt.Decisions))
	}

	summary.UniqueRobots = len(robots)

	return summary
}
