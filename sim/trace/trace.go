package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures emitted decisions and feedback failures.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelAssessments additionally captures every per-tick assessment.
	TraceLevelAssessments TraceLevel = "assessments"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:        true,
	TraceLevelDecisions:   true,
	TraceLevelAssessments: true,
	"":                    true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// DecisionTrace collects records during a coordination run.
//
// Thread-safety: NOT thread-safe. Owned by the coordinator goroutine.
type DecisionTrace struct {
	Config      TraceConfig
	Decisions   []DecisionRecord
	Feedback    []FeedbackRecord
	Assessments []AssessmentRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(config TraceConfig) *DecisionTrace {
	return &DecisionTrace{
		Config:      config,
		Decisions:   make([]DecisionRecord, 0),
		Feedback:    make([]FeedbackRecord, 0),
		Assessments: make([]AssessmentRecord, 0),
	}
}

// RecordDecision appends a decision record.
func (dt *DecisionTrace) RecordDecision(record DecisionRecord) {
	if dt.Config.Level == TraceLevelNone || dt.Config.Level == "" {
		return
	}
	dt.Decisions = append(dt.Decisions, record)
}

// RecordFeedback appends a failed feedback delivery.
func (dt *DecisionTrace) RecordFeedback(record FeedbackRecord) {
	if dt.Config.Level == TraceLevelNone || dt.Config.Level == "" {
		return
	}
	dt.Feedback = append(dt.Feedback, record)
}

// RecordAssessment appends a per-tick assessment when the level asks for it.
func (dt *DecisionTrace) RecordAssessment(record AssessmentRecord) {
	if dt.Config.Level != TraceLevelAssessments {
		return
	}
	dt.Assessments = append(dt.Assessments, record)
}
