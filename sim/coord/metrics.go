// Tracks run-wide coordination statistics for end-of-run reporting.

package coord

import (
	"fmt"
	"io"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/JasonLKelly/cosense-cloud/sim"
)

// maxRiskSamples bounds the risk-score window kept for quantiles.
const maxRiskSamples = 1 << 16

// Metrics aggregates statistics about a coordination run.
type Metrics struct {
	Ticks            int64              // frames processed
	Assessments      int                // robot samples scored
	Decisions        map[sim.Action]int // emitted decisions per action
	FeedbackFailures int                // decisions the simulator never received
	NearMisses       int                // assessments with a human inside the near-miss radius
	MinHumanDistance float64            // m, +Inf until a human has been seen

	nearMissRadius float64
	riskScores     []float64 // ring buffer of the latest maxRiskSamples scores
	next           int
}

// NewMetrics returns empty metrics counting near misses inside radius metres.
func NewMetrics(radius float64) *Metrics {
	return &Metrics{
		Decisions:        make(map[sim.Action]int),
		MinHumanDistance: math.Inf(1),
		nearMissRadius:   radius,
	}
}

func (m *Metrics) observe(s State) {
	m.Assessments++
	if len(m.riskScores) < maxRiskSamples {
		m.riskScores = append(m.riskScores, s.RiskScore)
	} else {
		m.riskScores[m.next] = s.RiskScore
		m.next = (m.next + 1) % maxRiskSamples
	}
	if s.NearestHumanDistance == nil {
		return
	}
	d := *s.NearestHumanDistance
	m.MinHumanDistance = math.Min(m.MinHumanDistance, d)
	if d < m.nearMissRadius {
		m.NearMisses++
	}
}

func (m *Metrics) recordDecision(d Decision) {
	m.Decisions[d.Action]++
}

// TotalDecisions returns the number of emitted decisions.
func (m *Metrics) TotalDecisions() int {
	n := 0
	for _, c := range m.Decisions {
		n += c
	}
	return n
}

// MeanRisk returns the mean risk score over the retained window.
func (m *Metrics) MeanRisk() float64 {
	if len(m.riskScores) == 0 {
		return 0
	}
	return stat.Mean(m.riskScores, nil)
}

// RiskQuantile returns the empirical p-quantile (0..1) of the retained risk scores.
func (m *Metrics) RiskQuantile(p float64) float64 {
	if len(m.riskScores) == 0 {
		return 0
	}
	sorted := slices.Clone(m.riskScores)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Print writes the end-of-run report.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Coordination Metrics ===")
	fmt.Fprintf(w, "Ticks Processed      : %d\n", m.Ticks)
	fmt.Fprintf(w, "Assessments          : %d\n", m.Assessments)
	fmt.Fprintf(w, "Decisions            : %d\n", m.TotalDecisions())
	for _, a := range []sim.Action{sim.ActionContinue, sim.ActionSlow, sim.ActionStop, sim.ActionReroute} {
		if n := m.Decisions[a]; n > 0 {
			fmt.Fprintf(w, "  %-18s : %d\n", a, n)
		}
	}
	fmt.Fprintf(w, "Feedback Failures    : %d\n", m.FeedbackFailures)
	if m.Assessments > 0 {
		fmt.Fprintf(w, "Mean Risk            : %.3f\n", m.MeanRisk())
		fmt.Fprintf(w, "P95 Risk             : %.3f\n", m.RiskQuantile(0.95))
	}
	if !math.IsInf(m.MinHumanDistance, 1) {
		fmt.Fprintf(w, "Min Human Distance   : %.2f m\n", m.MinHumanDistance)
	}
	fmt.Fprintf(w, "Near Misses          : %d\n", m.NearMisses)
}
