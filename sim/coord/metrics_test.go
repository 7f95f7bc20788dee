package coord

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/internal/testutil"
)

func TestMetrics_RiskStatistics(t *testing.T) {
	m := NewMetrics(1.5)
	for i := 1; i <= 10; i++ {
		m.observe(State{RiskScore: float64(i) / 10})
	}

	assert.Equal(t, 10, m.Assessments)
	assert.InDelta(t, 0.55, m.MeanRisk(), 1e-9)
	assert.InDelta(t, 0.5, m.RiskQuantile(0.5), 1e-9)
	assert.InDelta(t, 1.0, m.RiskQuantile(0.95), 1e-9)
}

func TestMetrics_EmptyIsZero(t *testing.T) {
	m := NewMetrics(1.5)
	assert.Zero(t, m.MeanRisk())
	assert.Zero(t, m.RiskQuantile(0.95))
	assert.True(t, math.IsInf(m.MinHumanDistance, 1))
}

func TestMetrics_NearMisses(t *testing.T) {
	m := NewMetrics(1.5)
	for _, d := range []float64{4, 1.49, 1.5, 0.8} {
		m.observe(State{NearestHumanDistance: testutil.Float(d)})
	}
	m.observe(State{})

	assert.Equal(t, 2, m.NearMisses)
	assert.Equal(t, 0.8, m.MinHumanDistance)
}

func TestMetrics_RiskWindowIsBounded(t *testing.T) {
	m := NewMetrics(1.5)
	for i := 0; i < maxRiskSamples+10; i++ {
		m.observe(State{RiskScore: 1})
	}
	assert.Len(t, m.riskScores, maxRiskSamples)
	assert.Equal(t, 10, m.next)
}

func TestMetrics_Print(t *testing.T) {
	m := NewMetrics(1.5)
	m.Ticks = 3
	m.observe(State{RiskScore: 0.75, NearestHumanDistance: testutil.Float(1.0)})
	m.recordDecision(Decision{Action: sim.ActionStop})
	m.recordDecision(Decision{Action: sim.ActionContinue})

	var buf bytes.Buffer
	m.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "=== Coordination Metrics ===")
	assert.Contains(t, out, "Ticks Processed      : 3")
	assert.Contains(t, out, "Decisions            : 2")
	assert.Contains(t, out, "STOP")
	assert.NotContains(t, out, "SLOW")
	assert.Contains(t, out, "P95 Risk             : 0.750")
	assert.Contains(t, out, "Min Human Distance   : 1.00 m")
	assert.Contains(t, out, "Near Misses          : 1")
}
