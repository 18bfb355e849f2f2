package decision

import "math"

const (
	// SourceCap bounds how many grounding sources still add confidence.
	SourceCap = 3
	// GuardrailFloor is the value forced whenever the guardrail fired.
	GuardrailFloor = 0.05
	// DefaultThreshold applies when a tenant has not configured one.
	DefaultThreshold = 0.6

	minThreshold = 0.1
	maxThreshold = 1.0
)

// Confidence is a score in [0,1] plus the inputs that produced it.
type Confidence struct {
	Value   float64
	Factors Factors
}

// Factors records what contributed to a confidence value.
type Factors struct {
	SourceCount        int  `json:"source_count"`
	CountedSources     int  `json:"counted_sources"`
	GuardrailTriggered bool `json:"guardrail_triggered"`
}

// Score is 1 - 0.5^min(n, cap): each additional source halves the remaining
// doubt. A guardrail trigger pins the value to GuardrailFloor.
func Score(sourceCount int, guardrailTriggered bool) Confidence {
	if sourceCount < 0 {
		sourceCount = 0
	}
	counted := sourceCount
	if counted > SourceCap {
		counted = SourceCap
	}
	c := Confidence{Factors: Factors{
		SourceCount:        sourceCount,
		CountedSources:     counted,
		GuardrailTriggered: guardrailTriggered,
	}}
	if guardrailTriggered {
		c.Value = GuardrailFloor
		return c
	}
	c.Value = 1 - math.Pow(0.5, float64(counted))
	return c
}

// ClampThreshold keeps tenant thresholds above the guardrail floor.
func ClampThreshold(threshold float64) float64 {
	if math.IsNaN(threshold) || threshold == 0 {
		return DefaultThreshold
	}
	if threshold < minThreshold {
		return minThreshold
	}
	if threshold > maxThreshold {
		return maxThreshold
	}
	return threshold
}
