package insight

import (
	"github.com/edusignal/exam-intel/internal/model"
)

// Outcome is the classification a rule assigns when it matches.
type Outcome struct {
	PrimaryIssue string        `json:"primary_issue"`
	RootCause    string        `json:"root_cause"`
	Urgency      model.Urgency `json:"urgency"`
}

// Rule pairs a named predicate with its outcome. Rules are evaluated in
// table order and the first match wins; the order is load-bearing, not
// coincidental, so each rule can be unit-tested in isolation.
type Rule struct {
	Name    string                           `json:"name"`
	When    string                           `json:"when"` // human-readable condition, for the rules listing
	Match   func(m model.SubjectMetric) bool `json:"-"`
	Outcome Outcome                          `json:"outcome"`
}

// Root cause categories.
const (
	CauseConceptualGaps    = "conceptual_gaps"
	CauseWeakFoundations   = "weak_foundations"
	CauseInconsistentPrep  = "inconsistent_preparation"
	CauseExamPressure      = "exam_pressure"
	CauseHealthyPattern    = "healthy_pattern"
)

// DefaultRules returns the ordered primary-issue rule table. The final rule
// is a catch-all so every metric maps to exactly one outcome.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "low_and_declining",
			When: "performance_band == low AND trend == declining",
			Match: func(m model.SubjectMetric) bool {
				return m.PerformanceBand == model.BandLow && m.Trend == model.TrendDeclining
			},
			Outcome: Outcome{
				PrimaryIssue: "Consistently low and declining performance",
				RootCause:    CauseConceptualGaps,
				Urgency:      model.UrgencyHigh,
			},
		},
		{
			Name: "low_average",
			When: "performance_band == low",
			Match: func(m model.SubjectMetric) bool {
				return m.PerformanceBand == model.BandLow
			},
			Outcome: Outcome{
				PrimaryIssue: "Low overall performance",
				RootCause:    CauseWeakFoundations,
				Urgency:      model.UrgencyMedium,
			},
		},
		{
			Name: "declining",
			When: "trend == declining",
			Match: func(m model.SubjectMetric) bool {
				return m.Trend == model.TrendDeclining
			},
			Outcome: Outcome{
				PrimaryIssue: "Performance regression",
				RootCause:    CauseInconsistentPrep,
				Urgency:      model.UrgencyMedium,
			},
		},
		{
			Name:  "healthy",
			When:  "always (catch-all)",
			Match: func(m model.SubjectMetric) bool { return true },
			Outcome: Outcome{
				PrimaryIssue: "No major academic concern",
				RootCause:    CauseHealthyPattern,
				Urgency:      model.UrgencyLow,
			},
		},
	}
}

// classify returns the first matching rule. The catch-all guarantees a match.
func classify(rules []Rule, m model.SubjectMetric) Rule {
	for _, r := range rules {
		if r.Match(m) {
			return r
		}
	}
	return rules[len(rules)-1]
}
