package insight

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/model"
)

// Config holds the engine's named thresholds.
type Config struct {
	// MockGapAlert flags exam pressure when the mock-vs-real gap is below
	// this value (real scores trailing mock scores).
	MockGapAlert float64
	// InterventionAt is the urgency at which teacher intervention is set.
	InterventionAt model.Urgency
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		MockGapAlert:   -5,
		InterventionAt: model.UrgencyHigh,
	}
}

// Engine derives explainable insights from subject metrics through the
// ordered rule table. Explain is a pure function of its input: no
// randomness, no external calls, identical metric in, identical insight out.
type Engine struct {
	rules []Rule
	cfg   Config
}

// NewEngine creates an Engine. A nil rules slice uses the default table.
func NewEngine(rules []Rule, cfg Config) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, cfg: cfg}
}

// Rules exposes the ordered rule table for auditing.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Explain produces one insight per metric, preserving input order.
func (e *Engine) Explain(metrics []model.SubjectMetric) []model.SubjectInsight {
	insights := make([]model.SubjectInsight, 0, len(metrics))
	for _, m := range metrics {
		insights = append(insights, e.explainOne(m))
	}
	zap.L().Debug("insight: explain complete", zap.Int("insights", len(insights)))
	return insights
}

func (e *Engine) explainOne(m model.SubjectMetric) model.SubjectInsight {
	rule := classify(e.rules, m)

	urgency := rule.Outcome.Urgency
	// Risk combines band and trend; a high flag escalates regardless of
	// which rule matched.
	if m.RiskFlag == model.RiskHigh && model.UrgencyHigh.Rank() > urgency.Rank() {
		urgency = model.UrgencyHigh
	}

	return model.SubjectInsight{
		StudentID: m.StudentID,
		Grade:     m.Grade,
		Subject:   m.Subject,

		RuleName:       rule.Name,
		PrimaryIssue:   rule.Outcome.PrimaryIssue,
		SecondaryIssue: e.secondaryIssue(m),
		RootCause:      rule.Outcome.RootCause,

		RiskLevel: m.RiskFlag,
		Urgency:   urgency,

		RecommendedFocus:    focusArea(urgency),
		TeacherIntervention: urgency.Rank() >= e.cfg.InterventionAt.Rank(),

		Evidence:      e.BuildEvidence(m),
		Confidence:    m.Confidence,
		SummarySignal: fmt.Sprintf("%s performer with %s risk", m.PerformanceBand, m.RiskFlag),
	}
}

func (e *Engine) secondaryIssue(m model.SubjectMetric) string {
	if m.VolatilityLevel == model.VolatilityHigh {
		return "Highly inconsistent performance"
	}
	if m.MockRealGap != nil && *m.MockRealGap < e.cfg.MockGapAlert {
		return "Exam pressure affecting real exam performance"
	}
	return "None observed"
}

// focusArea is templated only on urgency, which is itself derived from the
// metric; it never introduces a number the metric does not carry.
func focusArea(u model.Urgency) string {
	switch u {
	case model.UrgencyHigh:
		return "Immediate concept revision and guided practice"
	case model.UrgencyMedium:
		return "Structured revision and consistency building"
	default:
		return "Maintain current learning approach"
	}
}

// BuildEvidence renders the ordered evidence statements. Each statement cites
// concrete metric fields verbatim, so VerifyEvidence can mechanically rebuild
// and compare them.
func (e *Engine) BuildEvidence(m model.SubjectMetric) []string {
	evidence := []string{
		fmt.Sprintf("Average score is %.2f, classified as %s", m.AverageScore, m.PerformanceBand),
		fmt.Sprintf("Score moved from %.2f to %.2f across %d attempts", m.FirstScore, m.LatestScore, m.AttemptCount),
		fmt.Sprintf("Score trend is %q over a span of %d days", m.Trend, m.SpanDays),
	}

	if m.Volatility != nil && m.VolatilityLevel == model.VolatilityHigh {
		evidence = append(evidence,
			fmt.Sprintf("Score volatility is %.2f, classified as %s", *m.Volatility, m.VolatilityLevel))
	}
	if m.MockRealGap != nil && *m.MockRealGap < e.cfg.MockGapAlert {
		evidence = append(evidence,
			fmt.Sprintf("Mock-vs-real gap is %.2f, indicating exam pressure", *m.MockRealGap))
	}

	evidence = append(evidence,
		fmt.Sprintf("Academic risk flagged %q with %s data confidence", m.RiskFlag, m.Confidence))
	return evidence
}

// VerifyEvidence reports whether every evidence statement in the insight is
// mechanically reconstructable from the metric it explains. This backs the
// groundedness guarantee: no statement may cite a value the metric does not
// hold.
func (e *Engine) VerifyEvidence(in model.SubjectInsight, m model.SubjectMetric) bool {
	rebuilt := e.BuildEvidence(m)
	if len(rebuilt) != len(in.Evidence) {
		return false
	}
	for i := range rebuilt {
		if rebuilt[i] != in.Evidence[i] {
			return false
		}
	}
	return true
}
