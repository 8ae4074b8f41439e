package model

// Urgency is the ordinal priority derived from risk and trend.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Rank orders urgency levels for threshold comparisons.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

// SubjectInsight is the rule-derived, evidence-backed explanation of one
// SubjectMetric. Every field is traceable to the metric it explains; the
// producing rule is recorded by name so the mapping stays auditable.
type SubjectInsight struct {
	StudentID string `json:"student_id"`
	Grade     int    `json:"grade"`
	Subject   string `json:"subject"`

	RuleName       string `json:"rule_name"`
	PrimaryIssue   string `json:"primary_issue"`
	SecondaryIssue string `json:"secondary_issue"`
	RootCause      string `json:"root_cause_category"`

	RiskLevel RiskLevel `json:"academic_risk_level"`
	Urgency   Urgency   `json:"urgency_level"`

	RecommendedFocus    string `json:"recommended_focus_area"`
	TeacherIntervention bool   `json:"teacher_intervention_needed"`

	Evidence      []string        `json:"key_evidence_points"`
	Confidence    ConfidenceLevel `json:"confidence_in_insight"`
	SummarySignal string          `json:"summary_signal"`
}
