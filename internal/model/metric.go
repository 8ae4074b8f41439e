package model

import "time"

// Trend describes score direction over a subject's ordered exam sequence.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	// TrendInsufficient marks a sequence too short to fit a direction.
	// It is an explicit state, never a zero masquerading as "stable".
	TrendInsufficient Trend = "insufficient_data"
)

// VolatilityLevel buckets score dispersion.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityMedium VolatilityLevel = "medium"
	VolatilityHigh   VolatilityLevel = "high"
	// VolatilityUndetermined marks a single-exam history.
	VolatilityUndetermined VolatilityLevel = "undetermined"
)

// Band is the categorical performance bucket from average score.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// RiskLevel is the tiered academic risk flag.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ConfidenceLevel reflects the statistical sufficiency of the underlying data.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Rank orders confidence levels so aggregates can take a minimum.
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// MinConfidence returns the weaker of two confidence levels.
func MinConfidence(a, b ConfidenceLevel) ConfidenceLevel {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// SubjectMetric is the aggregate statistics for one (student, subject) pair,
// recomputed wholesale on every analyzer run. Optional statistics that need
// at least two exams (volatility, mock/real gap) are nil rather than zero so
// no sentinel value leaks downstream.
type SubjectMetric struct {
	StudentID string `json:"student_id"`
	Grade     int    `json:"grade"`
	Subject   string `json:"subject"`

	AttemptCount int     `json:"attempt_count"`
	AverageScore float64 `json:"average_score"`
	LatestScore  float64 `json:"latest_score"`
	FirstScore   float64 `json:"first_score"`
	RecentAvg    float64 `json:"recent_avg_score"`

	FirstDate  time.Time `json:"first_date"`
	LatestDate time.Time `json:"latest_date"`
	SpanDays   int       `json:"span_days"`

	Trend               Trend    `json:"trend"`
	ImprovementVelocity float64  `json:"improvement_velocity"`
	Consistency         float64  `json:"consistency_score"`
	Volatility          *float64 `json:"volatility,omitempty"`
	MockRealGap         *float64 `json:"mock_vs_real_gap,omitempty"`

	VolatilityLevel VolatilityLevel `json:"volatility_level"`
	PerformanceBand Band            `json:"performance_band"`
	RiskFlag        RiskLevel       `json:"risk_flag"`
	Confidence      ConfidenceLevel `json:"data_confidence"`
}

// Key identifies the metric's (student, subject) group.
func (m SubjectMetric) Key() string {
	return m.StudentID + "/" + m.Subject
}
