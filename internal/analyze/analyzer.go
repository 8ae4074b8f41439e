package analyze

import (
	"sort"

	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/model"
)

// Analyzer computes per-(student, subject) metrics over validated history.
// It is a pure function of its input: identical validated records in the
// same ingestion order produce identical metrics.
type Analyzer struct {
	thresholds Thresholds
}

// New creates an Analyzer with the given thresholds.
func New(t Thresholds) *Analyzer {
	return &Analyzer{thresholds: t}
}

type groupKey struct {
	StudentID string
	Grade     int
	Subject   string
}

// Analyze groups validated records by (student, grade, subject) and derives
// one SubjectMetric per non-empty group. A pair with zero records yields no
// metric at all, not a zero-value one. Output is sorted by key so wholesale
// recomputation is reproducible.
func (a *Analyzer) Analyze(records []model.ValidatedRecord) []model.SubjectMetric {
	groups := make(map[groupKey][]model.ValidatedRecord)
	for _, r := range records {
		k := groupKey{StudentID: r.StudentID, Grade: r.Grade, Subject: r.Subject}
		groups[k] = append(groups[k], r)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StudentID != keys[j].StudentID {
			return keys[i].StudentID < keys[j].StudentID
		}
		if keys[i].Subject != keys[j].Subject {
			return keys[i].Subject < keys[j].Subject
		}
		return keys[i].Grade < keys[j].Grade
	})

	metrics := make([]model.SubjectMetric, 0, len(keys))
	for _, k := range keys {
		metrics = append(metrics, a.analyzeGroup(k, groups[k]))
	}

	zap.L().Debug("analyze: metrics computed",
		zap.Int("records", len(records)),
		zap.Int("metrics", len(metrics)),
	)
	return metrics
}

func (a *Analyzer) analyzeGroup(k groupKey, group []model.ValidatedRecord) model.SubjectMetric {
	t := a.thresholds

	// Chronological order; exams sharing a date fall back to ingestion
	// order, so the record ingested last wins "latest".
	sort.SliceStable(group, func(i, j int) bool {
		if !group[i].ExamDate.Equal(group[j].ExamDate) {
			return group[i].ExamDate.Before(group[j].ExamDate)
		}
		return group[i].Seq < group[j].Seq
	})

	scores := make([]float64, len(group))
	for i, r := range group {
		scores[i] = r.Score
	}

	first, last := group[0], group[len(group)-1]
	spanDays := int(last.ExamDate.Sub(first.ExamDate).Hours() / 24)

	avg := round2(mean(scores))
	trend := trendOf(scores, t.Trend)
	sd, sdOK := stdDev(scores)
	band := bandOf(avg, t.Band)

	m := model.SubjectMetric{
		StudentID: k.StudentID,
		Grade:     k.Grade,
		Subject:   k.Subject,

		AttemptCount: len(group),
		AverageScore: avg,
		LatestScore:  last.Score,
		FirstScore:   first.Score,
		RecentAvg:    recentAverage(scores, t.RecentWindow),

		FirstDate:  first.ExamDate,
		LatestDate: last.ExamDate,
		SpanDays:   spanDays,

		Trend:               trend,
		ImprovementVelocity: improvementVelocity(scores),
		Consistency:         consistency(scores),
		MockRealGap:         mockRealGap(group),

		VolatilityLevel: volatilityLevelOf(sd, sdOK, t.Volatility),
		PerformanceBand: band,
		RiskFlag:        riskOf(band, trend),
		Confidence:      confidenceOf(len(group), spanDays, t.Confidence),
	}
	if sdOK {
		v := round2(sd)
		m.Volatility = &v
	}
	return m
}
