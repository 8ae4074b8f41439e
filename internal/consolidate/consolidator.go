package consolidate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/insight"
	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/internal/narrative"
)

// ErrNoInsights marks a student with nothing to consolidate. Callers skip
// and log it; it never aborts the rest of the batch.
var ErrNoInsights = eris.New("consolidate: no insights for student")

// Consolidator synthesizes one student's subject insights into a
// cross-subject consolidation.
type Consolidator struct {
	gen narrative.Generator
	now func() time.Time
}

// New creates a Consolidator using the given narrative generator.
func New(gen narrative.Generator) *Consolidator {
	return &Consolidator{gen: gen, now: time.Now}
}

// WithClock overrides the generation timestamp source, for tests.
func (c *Consolidator) WithClock(now func() time.Time) *Consolidator {
	c.now = now
	return c
}

// Consolidate builds the consolidation for one student from that student's
// insights and metrics. The narrative collaborator may fail or time out; the
// templated fallback keeps the result complete and deterministic, and the
// reported confidence never exceeds the weakest contributing subject.
func (c *Consolidator) Consolidate(
	ctx context.Context,
	studentID string,
	insights []model.SubjectInsight,
	metrics []model.SubjectMetric,
) (*model.StudentConsolidation, error) {
	if len(insights) == 0 {
		return nil, ErrNoInsights
	}

	grade := insights[0].Grade
	patterns := detectPatterns(insights)
	strong, focus := partitionSubjects(metrics)
	floor := confidenceFloor(metrics)

	req := narrative.OverviewRequest{
		StudentID: studentID,
		Grade:     grade,
		Insights:  insights,
		Metrics:   metrics,
		Patterns:  patterns,
	}

	provider := c.gen.Provider()
	fallback := provider == narrative.FallbackProvider
	overview, err := c.gen.StudentOverview(ctx, req)
	if err != nil {
		zap.L().Warn("consolidate: narrative generation failed, using template",
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		overview = narrative.FallbackOverview(req)
		provider = narrative.FallbackProvider
		fallback = true
	}

	intervention := false
	for _, in := range insights {
		if in.TeacherIntervention {
			intervention = true
			break
		}
	}

	return &model.StudentConsolidation{
		StudentID:    studentID,
		Grade:        grade,
		GenerationID: uuid.New().String(),

		OverallSummary:   overview.OverallSummary,
		KeyStrengths:     overview.KeyStrengths,
		ImprovementAreas: overview.AreasToImprove,
		NextSteps:        overview.NextSteps,

		Patterns:         patterns,
		StrongSubjects:   strong,
		FocusSubjects:    focus,
		SubjectCount:     len(insights),
		InterventionNeed: intervention,

		Confidence:  model.MinConfidence(overview.Confidence, floor),
		Provider:    provider,
		Fallback:    fallback,
		GeneratedAt: c.now().UTC(),
	}, nil
}

// detectPatterns surfaces root causes recurring across at least two
// subjects. A single-subject issue stays subject-specific by definition.
func detectPatterns(insights []model.SubjectInsight) []model.Pattern {
	byCause := make(map[string][]model.SubjectInsight)
	for _, in := range insights {
		if in.RootCause == insight.CauseHealthyPattern {
			continue
		}
		byCause[in.RootCause] = append(byCause[in.RootCause], in)
	}

	causes := make([]string, 0, len(byCause))
	for cause, members := range byCause {
		if len(members) >= 2 {
			causes = append(causes, cause)
		}
	}
	sort.Strings(causes)

	patterns := make([]model.Pattern, 0, len(causes))
	for _, cause := range causes {
		members := byCause[cause]
		subjects := make([]string, 0, len(members))
		urgency := model.UrgencyLow
		for _, in := range members {
			subjects = append(subjects, in.Subject)
			if in.Urgency.Rank() > urgency.Rank() {
				urgency = in.Urgency
			}
		}
		sort.Strings(subjects)
		patterns = append(patterns, model.Pattern{
			RootCause: cause,
			Subjects:  subjects,
			Urgency:   urgency,
		})
	}
	return patterns
}

// partitionSubjects splits subjects into strengths and improvement areas by
// performance band and risk flag.
func partitionSubjects(metrics []model.SubjectMetric) (strong, focus []string) {
	for _, m := range metrics {
		switch {
		case m.PerformanceBand == model.BandHigh && m.RiskFlag == model.RiskLow:
			strong = append(strong, m.Subject)
		case m.RiskFlag != model.RiskLow || m.PerformanceBand == model.BandLow:
			focus = append(focus, m.Subject)
		}
	}
	sort.Strings(strong)
	sort.Strings(focus)
	return strong, focus
}

// confidenceFloor is the weakest constituent confidence; a consolidation is
// never reported above it.
func confidenceFloor(metrics []model.SubjectMetric) model.ConfidenceLevel {
	if len(metrics) == 0 {
		return model.ConfidenceLow
	}
	floor := model.ConfidenceHigh
	for _, m := range metrics {
		floor = model.MinConfidence(floor, m.Confidence)
	}
	return floor
}

// Describe returns a short log-friendly rendering of a pattern list.
func Describe(patterns []model.Pattern) string {
	if len(patterns) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		parts = append(parts, p.RootCause+"("+strings.Join(p.Subjects, ",")+")")
	}
	return strings.Join(parts, "; ")
}
