package narrative

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/edusignal/exam-intel/internal/model"
)

// FallbackProvider is the provenance name recorded for templated output.
const FallbackProvider = "template"

// FallbackSubjectSummary builds the deterministic templated summary used when
// the collaborator fails, times out, or violates the schema. Confidence is
// pinned to low: templated prose never claims more certainty than a failed
// generation would.
func FallbackSubjectSummary(in model.SubjectInsight) *model.SubjectNarrative {
	return &model.SubjectNarrative{
		StudentID: in.StudentID,
		Grade:     in.Grade,
		Subject:   in.Subject,
		PerformanceSummary: fmt.Sprintf(
			"In %s the analysis identified: %s. The underlying signal is %s with %s urgency.",
			in.Subject, strings.ToLower(in.PrimaryIssue), in.SummarySignal, in.Urgency,
		),
		ImprovementPlan: fmt.Sprintf(
			"Recommended focus: %s. Continue reviewing core concepts regularly and seek "+
				"clarification on challenging topics.",
			strings.ToLower(in.RecommendedFocus),
		),
		MotivationNote: "Progress is built through consistency. With steady effort and support, " +
			"meaningful improvement is achievable.",
		Confidence: model.ConfidenceLow,
		Provider:   FallbackProvider,
		Fallback:   true,
	}
}

// FallbackOverview builds the deterministic templated cross-subject overview.
func FallbackOverview(req OverviewRequest) *Overview {
	var strengths, focus []string
	intervention := 0
	for _, in := range req.Insights {
		if in.RiskLevel == model.RiskLow && in.Urgency == model.UrgencyLow {
			strengths = append(strengths, in.Subject)
		} else {
			focus = append(focus, in.Subject)
		}
		if in.TeacherIntervention {
			intervention++
		}
	}
	sort.Strings(strengths)
	sort.Strings(focus)

	summary := fmt.Sprintf("Across %d subjects, %d show no major concern and %d need attention.",
		len(req.Insights), len(strengths), len(focus))
	for _, p := range req.Patterns {
		summary += fmt.Sprintf(" A recurring %s pattern spans %s.",
			strings.ReplaceAll(p.RootCause, "_", " "), strings.Join(p.Subjects, ", "))
	}

	keyStrengths := "No subject currently stands out as a clear strength."
	if len(strengths) > 0 {
		keyStrengths = "Consistent, low-risk performance in " + strings.Join(strengths, ", ") + "."
	}

	areas := "No subject currently needs focused improvement."
	if len(focus) > 0 {
		areas = "Focused improvement needed in " + strings.Join(focus, ", ") + "."
	}

	next := "Maintain the current study routine and keep exam preparation steady."
	if intervention > 0 {
		next = fmt.Sprintf("Arrange teacher support for the %d flagged subject(s) and follow the recommended focus areas.", intervention)
	} else if len(focus) > 0 {
		next = "Follow the per-subject focus areas and build a consistent revision schedule."
	}

	return &Overview{
		OverallSummary: summary,
		KeyStrengths:   keyStrengths,
		AreasToImprove: areas,
		NextSteps:      next,
		Confidence:     model.ConfidenceLow,
	}
}

// FallbackGenerator implements Generator purely from templates, for runs with
// narrative generation disabled and for tests.
type FallbackGenerator struct{}

func (FallbackGenerator) Provider() string { return FallbackProvider }

func (FallbackGenerator) SubjectSummary(_ context.Context, in model.SubjectInsight) (*model.SubjectNarrative, error) {
	return FallbackSubjectSummary(in), nil
}

func (FallbackGenerator) StudentOverview(_ context.Context, req OverviewRequest) (*Overview, error) {
	return FallbackOverview(req), nil
}
