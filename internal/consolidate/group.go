package consolidate

import (
	"sort"

	"github.com/edusignal/exam-intel/internal/model"
)

// StudentGroup is one student's insights and metrics, paired for
// consolidation.
type StudentGroup struct {
	StudentID string
	Insights  []model.SubjectInsight
	Metrics   []model.SubjectMetric
}

// GroupByStudent pairs insights with metrics per student, ordered by
// student ID for reproducible batch runs. Students with metrics but no
// insights are omitted; consolidation starts from insights.
func GroupByStudent(insights []model.SubjectInsight, metrics []model.SubjectMetric) []StudentGroup {
	insightsByStudent := make(map[string][]model.SubjectInsight)
	for _, in := range insights {
		insightsByStudent[in.StudentID] = append(insightsByStudent[in.StudentID], in)
	}
	metricsByStudent := make(map[string][]model.SubjectMetric)
	for _, m := range metrics {
		metricsByStudent[m.StudentID] = append(metricsByStudent[m.StudentID], m)
	}

	ids := make([]string, 0, len(insightsByStudent))
	for id := range insightsByStudent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([]StudentGroup, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, StudentGroup{
			StudentID: id,
			Insights:  insightsByStudent[id],
			Metrics:   metricsByStudent[id],
		})
	}
	return groups
}
