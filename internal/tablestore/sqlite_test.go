package tablestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusignal/exam-intel/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RawRecordsAppend(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	batch1 := []model.ExamRecord{
		{StudentID: "S001", Subject: "Math", Score: "70", SourceRow: 2},
	}
	batch2 := []model.ExamRecord{
		{StudentID: "S002", Subject: "Physics", Score: "55", SourceRow: 2},
	}

	require.NoError(t, st.AppendRawRecords(ctx, batch1))
	require.NoError(t, st.AppendRawRecords(ctx, batch2))

	got, err := st.ListRawRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Appends accumulate in insertion order.
	assert.Equal(t, "S001", got[0].StudentID)
	assert.Equal(t, "S002", got[1].StudentID)
}

func TestSQLite_ReplaceValidatedOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := []model.ValidatedRecord{
		{StudentID: "S001", Subject: "Math", Score: 70, ExamDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{StudentID: "S002", Subject: "Math", Score: 80, ExamDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, st.ReplaceValidated(ctx, first))

	second := []model.ValidatedRecord{
		{StudentID: "S003", Subject: "Art", Score: 90, ExamDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, st.ReplaceValidated(ctx, second))

	got, err := st.ListValidated(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "S003", got[0].StudentID)
	assert.Equal(t, 90.0, got[0].Score)
}

func TestSQLite_RejectsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rejects := []model.RejectedRecord{
		{
			Record: model.ExamRecord{StudentID: "S001", Grade: "99", SourceRow: 4},
			Kind:   model.RejectBadGrade,
			Reason: `grade "99" outside 1-12`,
		},
	}
	require.NoError(t, st.ReplaceRejects(ctx, rejects))

	got, err := st.ListRejects(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.RejectBadGrade, got[0].Kind)
	assert.Equal(t, 4, got[0].Record.SourceRow)
	assert.Equal(t, rejects[0].Reason, got[0].Reason)
}

func TestSQLite_MetricsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	vol := 6.24
	gap := -10.0
	metrics := []model.SubjectMetric{
		{
			StudentID:       "S001",
			Subject:         "Math",
			AttemptCount:    3,
			AverageScore:    61.67,
			Volatility:      &vol,
			MockRealGap:     &gap,
			Trend:           model.TrendImproving,
			PerformanceBand: model.BandMedium,
			RiskFlag:        model.RiskLow,
			Confidence:      model.ConfidenceMedium,
		},
		{
			StudentID:       "S001",
			Subject:         "Art",
			AttemptCount:    1,
			Trend:           model.TrendInsufficient,
			VolatilityLevel: model.VolatilityUndetermined,
		},
	}
	require.NoError(t, st.ReplaceMetrics(ctx, metrics))

	got, err := st.ListMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Listed sorted by student then subject.
	assert.Equal(t, "Art", got[0].Subject)
	assert.Nil(t, got[0].Volatility)

	require.NotNil(t, got[1].Volatility)
	assert.Equal(t, 6.24, *got[1].Volatility)
	require.NotNil(t, got[1].MockRealGap)
	assert.Equal(t, -10.0, *got[1].MockRealGap)
}

func TestSQLite_ConsolidatedLatestUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := model.StudentConsolidation{
		StudentID:      "S001",
		GenerationID:   "gen-1",
		OverallSummary: "first",
		GeneratedAt:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.UpsertConsolidatedLatest(ctx, first))
	require.NoError(t, st.AppendConsolidatedHistory(ctx, first))

	second := first
	second.GenerationID = "gen-2"
	second.OverallSummary = "second"
	second.GeneratedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertConsolidatedLatest(ctx, second))
	require.NoError(t, st.AppendConsolidatedHistory(ctx, second))

	// Latest holds exactly one row per student, the newest.
	got, err := st.GetConsolidatedLatest(ctx, "S001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gen-2", got.GenerationID)
	assert.Equal(t, "second", got.OverallSummary)

	all, err := st.ListConsolidatedLatest(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// History keeps every generation in order.
	history, err := st.ListConsolidatedHistory(ctx, "S001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "gen-1", history[0].GenerationID)
	assert.Equal(t, "gen-2", history[1].GenerationID)
}

func TestSQLite_GetConsolidatedLatest_Missing(t *testing.T) {
	st := newTestStore(t)

	got, err := st.GetConsolidatedLatest(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_RunReports(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		report := model.PipelineReport{
			RunID:     fmt.Sprintf("run-%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			RawCount:  10 * i,
		}
		require.NoError(t, st.SaveRunReport(ctx, report))
	}

	// Newest first.
	got, err := st.ListRunReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "run-2", got[0].RunID)

	limited, err := st.ListRunReports(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_NarrativesRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	narratives := []model.SubjectNarrative{
		{
			StudentID:          "S001",
			Subject:            "Math",
			PerformanceSummary: "steady",
			Provider:           "template",
			Fallback:           true,
			Confidence:         model.ConfidenceLow,
		},
	}
	require.NoError(t, st.ReplaceNarratives(ctx, narratives))

	got, err := st.ListNarratives(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Fallback)
	assert.Equal(t, "template", got[0].Provider)
}
