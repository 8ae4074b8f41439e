package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusignal/exam-intel/internal/analyze"
	"github.com/edusignal/exam-intel/internal/config"
	"github.com/edusignal/exam-intel/internal/insight"
	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/internal/narrative"
	"github.com/edusignal/exam-intel/internal/tablestore"
)

// memStore is an in-memory Store for pipeline tests. Consolidation writes
// concurrently, so every method locks.
type memStore struct {
	mu sync.Mutex

	raw        []model.ExamRecord
	validated  []model.ValidatedRecord
	rejects    []model.RejectedRecord
	metrics    []model.SubjectMetric
	insights   []model.SubjectInsight
	narratives []model.SubjectNarrative
	latest     map[string]model.StudentConsolidation
	history    []model.StudentConsolidation
	reports    []model.PipelineReport

	failReplaceValidated error
}

func newMemStore() *memStore {
	return &memStore{latest: make(map[string]model.StudentConsolidation)}
}

func (m *memStore) AppendRawRecords(_ context.Context, records []model.ExamRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append(m.raw, records...)
	return nil
}

func (m *memStore) ListRawRecords(context.Context) ([]model.ExamRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ExamRecord(nil), m.raw...), nil
}

func (m *memStore) ReplaceValidated(_ context.Context, records []model.ValidatedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplaceValidated != nil {
		return m.failReplaceValidated
	}
	m.validated = append([]model.ValidatedRecord(nil), records...)
	return nil
}

func (m *memStore) ListValidated(context.Context) ([]model.ValidatedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ValidatedRecord(nil), m.validated...), nil
}

func (m *memStore) ReplaceRejects(_ context.Context, rejects []model.RejectedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects = append([]model.RejectedRecord(nil), rejects...)
	return nil
}

func (m *memStore) ListRejects(context.Context) ([]model.RejectedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RejectedRecord(nil), m.rejects...), nil
}

func (m *memStore) ReplaceMetrics(_ context.Context, metrics []model.SubjectMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append([]model.SubjectMetric(nil), metrics...)
	return nil
}

func (m *memStore) ListMetrics(context.Context) ([]model.SubjectMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SubjectMetric(nil), m.metrics...), nil
}

func (m *memStore) ReplaceInsights(_ context.Context, insights []model.SubjectInsight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append([]model.SubjectInsight(nil), insights...)
	return nil
}

func (m *memStore) ListInsights(context.Context) ([]model.SubjectInsight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SubjectInsight(nil), m.insights...), nil
}

func (m *memStore) ReplaceNarratives(_ context.Context, narratives []model.SubjectNarrative) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narratives = append([]model.SubjectNarrative(nil), narratives...)
	return nil
}

func (m *memStore) ListNarratives(context.Context) ([]model.SubjectNarrative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SubjectNarrative(nil), m.narratives...), nil
}

func (m *memStore) UpsertConsolidatedLatest(_ context.Context, c model.StudentConsolidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[c.StudentID] = c
	return nil
}

func (m *memStore) GetConsolidatedLatest(_ context.Context, studentID string) (*model.StudentConsolidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.latest[studentID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) ListConsolidatedLatest(context.Context) ([]model.StudentConsolidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.StudentConsolidation, 0, len(m.latest))
	for _, c := range m.latest {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) AppendConsolidatedHistory(_ context.Context, c model.StudentConsolidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, c)
	return nil
}

func (m *memStore) ListConsolidatedHistory(_ context.Context, studentID string) ([]model.StudentConsolidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StudentConsolidation
	for _, c := range m.history {
		if c.StudentID == studentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) SaveRunReport(_ context.Context, report model.PipelineReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func (m *memStore) ListRunReports(_ context.Context, limit int) ([]model.PipelineReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.PipelineReport(nil), m.reports...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

var _ tablestore.Store = (*memStore)(nil)

func rosterRecords() []model.ExamRecord {
	return []model.ExamRecord{
		{StudentID: "S001", Grade: "10", Subject: "Math", ExamID: "E1", ExamType: "real", AttemptNumber: "1", Score: "60", MaxScore: "100", ExamDate: "2024-01-10", SourceRow: 2},
		{StudentID: "S001", Grade: "10", Subject: "Math", ExamID: "E2", ExamType: "real", AttemptNumber: "1", Score: "68", MaxScore: "100", ExamDate: "2024-02-10", SourceRow: 3},
		{StudentID: "S001", Grade: "10", Subject: "Math", ExamID: "E3", ExamType: "real", AttemptNumber: "1", Score: "75", MaxScore: "100", ExamDate: "2024-03-10", SourceRow: 4},
		{StudentID: "S002", Grade: "11", Subject: "Art", ExamID: "E1", ExamType: "real", AttemptNumber: "1", Score: "88", MaxScore: "100", ExamDate: "2024-02-01", SourceRow: 5},
		// Grade 99 is out of range and must be quarantined.
		{StudentID: "S003", Grade: "99", Subject: "Math", ExamID: "E1", ExamType: "real", AttemptNumber: "1", Score: "50", MaxScore: "100", ExamDate: "2024-02-01", SourceRow: 6},
	}
}

func newTestPipeline(cfg *config.Config, st tablestore.Store) *Pipeline {
	analyzer := analyze.New(analyze.DefaultThresholds())
	engine := insight.NewEngine(insight.DefaultRules(), insight.DefaultConfig())
	return New(cfg, st, analyzer, engine, narrative.FallbackGenerator{})
}

func TestRun_FullPipeline(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.AppendRawRecords(context.Background(), rosterRecords()))

	cfg := &config.Config{}
	cfg.Narrative.Enabled = true

	p := newTestPipeline(cfg, st)
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 5, report.RawCount)
	assert.Equal(t, 4, report.ValidatedCount)
	assert.Equal(t, 1, report.RejectedCount)
	assert.Equal(t, map[model.RejectKind]int{model.RejectBadGrade: 1}, report.RejectsByKind)
	assert.Equal(t, 2, report.MetricCount)
	assert.Equal(t, 2, report.InsightCount)
	assert.Equal(t, 2, report.NarrativeCount)
	assert.Equal(t, 2, report.ConsolidatedCount)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Errors)

	require.Len(t, report.Stages, 5)
	for _, stage := range report.Stages {
		assert.Equal(t, model.StageStatusComplete, stage.Status, stage.Name)
	}

	// Every derived table is persisted, plus the run report.
	latest, err := st.ListConsolidatedLatest(context.Background())
	require.NoError(t, err)
	assert.Len(t, latest, 2)
	assert.Len(t, st.reports, 1)

	s1, err := st.GetConsolidatedLatest(context.Background(), "S001")
	require.NoError(t, err)
	require.NotNil(t, s1)
	assert.Equal(t, 1, s1.SubjectCount)
}

func TestRun_NarrativesDisabled(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.AppendRawRecords(context.Background(), rosterRecords()))

	cfg := &config.Config{}
	cfg.Narrative.Enabled = false

	report, err := newTestPipeline(cfg, st).Run(context.Background())
	require.NoError(t, err)

	var narrativeStage *model.StageResult
	for i := range report.Stages {
		if report.Stages[i].Name == "narratives" {
			narrativeStage = &report.Stages[i]
		}
	}
	require.NotNil(t, narrativeStage)
	assert.Equal(t, model.StageStatusSkipped, narrativeStage.Status)
	assert.Zero(t, report.NarrativeCount)

	// Consolidation still runs.
	assert.Equal(t, 2, report.ConsolidatedCount)
}

func TestRun_ValidateFailureStopsDownstream(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.AppendRawRecords(context.Background(), rosterRecords()))
	st.failReplaceValidated = assert.AnError

	report, err := newTestPipeline(&config.Config{}, st).Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	require.Len(t, report.Stages, 1)
	assert.Equal(t, "validate", report.Stages[0].Name)
	assert.Equal(t, model.StageStatusFailed, report.Stages[0].Status)
	assert.NotEmpty(t, report.Errors)

	// The report is saved even for a failed run.
	assert.Len(t, st.reports, 1)
	assert.Empty(t, st.metrics)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.AppendRawRecords(context.Background(), rosterRecords()))

	cfg := &config.Config{}
	p := newTestPipeline(cfg, st)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ValidatedCount, second.ValidatedCount)
	assert.Equal(t, first.MetricCount, second.MetricCount)
	assert.Equal(t, first.ConsolidatedCount, second.ConsolidatedCount)

	// Derived tables hold exactly one run's worth of rows; only the history
	// and run log accumulate.
	assert.Len(t, st.validated, 4)
	assert.Len(t, st.metrics, 2)
	latest, err := st.ListConsolidatedLatest(context.Background())
	require.NoError(t, err)
	assert.Len(t, latest, 2)

	history, err := st.ListConsolidatedHistory(context.Background(), "S001")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Len(t, st.reports, 2)
}

func TestRun_NarrativeRowLimit(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.AppendRawRecords(context.Background(), rosterRecords()))

	cfg := &config.Config{}
	cfg.Narrative.Enabled = true
	cfg.Narrative.RowLimit = 1

	report, err := newTestPipeline(cfg, st).Run(context.Background())
	require.NoError(t, err)

	// Rows past the limit still get a templated narrative.
	assert.Equal(t, 2, report.NarrativeCount)
	narratives, err := st.ListNarratives(context.Background())
	require.NoError(t, err)
	require.Len(t, narratives, 2)
	for _, n := range narratives {
		assert.True(t, n.Fallback)
	}
}
