// Package pipeline orchestrates the exam analytics stages: validate,
// analyze, explain, narrate, consolidate. Each run recomputes every derived
// table from the raw records, so reruns over the same input are idempotent.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edusignal/exam-intel/internal/analyze"
	"github.com/edusignal/exam-intel/internal/config"
	"github.com/edusignal/exam-intel/internal/consolidate"
	"github.com/edusignal/exam-intel/internal/cost"
	"github.com/edusignal/exam-intel/internal/insight"
	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/internal/narrative"
	"github.com/edusignal/exam-intel/internal/tablestore"
	"github.com/edusignal/exam-intel/internal/validate"
	"github.com/edusignal/exam-intel/pkg/anthropic"
)

// Pipeline wires the analytics stages to the store and the narrative
// collaborator.
type Pipeline struct {
	cfg          *config.Config
	store        tablestore.Store
	analyzer     *analyze.Analyzer
	engine       *insight.Engine
	gen          narrative.Generator
	consolidator *consolidate.Consolidator
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st tablestore.Store,
	analyzer *analyze.Analyzer,
	engine *insight.Engine,
	gen narrative.Generator,
) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		store:        st,
		analyzer:     analyzer,
		engine:       engine,
		gen:          gen,
		consolidator: consolidate.New(gen),
	}
}

// Run executes the full pipeline over the stored raw records and persists
// every derived table plus the run report. A stage failure stops the stages
// that depend on it but the report is still saved.
func (p *Pipeline) Run(ctx context.Context) (*model.PipelineReport, error) {
	report := &model.PipelineReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", report.RunID))
	log.Info("pipeline: starting run")

	trackStage := func(name string, fn func() (int, error)) bool {
		start := time.Now()
		count, err := fn()
		stage := model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: time.Since(start).Milliseconds(),
			Count:    count,
		}
		if err != nil {
			stage.Status = model.StageStatusFailed
			stage.Error = err.Error()
			report.Errors = append(report.Errors, name+": "+err.Error())
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", stage.Duration),
				zap.Error(err),
			)
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", stage.Duration),
				zap.Int("count", count),
			)
		}
		report.Stages = append(report.Stages, stage)
		return err == nil
	}

	skipStage := func(name string) {
		report.Stages = append(report.Stages, model.StageResult{
			Name:   name,
			Status: model.StageStatusSkipped,
		})
	}

	// ===== Stage 1: Validate =====
	var validated []model.ValidatedRecord
	ok := trackStage("validate", func() (int, error) {
		raws, err := p.store.ListRawRecords(ctx)
		if err != nil {
			return 0, err
		}
		report.RawCount = len(raws)

		res := validate.Validate(raws, p.validationRules())
		validated = res.Valid
		report.ValidatedCount = len(res.Valid)
		report.RejectedCount = len(res.Rejects)
		report.RejectsByKind = countRejects(res.Rejects)

		if err := p.store.ReplaceValidated(ctx, res.Valid); err != nil {
			return 0, err
		}
		if err := p.store.ReplaceRejects(ctx, res.Rejects); err != nil {
			return 0, err
		}
		return len(res.Valid), nil
	})
	if !ok {
		return p.finish(ctx, report, log)
	}

	// ===== Stage 2: Analyze =====
	var metrics []model.SubjectMetric
	ok = trackStage("analyze", func() (int, error) {
		metrics = p.analyzer.Analyze(validated)
		report.MetricCount = len(metrics)
		return len(metrics), p.store.ReplaceMetrics(ctx, metrics)
	})
	if !ok {
		return p.finish(ctx, report, log)
	}

	// ===== Stage 3: Insights =====
	var insights []model.SubjectInsight
	ok = trackStage("insights", func() (int, error) {
		insights = p.engine.Explain(metrics)
		report.InsightCount = len(insights)
		return len(insights), p.store.ReplaceInsights(ctx, insights)
	})
	if !ok {
		return p.finish(ctx, report, log)
	}

	// ===== Stage 4: Subject narratives =====
	if p.cfg.Narrative.Enabled {
		trackStage("narratives", func() (int, error) {
			narratives := p.subjectNarratives(ctx, insights, log)
			report.NarrativeCount = len(narratives)
			return len(narratives), p.store.ReplaceNarratives(ctx, narratives)
		})
		p.logNarrativeSpend(log)
	} else {
		skipStage("narratives")
	}

	// ===== Stage 5: Consolidate =====
	trackStage("consolidate", func() (int, error) {
		count, skipped, err := p.consolidateStudents(ctx, insights, metrics)
		report.ConsolidatedCount = count
		report.Skipped = append(report.Skipped, skipped...)
		return count, err
	})

	return p.finish(ctx, report, log)
}

func (p *Pipeline) finish(ctx context.Context, report *model.PipelineReport, log *zap.Logger) (*model.PipelineReport, error) {
	report.FinishedAt = time.Now().UTC()
	if err := p.store.SaveRunReport(ctx, *report); err != nil {
		log.Warn("pipeline: failed to save run report", zap.Error(err))
	}
	log.Info("pipeline: run finished",
		zap.Int("raw", report.RawCount),
		zap.Int("validated", report.ValidatedCount),
		zap.Int("rejected", report.RejectedCount),
		zap.Int("consolidated", report.ConsolidatedCount),
		zap.Int("errors", len(report.Errors)),
	)
	if len(report.Errors) > 0 {
		return report, eris.Errorf("pipeline: %d stage error(s), first: %s", len(report.Errors), report.Errors[0])
	}
	return report, nil
}

func (p *Pipeline) validationRules() validate.Rules {
	rules := validate.DefaultRules()
	if p.cfg.Validation.MinGrade > 0 {
		rules.MinGrade = p.cfg.Validation.MinGrade
	}
	if p.cfg.Validation.MaxGrade > 0 {
		rules.MaxGrade = p.cfg.Validation.MaxGrade
	}
	if p.cfg.Validation.DuplicatePolicy == string(validate.KeepLatest) {
		rules.DuplicatePolicy = validate.KeepLatest
	}
	return rules
}

// subjectNarratives generates one narrative per insight, substituting the
// templated fallback for any failed call. The row limit caps collaborator
// spend on large rosters; rows past it get the fallback directly.
func (p *Pipeline) subjectNarratives(ctx context.Context, insights []model.SubjectInsight, log *zap.Logger) []model.SubjectNarrative {
	limit := p.cfg.Narrative.RowLimit
	narratives := make([]model.SubjectNarrative, 0, len(insights))
	for i, in := range insights {
		if limit > 0 && i >= limit {
			narratives = append(narratives, *narrative.FallbackSubjectSummary(in))
			continue
		}
		n, err := p.gen.SubjectSummary(ctx, in)
		if err != nil {
			log.Warn("pipeline: subject narrative failed, using template",
				zap.String("student_id", in.StudentID),
				zap.String("subject", in.Subject),
				zap.Error(err),
			)
			n = narrative.FallbackSubjectSummary(in)
		}
		narratives = append(narratives, *n)
	}
	return narratives
}

// usageReporter is satisfied by generators that meter their API spend.
type usageReporter interface {
	Usage() anthropic.TokenUsage
	Model() string
}

// logNarrativeSpend reports estimated collaborator cost when the generator
// meters usage. Templated generators report nothing.
func (p *Pipeline) logNarrativeSpend(log *zap.Logger) {
	r, ok := p.gen.(usageReporter)
	if !ok {
		return
	}
	usage := r.Usage()
	calc := cost.NewCalculator(cost.DefaultRates())
	log.Info("pipeline: narrative spend",
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", calc.Claude(r.Model(), int(usage.InputTokens), int(usage.OutputTokens))),
	)
}

// consolidateStudents fans consolidation out across students with bounded
// concurrency. A failing student is skipped and reported, never fatal.
func (p *Pipeline) consolidateStudents(
	ctx context.Context,
	insights []model.SubjectInsight,
	metrics []model.SubjectMetric,
) (int, []model.SkippedStudent, error) {
	groups := consolidate.GroupByStudent(insights, metrics)

	maxConcurrent := p.cfg.Pipeline.MaxConcurrentStudents
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	type outcome struct {
		studentID string
		skip      *model.SkippedStudent
	}
	results := make([]outcome, len(groups))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, sg := range groups {
		g.Go(func() error {
			c, err := p.consolidator.Consolidate(gCtx, sg.StudentID, sg.Insights, sg.Metrics)
			if err != nil {
				zap.L().Warn("pipeline: student consolidation skipped",
					zap.String("student_id", sg.StudentID),
					zap.Error(err),
				)
				results[i] = outcome{studentID: sg.StudentID, skip: &model.SkippedStudent{
					StudentID: sg.StudentID,
					Reason:    err.Error(),
				}}
				return nil
			}
			if err := p.store.UpsertConsolidatedLatest(gCtx, *c); err != nil {
				return eris.Wrapf(err, "pipeline: save consolidation for %s", sg.StudentID)
			}
			if err := p.store.AppendConsolidatedHistory(gCtx, *c); err != nil {
				return eris.Wrapf(err, "pipeline: save consolidation history for %s", sg.StudentID)
			}
			results[i] = outcome{studentID: sg.StudentID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	count := 0
	var skipped []model.SkippedStudent
	for _, r := range results {
		if r.skip != nil {
			skipped = append(skipped, *r.skip)
			continue
		}
		count++
	}
	return count, skipped, nil
}

func countRejects(rejects []model.RejectedRecord) map[model.RejectKind]int {
	if len(rejects) == 0 {
		return nil
	}
	byKind := make(map[model.RejectKind]int, len(rejects))
	for _, r := range rejects {
		byKind[r.Kind]++
	}
	return byKind
}
