package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/analyze"
	"github.com/edusignal/exam-intel/internal/insight"
	"github.com/edusignal/exam-intel/internal/narrative"
	"github.com/edusignal/exam-intel/internal/pipeline"
	"github.com/edusignal/exam-intel/internal/tablestore"
	anthropicpkg "github.com/edusignal/exam-intel/pkg/anthropic"
)

func initStore(ctx context.Context) (tablestore.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "examintel.db"
		}
		return tablestore.NewSQLite(dsn)
	case "postgres":
		return tablestore.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGenerator() narrative.Generator {
	if !cfg.Narrative.Enabled || cfg.Anthropic.Key == "" {
		if cfg.Narrative.Enabled {
			zap.L().Warn("narrative enabled but no API key set, using templated summaries (EXAMINTEL_ANTHROPIC_KEY)")
		}
		return narrative.FallbackGenerator{}
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return narrative.NewClaudeGenerator(client, narrative.ClaudeOptions{
		Model:             cfg.Anthropic.Model,
		Timeout:           time.Duration(cfg.Narrative.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Narrative.MaxRetries,
		RequestsPerSecond: cfg.Narrative.RequestsPerSecond,
	})
}

func loadThresholds() (analyze.Thresholds, error) {
	if cfg.Analytics.ThresholdsFile == "" {
		return analyze.DefaultThresholds(), nil
	}
	t, err := analyze.LoadThresholds(cfg.Analytics.ThresholdsFile)
	if err != nil {
		return analyze.Thresholds{}, eris.Wrap(err, "load thresholds file")
	}
	return t, nil
}

// pipelineEnv bundles everything a command needs to run pipeline stages.
type pipelineEnv struct {
	Store    tablestore.Store
	Analyzer *analyze.Analyzer
	Engine   *insight.Engine
	Gen      narrative.Generator
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	thresholds, err := loadThresholds()
	if err != nil {
		st.Close()
		return nil, err
	}

	analyzer := analyze.New(thresholds)
	engine := insight.NewEngine(nil, insight.DefaultConfig())
	gen := initGenerator()

	return &pipelineEnv{
		Store:    st,
		Analyzer: analyzer,
		Engine:   engine,
		Gen:      gen,
		Pipeline: pipeline.New(cfg, st, analyzer, engine, gen),
	}, nil
}
