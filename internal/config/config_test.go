package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "exam-intel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Empty(t, cfg.Anthropic.Key)

	assert.True(t, cfg.Narrative.Enabled)
	assert.Equal(t, 20, cfg.Narrative.TimeoutSecs)
	assert.Equal(t, 2, cfg.Narrative.MaxRetries)
	assert.Equal(t, 1.0, cfg.Narrative.RequestsPerSecond)
	assert.Zero(t, cfg.Narrative.RowLimit)

	assert.Equal(t, "keep_first", cfg.Validation.DuplicatePolicy)
	assert.Equal(t, 1, cfg.Validation.MinGrade)
	assert.Equal(t, 12, cfg.Validation.MaxGrade)

	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentStudents)
	assert.Equal(t, 30, cfg.Import.FTPTimeoutSecs)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 10, cfg.Monitoring.LookbackRuns)
	assert.Equal(t, 0.2, cfg.Monitoring.RejectRateThreshold)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EXAMINTEL_STORE_DRIVER", "postgres")
	t.Setenv("EXAMINTEL_STORE_DATABASE_URL", "postgres://localhost/exams")
	t.Setenv("EXAMINTEL_NARRATIVE_ENABLED", "false")
	t.Setenv("EXAMINTEL_VALIDATION_DUPLICATE_POLICY", "keep_latest")
	t.Setenv("EXAMINTEL_PIPELINE_MAX_CONCURRENT_STUDENTS", "8")
	t.Setenv("EXAMINTEL_MONITORING_REJECT_RATE_THRESHOLD", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/exams", cfg.Store.DatabaseURL)
	assert.False(t, cfg.Narrative.Enabled)
	assert.Equal(t, "keep_latest", cfg.Validation.DuplicatePolicy)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrentStudents)
	assert.Equal(t, 0.5, cfg.Monitoring.RejectRateThreshold)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}
