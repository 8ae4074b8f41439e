package analyze

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadThresholds_EmptyPathUsesDefaults(t *testing.T) {
	got, err := LoadThresholds("")
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), got)
}

func TestLoadThresholds_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	content := `
thresholds:
  band:
    low_below: 50
    medium_below: 75
  confidence:
    high_at_least: 4
    medium_at_least: 2
    span_bonus_days: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadThresholds(path)
	require.NoError(t, err)

	assert.Equal(t, 50.0, got.Band.LowBelow)
	assert.Equal(t, 75.0, got.Band.MediumBelow)
	assert.Equal(t, 4, got.Confidence.HighAtLeast)
	assert.Equal(t, 30, got.Confidence.SpanBonusDays)

	// Untouched sections keep the defaults.
	assert.Equal(t, DefaultThresholds().Trend, got.Trend)
	assert.Equal(t, DefaultThresholds().Volatility, got.Volatility)
	assert.Equal(t, DefaultThresholds().RecentWindow, got.RecentWindow)
}

func TestLoadThresholds_MissingFile(t *testing.T) {
	_, err := LoadThresholds(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadThresholds_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds: [not a map"), 0o644))

	_, err := LoadThresholds(path)
	assert.Error(t, err)
}
