package analyze

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Thresholds holds every cut point the analytic stages evaluate against.
// It is immutable once loaded and passed explicitly into each stage so runs
// with different thresholds are independently testable.
type Thresholds struct {
	Band       BandThresholds       `yaml:"band"`
	Trend      TrendThresholds      `yaml:"trend"`
	Volatility VolatilityThresholds `yaml:"volatility"`
	Confidence ConfidenceThresholds `yaml:"confidence"`

	// RecentWindow is the trailing-exam count for the recent average.
	RecentWindow int `yaml:"recent_window"`
	// MockGapAlert flags exam pressure when real scores trail mock scores
	// by more than this many points (expressed as a negative gap).
	MockGapAlert float64 `yaml:"mock_gap_alert"`
}

// BandThresholds buckets average score into performance bands.
type BandThresholds struct {
	LowBelow    float64 `yaml:"low_below"`
	MediumBelow float64 `yaml:"medium_below"`
}

// TrendThresholds bounds the first-vs-last delta considered stable.
type TrendThresholds struct {
	StableDelta float64 `yaml:"stable_delta"`
}

// VolatilityThresholds buckets score standard deviation.
type VolatilityThresholds struct {
	LowBelow    float64 `yaml:"low_below"`
	MediumBelow float64 `yaml:"medium_below"`
}

// ConfidenceThresholds maps record count and date spread to a confidence
// level. Confidence saturates at high and is monotone in record count.
type ConfidenceThresholds struct {
	HighAtLeast   int `yaml:"high_at_least"`
	MediumAtLeast int `yaml:"medium_at_least"`
	// SpanBonusDays promotes confidence one tier when the exam history
	// covers at least this many days (never past high).
	SpanBonusDays int `yaml:"span_bonus_days"`
}

// DefaultThresholds returns the built-in cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Band:       BandThresholds{LowBelow: 60, MediumBelow: 80},
		Trend:      TrendThresholds{StableDelta: 5},
		Volatility: VolatilityThresholds{LowBelow: 5, MediumBelow: 10},
		Confidence: ConfidenceThresholds{
			HighAtLeast:   5,
			MediumAtLeast: 3,
			SpanBonusDays: 60,
		},
		RecentWindow: 2,
		MockGapAlert: -5,
	}
}

// LoadThresholds reads threshold overrides from a YAML file, filling any
// omitted section with the defaults. An empty path returns the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, eris.Wrapf(err, "analyze: read thresholds %s", path)
	}

	// The YAML has a top-level "thresholds" key.
	wrapper := struct {
		Thresholds *Thresholds `yaml:"thresholds"`
	}{Thresholds: &t}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return t, eris.Wrap(err, "analyze: parse thresholds")
	}

	if t.RecentWindow <= 0 {
		t.RecentWindow = DefaultThresholds().RecentWindow
	}
	return t, nil
}
