package analyze

import (
	"math"

	"github.com/edusignal/exam-intel/internal/model"
)

// round2 and round3 pin metric precision so re-running the analyzer on
// identical input yields byte-identical output.
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// stdDev returns the population standard deviation, or false when fewer
// than two scores are available.
func stdDev(scores []float64) (float64, bool) {
	if len(scores) < 2 {
		return 0, false
	}
	m := mean(scores)
	var sum float64
	for _, s := range scores {
		d := s - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(scores))), true
}

// trendOf classifies the first-vs-last delta of a date-ordered score
// sequence. Fewer than two points is insufficient data, not "stable".
func trendOf(scores []float64, t TrendThresholds) model.Trend {
	if len(scores) < 2 {
		return model.TrendInsufficient
	}
	diff := scores[len(scores)-1] - scores[0]
	switch {
	case diff > t.StableDelta:
		return model.TrendImproving
	case diff < -t.StableDelta:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// improvementVelocity is the first-vs-last delta normalized by attempt count.
func improvementVelocity(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	return round2((scores[len(scores)-1] - scores[0]) / float64(len(scores)))
}

// consistency maps dispersion into (0, 1]: 1/(1+sigma). A single exam is
// trivially consistent.
func consistency(scores []float64) float64 {
	sd, ok := stdDev(scores)
	if !ok {
		return 1.0
	}
	return round3(1 / (1 + sd))
}

func volatilityLevelOf(sd float64, ok bool, t VolatilityThresholds) model.VolatilityLevel {
	if !ok {
		return model.VolatilityUndetermined
	}
	switch {
	case sd < t.LowBelow:
		return model.VolatilityLow
	case sd < t.MediumBelow:
		return model.VolatilityMedium
	default:
		return model.VolatilityHigh
	}
}

// recentAverage is the mean of the trailing window of a date-ordered
// sequence, or of the full sequence when it is shorter than the window.
func recentAverage(scores []float64, window int) float64 {
	if len(scores) == 0 {
		return 0
	}
	if len(scores) > window {
		scores = scores[len(scores)-window:]
	}
	return round2(mean(scores))
}

func bandOf(avg float64, t BandThresholds) model.Band {
	switch {
	case avg < t.LowBelow:
		return model.BandLow
	case avg < t.MediumBelow:
		return model.BandMedium
	default:
		return model.BandHigh
	}
}

// riskOf combines band and trend: a low band with a declining trend is high
// risk, either alone is medium, otherwise low.
func riskOf(band model.Band, trend model.Trend) model.RiskLevel {
	low := band == model.BandLow
	declining := trend == model.TrendDeclining
	switch {
	case low && declining:
		return model.RiskHigh
	case low || declining:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// confidenceOf derives data confidence from record count, with a one-tier
// promotion for histories spanning a long window. It saturates at high and
// never decreases when a record is added.
func confidenceOf(count, spanDays int, t ConfidenceThresholds) model.ConfidenceLevel {
	var level model.ConfidenceLevel
	switch {
	case count >= t.HighAtLeast:
		level = model.ConfidenceHigh
	case count >= t.MediumAtLeast:
		level = model.ConfidenceMedium
	default:
		level = model.ConfidenceLow
	}

	if level == model.ConfidenceMedium && spanDays >= t.SpanBonusDays {
		level = model.ConfidenceHigh
	}
	return level
}

// mockRealGap is the real-exam mean minus the mock-exam mean, or nil unless
// both exam types are present in the group.
func mockRealGap(records []model.ValidatedRecord) *float64 {
	var mock, real []float64
	for _, r := range records {
		switch r.ExamType {
		case model.ExamTypeMock:
			mock = append(mock, r.Score)
		case model.ExamTypeReal:
			real = append(real, r.Score)
		}
	}
	if len(mock) == 0 || len(real) == 0 {
		return nil
	}
	gap := round2(mean(real) - mean(mock))
	return &gap
}
