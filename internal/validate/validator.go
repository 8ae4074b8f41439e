package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edusignal/exam-intel/internal/model"
)

// DuplicatePolicy decides which of two rows sharing a duplicate key survives.
type DuplicatePolicy string

const (
	KeepFirst  DuplicatePolicy = "keep_first"
	KeepLatest DuplicatePolicy = "keep_latest"
)

// Rules configures the validator. Now is injectable so the future-date check
// is testable.
type Rules struct {
	MinGrade        int
	MaxGrade        int
	DuplicatePolicy DuplicatePolicy
	Now             func() time.Time
}

// DefaultRules returns the standard validation rules.
func DefaultRules() Rules {
	return Rules{
		MinGrade:        1,
		MaxGrade:        12,
		DuplicatePolicy: KeepFirst,
		Now:             time.Now,
	}
}

// Result partitions a raw batch into validated records and quarantined
// rejects. Every input row lands in exactly one of the two.
type Result struct {
	Valid   []model.ValidatedRecord
	Rejects []model.RejectedRecord
}

// dateLayouts are accepted exam_date formats, tried in order. All parse to a
// calendar date normalized to the canonical layout.
var dateLayouts = []string{
	model.ExamDateLayout,
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

var subjectCaser = cases.Title(language.English)

// Validate checks each raw record independently and never aborts the batch:
// a malformed row is routed to Rejects with a specific kind while the rest of
// the batch proceeds. Duplicate detection runs after per-row checks, over the
// surviving rows only.
func Validate(raws []model.ExamRecord, rules Rules) Result {
	if rules.Now == nil {
		rules.Now = time.Now
	}

	var res Result
	type keyed struct {
		rec model.ValidatedRecord
		raw model.ExamRecord
	}
	// Duplicate key -> index into res.Valid.
	seen := make(map[string]int)
	kept := make(map[string]keyed)

	for i, raw := range raws {
		rec, kind, reason := validateOne(raw, rules)
		if kind != "" {
			res.Rejects = append(res.Rejects, model.RejectedRecord{
				Record: raw,
				Kind:   kind,
				Reason: reason,
			})
			continue
		}
		rec.Seq = i

		key := strings.Join([]string{
			rec.StudentID, rec.Subject, rec.ExamID,
			strconv.Itoa(rec.Attempt), rec.DateString(),
		}, "|")

		if idx, dup := seen[key]; dup {
			if rules.DuplicatePolicy == KeepLatest {
				// The later row replaces the earlier one; the earlier
				// raw row is the one quarantined.
				prev := kept[key]
				res.Rejects = append(res.Rejects, model.RejectedRecord{
					Record: prev.raw,
					Kind:   model.RejectDuplicate,
					Reason: fmt.Sprintf("superseded by row %d with same exam key", raw.SourceRow),
				})
				res.Valid[idx] = rec
				kept[key] = keyed{rec: rec, raw: raw}
			} else {
				res.Rejects = append(res.Rejects, model.RejectedRecord{
					Record: raw,
					Kind:   model.RejectDuplicate,
					Reason: "duplicate (student_id, subject, exam_id, attempt_number, exam_date)",
				})
			}
			continue
		}

		seen[key] = len(res.Valid)
		kept[key] = keyed{rec: rec, raw: raw}
		res.Valid = append(res.Valid, rec)
	}

	zap.L().Info("validate: batch complete",
		zap.Int("raw", len(raws)),
		zap.Int("valid", len(res.Valid)),
		zap.Int("rejected", len(res.Rejects)),
	)
	return res
}

// validateOne runs the ordered per-row checks. The first failed check wins,
// so a row with several problems reports a single, deterministic kind.
func validateOne(raw model.ExamRecord, rules Rules) (model.ValidatedRecord, model.RejectKind, string) {
	var rec model.ValidatedRecord

	// Required fields.
	for _, f := range []struct{ name, value string }{
		{"student_id", raw.StudentID},
		{"grade", raw.Grade},
		{"subject", raw.Subject},
		{"exam_id", raw.ExamID},
		{"exam_type", raw.ExamType},
		{"attempt_number", raw.AttemptNumber},
		{"score", raw.Score},
		{"max_score", raw.MaxScore},
		{"exam_date", raw.ExamDate},
	} {
		if strings.TrimSpace(f.value) == "" {
			return rec, model.RejectMissingField, f.name + " is missing"
		}
	}

	grade, err := strconv.Atoi(strings.TrimSpace(raw.Grade))
	if err != nil || grade < rules.MinGrade || grade > rules.MaxGrade {
		return rec, model.RejectBadGrade,
			fmt.Sprintf("grade %q outside %d-%d", raw.Grade, rules.MinGrade, rules.MaxGrade)
	}

	examType := model.ExamType(strings.ToLower(strings.TrimSpace(raw.ExamType)))
	if examType != model.ExamTypeMock && examType != model.ExamTypeReal {
		return rec, model.RejectBadExamType, fmt.Sprintf("exam_type %q is not mock or real", raw.ExamType)
	}

	attempt, err := strconv.Atoi(strings.TrimSpace(raw.AttemptNumber))
	if err != nil || attempt < 1 {
		return rec, model.RejectBadAttempt, fmt.Sprintf("attempt_number %q must be >= 1", raw.AttemptNumber)
	}

	maxScore, err := strconv.ParseFloat(strings.TrimSpace(raw.MaxScore), 64)
	if err != nil || maxScore <= 0 {
		return rec, model.RejectBadMaxScore, fmt.Sprintf("max_score %q must be > 0", raw.MaxScore)
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(raw.Score), 64)
	if err != nil || score < 0 || score > maxScore {
		return rec, model.RejectScoreOutOfRange,
			fmt.Sprintf("score %q outside [0, %g]", raw.Score, maxScore)
	}

	examDate, ok := parseDate(raw.ExamDate)
	if !ok {
		return rec, model.RejectBadDate, fmt.Sprintf("exam_date %q is not a parseable date", raw.ExamDate)
	}
	if examDate.After(rules.Now().UTC()) {
		return rec, model.RejectFutureDate, fmt.Sprintf("exam_date %s is in the future", examDate.Format(model.ExamDateLayout))
	}

	return model.ValidatedRecord{
		StudentID: strings.TrimSpace(raw.StudentID),
		Grade:     grade,
		Subject:   CanonicalSubject(raw.Subject),
		ExamID:    strings.TrimSpace(raw.ExamID),
		ExamType:  examType,
		Attempt:   attempt,
		Score:     score,
		MaxScore:  maxScore,
		ExamDate:  examDate,
	}, "", ""
}

// parseDate tries the accepted layouts and normalizes to a UTC calendar date.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// CanonicalSubject normalizes subject casing so "math", "MATH" and "Math"
// group together.
func CanonicalSubject(s string) string {
	return subjectCaser.String(strings.ToLower(strings.TrimSpace(s)))
}
