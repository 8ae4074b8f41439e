// Package ingest reads raw exam rosters from CSV, XLSX, and FTP sources
// and maps them to untyped exam records for the validator.
package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Column names every roster must carry, in any order.
const (
	ColStudentID = "student_id"
	ColGrade     = "grade"
	ColSubject   = "subject"
	ColExamID    = "exam_id"
	ColExamType  = "exam_type"
	ColAttempt   = "attempt_number"
	ColScore     = "score"
	ColMaxScore  = "max_score"
	ColExamDate  = "exam_date"
)

var requiredColumns = []string{
	ColStudentID, ColGrade, ColSubject, ColExamID, ColExamType,
	ColAttempt, ColScore, ColMaxScore, ColExamDate,
}

// SchemaError is fatal: a roster whose header does not match the expected
// column set aborts the whole import rather than producing row quarantines.
type SchemaError struct {
	Missing []string
	Unknown []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unknown columns: %s", strings.Join(e.Unknown, ", ")))
	}
	return "ingest: roster schema mismatch (" + strings.Join(parts, "; ") + ")"
}

// header maps canonical column names to their position in the source file.
type header map[string]int

// parseHeader normalizes and checks a header row against the required
// column set. Column names are matched case-insensitively with surrounding
// whitespace ignored.
func parseHeader(cells []string) (header, error) {
	h := make(header, len(cells))
	var unknown []string
	for i, cell := range cells {
		name := strings.ToLower(strings.TrimSpace(cell))
		if name == "" {
			continue
		}
		if _, ok := h[name]; ok {
			return nil, eris.Errorf("ingest: duplicate column %q in header", name)
		}
		if !isRequiredColumn(name) {
			unknown = append(unknown, name)
			continue
		}
		h[name] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		sort.Strings(missing)
		sort.Strings(unknown)
		return nil, &SchemaError{Missing: missing, Unknown: unknown}
	}
	return h, nil
}

func isRequiredColumn(name string) bool {
	for _, col := range requiredColumns {
		if name == col {
			return true
		}
	}
	return false
}

// cell returns the trimmed value at the named column, or "" when the row is
// shorter than the header.
func (h header) cell(row []string, col string) string {
	idx, ok := h[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
