package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodHeader = "student_id,grade,subject,exam_id,exam_type,attempt_number,score,max_score,exam_date"

func TestParseHeader_AnyOrderAndCase(t *testing.T) {
	h, err := parseHeader([]string{
		"Exam_Date", " SCORE ", "student_id", "grade", "subject",
		"exam_id", "exam_type", "attempt_number", "max_score",
	})
	require.NoError(t, err)

	row := []string{"2026-01-01", "88", "S001", "9", "Math", "T1", "real", "1", "100"}
	assert.Equal(t, "S001", h.cell(row, ColStudentID))
	assert.Equal(t, "88", h.cell(row, ColScore))
	assert.Equal(t, "2026-01-01", h.cell(row, ColExamDate))
}

func TestParseHeader_MissingColumn(t *testing.T) {
	_, err := parseHeader([]string{"student_id", "grade", "subject"})

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Missing, "score")
	assert.Contains(t, schemaErr.Missing, "exam_date")
	assert.Empty(t, schemaErr.Unknown)
}

func TestParseHeader_UnknownColumn(t *testing.T) {
	cells := append(strings.Split(goodHeader, ","), "homeroom")
	_, err := parseHeader(cells)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"homeroom"}, schemaErr.Unknown)
	assert.Empty(t, schemaErr.Missing)
}

func TestParseHeader_DuplicateColumn(t *testing.T) {
	cells := append(strings.Split(goodHeader, ","), "score")
	_, err := parseHeader(cells)
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	input := goodHeader + "\n" +
		"S001,10, math ,T1,real,1,72.5,100,2026-03-15\n" +
		"S002,9,Physics,T2,mock,1,58,100,2026-03-16\n"

	records, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "S001", records[0].StudentID)
	assert.Equal(t, "math", records[0].Subject) // trimmed, not canonicalized
	assert.Equal(t, "72.5", records[0].Score)
	assert.Equal(t, 2, records[0].SourceRow)
	assert.Equal(t, 3, records[1].SourceRow)
}

func TestReadCSV_ShortRowBecomesEmptyFields(t *testing.T) {
	input := goodHeader + "\nS001,10,Math\n"

	records, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Missing cells surface as empty strings for the validator to reject.
	assert.Equal(t, "S001", records[0].StudentID)
	assert.Empty(t, records[0].Score)
	assert.Empty(t, records[0].ExamDate)
}

func TestReadCSV_SchemaErrorIsFatal(t *testing.T) {
	input := "student_id,score\nS001,90\n"

	_, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	assert.Error(t, err)
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	records, err := ReadCSV(context.Background(), strings.NewReader(goodHeader+"\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://exams.example.org/rosters/week1.csv")
	require.NoError(t, err)
	assert.Equal(t, "exams.example.org:21", host)
	assert.Equal(t, "/rosters/week1.csv", path)

	host, _, err = parseFTPURL("ftp://exams.example.org:2121/r.csv")
	require.NoError(t, err)
	assert.Equal(t, "exams.example.org:2121", host)

	_, _, err = parseFTPURL("https://exams.example.org/r.csv")
	assert.Error(t, err)

	_, _, err = parseFTPURL("ftp://exams.example.org")
	assert.Error(t, err)
}
