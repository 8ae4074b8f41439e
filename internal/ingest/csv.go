package ingest

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/edusignal/exam-intel/internal/model"
)

// CSVOptions configures the CSV roster reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
}

// ReadCSV parses a CSV roster. The first row must be the header; a header
// that does not match the expected column set returns a *SchemaError and no
// records.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]model.ExamRecord, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // short rows become missing-field rejects downstream

	headerRow, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("ingest: csv roster is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	h, err := parseHeader(headerRow)
	if err != nil {
		return nil, err
	}

	var records []model.ExamRecord
	row := 1 // header was row 1
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: csv read cancelled")
		}

		cells, err := reader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read csv row %d", row+1)
		}
		row++
		records = append(records, recordFromRow(h, cells, row))
	}
}

func recordFromRow(h header, cells []string, sourceRow int) model.ExamRecord {
	return model.ExamRecord{
		StudentID:     h.cell(cells, ColStudentID),
		Grade:         h.cell(cells, ColGrade),
		Subject:       h.cell(cells, ColSubject),
		ExamID:        h.cell(cells, ColExamID),
		ExamType:      h.cell(cells, ColExamType),
		AttemptNumber: h.cell(cells, ColAttempt),
		Score:         h.cell(cells, ColScore),
		MaxScore:      h.cell(cells, ColMaxScore),
		ExamDate:      h.cell(cells, ColExamDate),
		SourceRow:     sourceRow,
	}
}
