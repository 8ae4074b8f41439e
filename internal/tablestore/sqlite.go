package tablestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/edusignal/exam-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_exam_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	record      TEXT NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS validated_results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	record     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rejected_records (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	kind   TEXT NOT NULL,
	record TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subject_analytics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	metric     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subject_insights (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	insight    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subject_summaries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	summary    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS student_consolidated_latest (
	student_id    TEXT PRIMARY KEY,
	consolidation TEXT NOT NULL,
	generated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS student_consolidated_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id    TEXT NOT NULL,
	consolidation TEXT NOT NULL,
	generated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	report     TEXT NOT NULL,
	started_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validated_student ON validated_results(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_analytics_student ON subject_analytics(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_insights_student ON subject_insights(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_summaries_student ON subject_summaries(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_history_student ON student_consolidated_history(student_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// replaceAll overwrites a whole table inside one transaction so readers never
// observe a half-written run.
func (s *SQLiteStore) replaceAll(ctx context.Context, table, insertSQL string, count int, args func(i int) ([]any, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin replace %s", table)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s", table)
	}
	for i := 0; i < count; i++ {
		rowArgs, err := args(i)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertSQL, rowArgs...); err != nil {
			return eris.Wrapf(err, "sqlite: insert into %s", table)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit replace %s", table)
}

func (s *SQLiteStore) listJSON(ctx context.Context, query string, into func(payload []byte) error, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: query %s", query)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return eris.Wrap(err, "sqlite: scan row")
		}
		if err := into(payload); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate rows")
}

func (s *SQLiteStore) AppendRawRecords(ctx context.Context, records []model.ExamRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append raw")
	}
	defer tx.Rollback()

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal raw record")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO raw_exam_records (record) VALUES (?)`, string(payload),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert raw record")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append raw")
}

func (s *SQLiteStore) ListRawRecords(ctx context.Context) ([]model.ExamRecord, error) {
	var out []model.ExamRecord
	err := s.listJSON(ctx, `SELECT record FROM raw_exam_records ORDER BY id`, func(payload []byte) error {
		var r model.ExamRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal raw record")
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ReplaceValidated(ctx context.Context, records []model.ValidatedRecord) error {
	return s.replaceAll(ctx, TableValidated,
		`INSERT INTO validated_results (student_id, subject, record) VALUES (?, ?, ?)`,
		len(records), func(i int) ([]any, error) {
			payload, err := json.Marshal(records[i])
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: marshal validated record")
			}
			return []any{records[i].StudentID, records[i].Subject, string(payload)}, nil
		})
}

func (s *SQLiteStore) ListValidated(ctx context.Context) ([]model.ValidatedRecord, error) {
	var out []model.ValidatedRecord
	err := s.listJSON(ctx, `SELECT record FROM validated_results ORDER BY id`, func(payload []byte) error {
		var r model.ValidatedRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal validated record")
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ReplaceRejects(ctx context.Context, rejects []model.RejectedRecord) error {
	return s.replaceAll(ctx, TableRejected,
		`INSERT INTO rejected_records (kind, record) VALUES (?, ?)`,
		len(rejects), func(i int) ([]any, error) {
			payload, err := json.Marshal(rejects[i])
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: marshal reject")
			}
			return []any{string(rejects[i].Kind), string(payload)}, nil
		})
}

func (s *SQLiteStore) ListRejects(ctx context.Context) ([]model.RejectedRecord, error) {
	var out []model.RejectedRecord
	err := s.listJSON(ctx, `SELECT record FROM rejected_records ORDER BY id`, func(payload []byte) error {
		var r model.RejectedRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal reject")
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ReplaceMetrics(ctx context.Context, metrics []model.SubjectMetric) error {
	return s.replaceAll(ctx, TableAnalytics,
		`INSERT INTO subject_analytics (student_id, subject, metric) VALUES (?, ?, ?)`,
		len(metrics), func(i int) ([]any, error) {
			payload, err := json.Marshal(metrics[i])
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: marshal metric")
			}
			return []any{metrics[i].StudentID, metrics[i].Subject, string(payload)}, nil
		})
}

func (s *SQLiteStore) ListMetrics(ctx context.Context) ([]model.SubjectMetric, error) {
	var out []model.SubjectMetric
	err := s.listJSON(ctx, `SELECT metric FROM subject_analytics ORDER BY student_id, subject`, func(payload []byte) error {
		var m model.SubjectMetric
		if err := json.Unmarshal(payload, &m); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal metric")
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ReplaceInsights(ctx context.Context, insights []model.SubjectInsight) error {
	return s.replaceAll(ctx, TableInsights,
		`INSERT INTO subject_insights (student_id, subject, insight) VALUES (?, ?, ?)`,
		len(insights), func(i int) ([]any, error) {
			payload, err := json.Marshal(insights[i])
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: marshal insight")
			}
			return []any{insights[i].StudentID, insights[i].Subject, string(payload)}, nil
		})
}

func (s *SQLiteStore) ListInsights(ctx context.Context) ([]model.SubjectInsight, error) {
	var out []model.SubjectInsight
	err := s.listJSON(ctx, `SELECT insight FROM subject_insights ORDER BY student_id, subject`, func(payload []byte) error {
		var in model.SubjectInsight
		if err := json.Unmarshal(payload, &in); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal insight")
		}
		out = append(out, in)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ReplaceNarratives(ctx context.Context, narratives []model.SubjectNarrative) error {
	return s.replaceAll(ctx, TableSummaries,
		`INSERT INTO subject_summaries (student_id, subject, summary) VALUES (?, ?, ?)`,
		len(narratives), func(i int) ([]any, error) {
			payload, err := json.Marshal(narratives[i])
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: marshal narrative")
			}
			return []any{narratives[i].StudentID, narratives[i].Subject, string(payload)}, nil
		})
}

func (s *SQLiteStore) ListNarratives(ctx context.Context) ([]model.SubjectNarrative, error) {
	var out []model.SubjectNarrative
	err := s.listJSON(ctx, `SELECT summary FROM subject_summaries ORDER BY student_id, subject`, func(payload []byte) error {
		var n model.SubjectNarrative
		if err := json.Unmarshal(payload, &n); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal narrative")
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) UpsertConsolidatedLatest(ctx context.Context, c model.StudentConsolidation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal consolidation")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO student_consolidated_latest (student_id, consolidation, generated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(student_id) DO UPDATE SET
			consolidation = excluded.consolidation,
			generated_at  = excluded.generated_at`,
		c.StudentID, string(payload), c.GeneratedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert consolidated latest")
}

func (s *SQLiteStore) GetConsolidatedLatest(ctx context.Context, studentID string) (*model.StudentConsolidation, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT consolidation FROM student_consolidated_latest WHERE student_id = ?`, studentID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get consolidated latest")
	}

	var c model.StudentConsolidation
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal consolidation")
	}
	return &c, nil
}

func (s *SQLiteStore) ListConsolidatedLatest(ctx context.Context) ([]model.StudentConsolidation, error) {
	var out []model.StudentConsolidation
	err := s.listJSON(ctx, `SELECT consolidation FROM student_consolidated_latest ORDER BY student_id`, func(payload []byte) error {
		var c model.StudentConsolidation
		if err := json.Unmarshal(payload, &c); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal consolidation")
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *SQLiteStore) AppendConsolidatedHistory(ctx context.Context, c model.StudentConsolidation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal consolidation")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO student_consolidated_history (student_id, consolidation, generated_at)
		VALUES (?, ?, ?)`,
		c.StudentID, string(payload), c.GeneratedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: append consolidated history")
}

func (s *SQLiteStore) ListConsolidatedHistory(ctx context.Context, studentID string) ([]model.StudentConsolidation, error) {
	var out []model.StudentConsolidation
	err := s.listJSON(ctx,
		`SELECT consolidation FROM student_consolidated_history WHERE student_id = ? ORDER BY id`,
		func(payload []byte) error {
			var c model.StudentConsolidation
			if err := json.Unmarshal(payload, &c); err != nil {
				return eris.Wrap(err, "sqlite: unmarshal consolidation")
			}
			out = append(out, c)
			return nil
		}, studentID)
	return out, err
}

func (s *SQLiteStore) SaveRunReport(ctx context.Context, report model.PipelineReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, report, started_at) VALUES (?, ?, ?)`,
		report.RunID, string(payload), report.StartedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save run report")
}

func (s *SQLiteStore) ListRunReports(ctx context.Context, limit int) ([]model.PipelineReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.PipelineReport
	err := s.listJSON(ctx,
		`SELECT report FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`,
		func(payload []byte) error {
			var r model.PipelineReport
			if err := json.Unmarshal(payload, &r); err != nil {
				return eris.Wrap(err, "sqlite: unmarshal report")
			}
			out = append(out, r)
			return nil
		}, limit)
	return out, err
}

var _ Store = (*SQLiteStore)(nil)
