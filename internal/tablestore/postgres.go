package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/edusignal/exam-intel/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_exam_records (
	id          BIGSERIAL PRIMARY KEY,
	record      JSONB NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validated_results (
	id         BIGSERIAL PRIMARY KEY,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	record     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS rejected_records (
	id     BIGSERIAL PRIMARY KEY,
	kind   TEXT NOT NULL,
	record JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS subject_analytics (
	id         BIGSERIAL PRIMARY KEY,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	metric     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS subject_insights (
	id         BIGSERIAL PRIMARY KEY,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	insight    JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS subject_summaries (
	id         BIGSERIAL PRIMARY KEY,
	student_id TEXT NOT NULL,
	subject    TEXT NOT NULL,
	summary    JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS student_consolidated_latest (
	student_id    TEXT PRIMARY KEY,
	consolidation JSONB NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS student_consolidated_history (
	id            BIGSERIAL PRIMARY KEY,
	student_id    TEXT NOT NULL,
	consolidation JSONB NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	report     JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validated_student ON validated_results(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_analytics_student ON subject_analytics(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_insights_student ON subject_insights(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_summaries_student ON subject_summaries(student_id, subject);
CREATE INDEX IF NOT EXISTS idx_history_student ON student_consolidated_history(student_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) replaceAll(ctx context.Context, table, insertSQL string, count int, args func(i int) ([]any, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin replace %s", table)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return eris.Wrapf(err, "postgres: clear %s", table)
	}
	for i := 0; i < count; i++ {
		rowArgs, err := args(i)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertSQL, rowArgs...); err != nil {
			return eris.Wrapf(err, "postgres: insert into %s", table)
		}
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit replace %s", table)
}

func (s *PostgresStore) listJSON(ctx context.Context, query string, into func(payload []byte) error, args ...any) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: query %s", query)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return eris.Wrap(err, "postgres: scan row")
		}
		if err := into(payload); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: iterate rows")
}

func (s *PostgresStore) AppendRawRecords(ctx context.Context, records []model.ExamRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append raw")
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal raw record")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO raw_exam_records (record) VALUES ($1)`, payload,
		); err != nil {
			return eris.Wrap(err, "postgres: insert raw record")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit append raw")
}

func (s *PostgresStore) ListRawRecords(ctx context.Context) ([]model.ExamRecord, error) {
	var out []model.ExamRecord
	err := s.listJSON(ctx, `SELECT record FROM raw_exam_records ORDER BY id`, func(payload []byte) error {
		var r model.ExamRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return eris.Wrap(err, "postgres: unmarshal raw record")
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *PostgresStore) ReplaceValidated(ctx context.Context, records []model.ValidatedRecord) error {
	return s.replaceAll(ctx, TableValidated,
		`INSERT INTO validated_results (student_id, subject, record) VALUES ($1, $2, $3)`,
		len(records), func(i int) ([]any, error) {
			payload, err := json.Marshal(records[i])
			if err != nil {
				return nil, eris.Wrap(err, "postgres: marshal validated record")
			}
			return []any{records[i].StudentID, records[i].Subject, payload}, nil
		})
}

func (s *PostgresStore) ListValidated(ctx context.Context) ([]model.ValidatedRecord, error) {
	var out []model.ValidatedRecord
	err := s.listJSON(ctx, `SELECT record FROM validated_results ORDER BY id`, func(payload []byte) error {
		var r model.ValidatedRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return eris.Wrap(err, "postgres: unmarshal validated record")
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *PostgresStore) ReplaceRejects(ctx context.Context, rejects []model.RejectedRecord) error {
	return s.replaceAll(ctx, TableRejected,
		`INSERT INTO rejected_records (kind, record) VALUES ($1, $2)`,
		len(rejects), func(i int) ([]any, error) {
			payload, err := json.Marshal(rejects[i])
			if err != nil {
				return nil, eris.Wrap(err, "postgres: marshal reject")
			}
			return []any{string(rejects[i].Kind), payload}, nil
		})
}

func (s *PostgresStore) ListRejects(ctx context.Context) ([]model.RejectedRecord, error) {
	var out []model.RejectedRecord
	err := s.listJSON(ctx, `SELECT record FROM rejected_records ORDER BY id`, func(payload []byte) error {
		var r model.RejectedRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return eris.Wrap(err, "postgres: unmarshal reject")
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *PostgresStore) ReplaceMetrics(ctx context.Context, metrics []model.SubjectMetric) error {
	return s.replaceAll(ctx, TableAnalytics,
		`INSERT INTO subject_analytics (student_id, subject, metric) VALUES ($1, $2, $3)`,
		len(metrics), func(i int) ([]any, error) {
			payload, err := json.Marshal(metrics[i])
			if err != nil {
				return nil, eris.Wrap(err, "postgres: marshal metric")
			}
			return []any{metrics[i].StudentID, metrics[i].Subject, payload}, nil
		})
}

func (s *PostgresStore) ListMetrics(ctx context.Context) ([]model.SubjectMetric, error) {
	var out []model.SubjectMetric
	err := s.listJSON(ctx, `SELECT metric FROM subject_analytics ORDER BY student_id, subject`, func(payload []byte) error {
		var m model.SubjectMetric
		if err := json.Unmarshal(payload, &m); err != nil {
			return eris.Wrap(err, "postgres: unmarshal metric")
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (s *PostgresStore) ReplaceInsights(ctx context.Context, insights []model.SubjectInsight) error {
	return s.replaceAll(ctx, TableInsights,
		`INSERT INTO subject_insights (student_id, subject, insight) VALUES ($1, $2, $3)`,
		len(insights), func(i int) ([]any, error) {
			payload, err := json.Marshal(insights[i])
			if err != nil {
				return nil, eris.Wrap(err, "postgres: marshal insight")
			}
			return []any{insights[i].StudentID, insights[i].Subject, payload}, nil
		})
}

func (s *PostgresStore) ListInsights(ctx context.Context) ([]model.SubjectInsight, error) {
	var out []model.SubjectInsight
	err := s.listJSON(ctx, `SELECT insight FROM subject_insights ORDER BY student_id, subject`, func(payload []byte) error {
		var in model.SubjectInsight
		if err := json.Unmarshal(payload, &in); err != nil {
			return eris.Wrap(err, "postgres: unmarshal insight")
		}
		out = append(out, in)
		return nil
	})
	return out, err
}

func (s *PostgresStore) ReplaceNarratives(ctx context.Context, narratives []model.SubjectNarrative) error {
	return s.replaceAll(ctx, TableSummaries,
		`INSERT INTO subject_summaries (student_id, subject, summary) VALUES ($1, $2, $3)`,
		len(narratives), func(i int) ([]any, error) {
			payload, err := json.Marshal(narratives[i])
			if err != nil {
				return nil, eris.Wrap(err, "postgres: marshal narrative")
			}
			return []any{narratives[i].StudentID, narratives[i].Subject, payload}, nil
		})
}

func (s *PostgresStore) ListNarratives(ctx context.Context) ([]model.SubjectNarrative, error) {
	var out []model.SubjectNarrative
	err := s.listJSON(ctx, `SELECT summary FROM subject_summaries ORDER BY student_id, subject`, func(payload []byte) error {
		var n model.SubjectNarrative
		if err := json.Unmarshal(payload, &n); err != nil {
			return eris.Wrap(err, "postgres: unmarshal narrative")
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

func (s *PostgresStore) UpsertConsolidatedLatest(ctx context.Context, c model.StudentConsolidation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal consolidation")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO student_consolidated_latest (student_id, consolidation, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO UPDATE SET
			consolidation = EXCLUDED.consolidation,
			generated_at  = EXCLUDED.generated_at`,
		c.StudentID, payload, c.GeneratedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: upsert consolidated latest")
}

func (s *PostgresStore) GetConsolidatedLatest(ctx context.Context, studentID string) (*model.StudentConsolidation, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT consolidation FROM student_consolidated_latest WHERE student_id = $1`, studentID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get consolidated latest")
	}

	var c model.StudentConsolidation
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal consolidation")
	}
	return &c, nil
}

func (s *PostgresStore) ListConsolidatedLatest(ctx context.Context) ([]model.StudentConsolidation, error) {
	var out []model.StudentConsolidation
	err := s.listJSON(ctx, `SELECT consolidation FROM student_consolidated_latest ORDER BY student_id`, func(payload []byte) error {
		var c model.StudentConsolidation
		if err := json.Unmarshal(payload, &c); err != nil {
			return eris.Wrap(err, "postgres: unmarshal consolidation")
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *PostgresStore) AppendConsolidatedHistory(ctx context.Context, c model.StudentConsolidation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal consolidation")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO student_consolidated_history (student_id, consolidation, generated_at)
		VALUES ($1, $2, $3)`,
		c.StudentID, payload, c.GeneratedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: append consolidated history")
}

func (s *PostgresStore) ListConsolidatedHistory(ctx context.Context, studentID string) ([]model.StudentConsolidation, error) {
	var out []model.StudentConsolidation
	err := s.listJSON(ctx,
		`SELECT consolidation FROM student_consolidated_history WHERE student_id = $1 ORDER BY id`,
		func(payload []byte) error {
			var c model.StudentConsolidation
			if err := json.Unmarshal(payload, &c); err != nil {
				return eris.Wrap(err, "postgres: unmarshal consolidation")
			}
			out = append(out, c)
			return nil
		}, studentID)
	return out, err
}

func (s *PostgresStore) SaveRunReport(ctx context.Context, report model.PipelineReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, report, started_at) VALUES ($1, $2, $3)`,
		report.RunID, payload, report.StartedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save run report")
}

func (s *PostgresStore) ListRunReports(ctx context.Context, limit int) ([]model.PipelineReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.PipelineReport
	err := s.listJSON(ctx,
		`SELECT report FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`,
		func(payload []byte) error {
			var r model.PipelineReport
			if err := json.Unmarshal(payload, &r); err != nil {
				return eris.Wrap(err, "postgres: unmarshal report")
			}
			out = append(out, r)
			return nil
		}, limit)
	return out, err
}

var _ Store = (*PostgresStore)(nil)
