package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the storage needs; pgxmock satisfies
// it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStorage implements Storage using pgxpool, for deployments where
// several ingestion workers share one queue.
type PostgresStorage struct {
	pool Pool
}

// NewPostgresStorage connects to Postgres and creates the queue tables.
func NewPostgresStorage(ctx context.Context, connString string) (*PostgresStorage, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "queue: postgres parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "queue: postgres connect")
	}

	s := &PostgresStorage{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pending_retry (
	image_path           TEXT PRIMARY KEY,
	image_name           TEXT NOT NULL,
	first_failed         TIMESTAMPTZ NOT NULL,
	last_attempt         TIMESTAMPTZ NOT NULL,
	attempt_count        INTEGER NOT NULL,
	last_score           INTEGER NOT NULL,
	last_reason          TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'pending_retry',
	extraction_data_path TEXT
);

CREATE TABLE IF NOT EXISTS success_log (
	id              UUID PRIMARY KEY,
	image_path      TEXT NOT NULL,
	image_name      TEXT NOT NULL,
	processed_at    TIMESTAMPTZ NOT NULL,
	quality_score   INTEGER NOT NULL,
	deals_extracted INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'success'
);

CREATE TABLE IF NOT EXISTS artifacts (
	id         UUID PRIMARY KEY,
	image_path TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_success_log_image_path ON success_log(image_path);
`

func (s *PostgresStorage) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "queue: postgres migrate")
}

func (s *PostgresStorage) LoadPending(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT image_path, image_name, first_failed, last_attempt,
		       attempt_count, last_score, last_reason, status, extraction_data_path
		FROM pending_retry ORDER BY first_failed`)
	if err != nil {
		return nil, eris.Wrap(err, "queue: postgres load pending")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ImagePath, &e.ImageName, &e.FirstFailed, &e.LastAttempt,
			&e.AttemptCount, &e.LastScore, &e.LastReason, &e.Status, &e.ExtractionDataPath); err != nil {
			return nil, eris.Wrap(err, "queue: postgres scan pending")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "queue: postgres iterate pending")
}

func (s *PostgresStorage) ReplacePending(ctx context.Context, entries []Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "queue: postgres begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pending_retry`); err != nil {
		return eris.Wrap(err, "queue: postgres clear pending")
	}
	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO pending_retry
				(image_path, image_name, first_failed, last_attempt,
				 attempt_count, last_score, last_reason, status, extraction_data_path)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ImagePath, e.ImageName, e.FirstFailed, e.LastAttempt,
			e.AttemptCount, e.LastScore, e.LastReason, string(e.Status), e.ExtractionDataPath)
		if err != nil {
			return eris.Wrapf(err, "queue: postgres insert pending %s", e.ImagePath)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "queue: postgres commit pending")
}

func (s *PostgresStorage) AppendSuccess(ctx context.Context, rec SuccessRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO success_log
			(id, image_path, image_name, processed_at, quality_score, deals_extracted, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), rec.ImagePath, rec.ImageName, rec.ProcessedAt,
		rec.QualityScore, rec.DealsExtracted, rec.Status)
	return eris.Wrap(err, "queue: postgres append success")
}

func (s *PostgresStorage) LoadSuccesses(ctx context.Context) ([]SuccessRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT image_path, image_name, processed_at, quality_score, deals_extracted, status
		FROM success_log ORDER BY processed_at`)
	if err != nil {
		return nil, eris.Wrap(err, "queue: postgres load successes")
	}
	defer rows.Close()

	var records []SuccessRecord
	for rows.Next() {
		var r SuccessRecord
		if err := rows.Scan(&r.ImagePath, &r.ImageName, &r.ProcessedAt,
			&r.QualityScore, &r.DealsExtracted, &r.Status); err != nil {
			return nil, eris.Wrap(err, "queue: postgres scan success")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "queue: postgres iterate successes")
}

func (s *PostgresStorage) SaveArtifact(ctx context.Context, imagePath string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, image_path, payload, created_at) VALUES ($1, $2, $3, $4)`,
		id, imagePath, payload, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "queue: postgres save artifact")
	}
	return "artifact:" + id, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
