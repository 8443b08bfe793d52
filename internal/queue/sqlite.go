package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using modernc.org/sqlite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens a SQLite database at the given path, configures
// WAL mode, and creates the queue tables.
func NewSQLiteStorage(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "queue: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "queue: sqlite exec %s", pragma)
		}
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pending_retry (
	image_path           TEXT PRIMARY KEY,
	image_name           TEXT NOT NULL,
	first_failed         DATETIME NOT NULL,
	last_attempt         DATETIME NOT NULL,
	attempt_count        INTEGER NOT NULL,
	last_score           INTEGER NOT NULL,
	last_reason          TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'pending_retry',
	extraction_data_path TEXT
);

CREATE TABLE IF NOT EXISTS success_log (
	id              TEXT PRIMARY KEY,
	image_path      TEXT NOT NULL,
	image_name      TEXT NOT NULL,
	processed_at    DATETIME NOT NULL,
	quality_score   INTEGER NOT NULL,
	deals_extracted INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'success'
);

CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	image_path TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_success_log_image_path ON success_log(image_path);
`

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "queue: sqlite migrate")
}

func (s *SQLiteStorage) LoadPending(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_path, image_name, first_failed, last_attempt,
		       attempt_count, last_score, last_reason, status, extraction_data_path
		FROM pending_retry ORDER BY first_failed`)
	if err != nil {
		return nil, eris.Wrap(err, "queue: sqlite load pending")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var artifact sql.NullString
		if err := rows.Scan(&e.ImagePath, &e.ImageName, &e.FirstFailed, &e.LastAttempt,
			&e.AttemptCount, &e.LastScore, &e.LastReason, &e.Status, &artifact); err != nil {
			return nil, eris.Wrap(err, "queue: sqlite scan pending")
		}
		if artifact.Valid {
			e.ExtractionDataPath = &artifact.String
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "queue: sqlite iterate pending")
}

func (s *SQLiteStorage) ReplacePending(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "queue: sqlite begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_retry`); err != nil {
		return eris.Wrap(err, "queue: sqlite clear pending")
	}
	for _, e := range entries {
		var artifact any
		if e.ExtractionDataPath != nil {
			artifact = *e.ExtractionDataPath
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_retry
				(image_path, image_name, first_failed, last_attempt,
				 attempt_count, last_score, last_reason, status, extraction_data_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ImagePath, e.ImageName, e.FirstFailed, e.LastAttempt,
			e.AttemptCount, e.LastScore, e.LastReason, string(e.Status), artifact)
		if err != nil {
			return eris.Wrapf(err, "queue: sqlite insert pending %s", e.ImagePath)
		}
	}
	return eris.Wrap(tx.Commit(), "queue: sqlite commit pending")
}

func (s *SQLiteStorage) AppendSuccess(ctx context.Context, rec SuccessRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO success_log
			(id, image_path, image_name, processed_at, quality_score, deals_extracted, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.ImagePath, rec.ImageName, rec.ProcessedAt,
		rec.QualityScore, rec.DealsExtracted, rec.Status)
	return eris.Wrap(err, "queue: sqlite append success")
}

func (s *SQLiteStorage) LoadSuccesses(ctx context.Context) ([]SuccessRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_path, image_name, processed_at, quality_score, deals_extracted, status
		FROM success_log ORDER BY processed_at`)
	if err != nil {
		return nil, eris.Wrap(err, "queue: sqlite load successes")
	}
	defer rows.Close()

	var records []SuccessRecord
	for rows.Next() {
		var r SuccessRecord
		if err := rows.Scan(&r.ImagePath, &r.ImageName, &r.ProcessedAt,
			&r.QualityScore, &r.DealsExtracted, &r.Status); err != nil {
			return nil, eris.Wrap(err, "queue: sqlite scan success")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "queue: sqlite iterate successes")
}

func (s *SQLiteStorage) SaveArtifact(ctx context.Context, imagePath string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, image_path, payload, created_at) VALUES (?, ?, ?, ?)`,
		id, imagePath, payload, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "queue: sqlite save artifact")
	}
	return "artifact:" + id, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
