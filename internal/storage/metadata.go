package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/diarization-studio/internal/types"
)

// MetadataDB is the durable record store for projects, jobs, speakers,
// segments and trash entries.
type MetadataDB struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	source_ref TEXT NOT NULL,
	source_type TEXT NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	progress TEXT NOT NULL DEFAULT '',
	speaker_hint INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	progress TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_one_active
	ON jobs(project_id) WHERE status IN ('pending', 'processing');

CREATE TABLE IF NOT EXISTS speakers (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	original_label TEXT NOT NULL,
	display_name TEXT NOT NULL,
	folder TEXT NOT NULL,
	next_order INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	speaker_id TEXT NOT NULL REFERENCES speakers(id),
	original_speaker_id TEXT NOT NULL,
	audio_filename TEXT NOT NULL,
	audio_path TEXT NOT NULL,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	duration REAL NOT NULL,
	start_time_formatted TEXT NOT NULL,
	transcription TEXT NOT NULL DEFAULT '',
	order_index INTEGER NOT NULL,
	UNIQUE (speaker_id, order_index)
);

CREATE TABLE IF NOT EXISTS trash_segments (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	original_speaker_id TEXT NOT NULL,
	audio_filename TEXT NOT NULL,
	audio_path TEXT NOT NULL,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	duration REAL NOT NULL,
	start_time_formatted TEXT NOT NULL,
	transcription TEXT NOT NULL DEFAULT '',
	order_index INTEGER NOT NULL,
	deleted_from_speaker_id TEXT NOT NULL,
	deleted_from_speaker_name TEXT NOT NULL,
	deleted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at);
CREATE INDEX IF NOT EXISTS idx_speakers_project ON speakers(project_id);
CREATE INDEX IF NOT EXISTS idx_segments_project ON segments(project_id);
CREATE INDEX IF NOT EXISTS idx_trash_project ON trash_segments(project_id);
`

// NewMetadataDB opens (or creates) the SQLite database and applies the schema.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

// Tx is a record store transaction. All typed queries live on Tx so that a
// compound operation sees and commits one consistent state.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction.
func (mdb *MetadataDB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := mdb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() {
	_ = t.tx.Rollback()
}

// WithTx runs fn inside a transaction, committing only when fn succeeds.
func (mdb *MetadataDB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := mdb.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// notFound converts sql.ErrNoRows into the engine's NotFound error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, types.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func now() time.Time {
	return time.Now().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}
