package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mohitkumar/flowengine/persistence"
	_ "modernc.org/sqlite"
)

// Open opens the database behind dsn and creates the flow tables when they are missing.
// SQLite serialises writers, so the pool is limited to a single connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_contexts (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flow_contexts_pending ON flow_contexts (stream_id, node_id, status);
		CREATE INDEX IF NOT EXISTS idx_flow_contexts_trace ON flow_contexts (trace_id);
		CREATE TABLE IF NOT EXISTS flow_traces (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flow_traces_status ON flow_traces (status);
		CREATE TABLE IF NOT EXISTS flow_retries (
			entity_id TEXT PRIMARY KEY,
			next_retry_time INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flow_retries_due ON flow_retries (next_retry_time);
		CREATE TABLE IF NOT EXISTS flow_definitions (
			stream_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);`,
	)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return storageError(err)
	}
	return storageError(tx.Commit())
}

func storageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	var sle persistence.StorageLayerError
	if errors.As(err, &sle) || errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	return persistence.StorageLayerError{Message: err.Error()}
}

// in renders "(?, ?, ...)" for ids and returns them as query arguments.
func in(ids []string) (string, []any) {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// payloads runs query and returns the single BLOB column of every row.
func payloads(ctx context.Context, q querier, query string, args ...any) ([][]byte, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storageError(err)
		}
		out = append(out, payload)
	}
	return out, storageError(rows.Err())
}
