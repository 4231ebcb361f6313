package sqlite

import (
	"context"
	"database/sql"

	"github.com/mohitkumar/flowengine/persistence"
)

var _ persistence.DefinitionRepo = new(DefinitionRepo)

type DefinitionRepo struct {
	db *sql.DB
}

func NewDefinitionRepo(db *sql.DB) *DefinitionRepo {
	return &DefinitionRepo{db: db}
}

func (r *DefinitionRepo) Save(ctx context.Context, streamID string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO flow_definitions (stream_id, payload) VALUES (?, ?)`,
		streamID, payload)
	return storageError(err)
}

func (r *DefinitionRepo) Get(ctx context.Context, streamID string) ([]byte, error) {
	var payload []byte
	if err := r.db.QueryRowContext(ctx, `SELECT payload FROM flow_definitions WHERE stream_id = ?`, streamID).Scan(&payload); err != nil {
		return nil, storageError(err)
	}
	return payload, nil
}

func (r *DefinitionRepo) Delete(ctx context.Context, streamID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM flow_definitions WHERE stream_id = ?`, streamID)
	return storageError(err)
}

func (r *DefinitionRepo) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stream_id FROM flow_definitions ORDER BY stream_id`)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError(err)
		}
		ids = append(ids, id)
	}
	return ids, storageError(rows.Err())
}
