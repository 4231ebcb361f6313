package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
)

var _ persistence.RetryRepo = new(RetryRepo)

type RetryRepo struct {
	db     *sql.DB
	encDec util.EncoderDecoder[model.FlowRetryRecord]
}

func NewRetryRepo(db *sql.DB, encDec util.EncoderDecoder[model.FlowRetryRecord]) *RetryRepo {
	return &RetryRepo{db: db, encDec: encDec}
}

func (r *RetryRepo) Save(ctx context.Context, record *model.FlowRetryRecord) error {
	data, err := r.encDec.Encode(*record)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO flow_retries (entity_id, next_retry_time, payload) VALUES (?, ?, ?)`,
		record.EntityID, record.NextRetryTime.UnixNano(), data,
	)
	return storageError(err)
}

func (r *RetryRepo) Find(ctx context.Context, entityID string) (*model.FlowRetryRecord, error) {
	var data []byte
	if err := r.db.QueryRowContext(ctx, `SELECT payload FROM flow_retries WHERE entity_id = ?`, entityID).Scan(&data); err != nil {
		return nil, storageError(err)
	}
	return r.encDec.Decode(data)
}

func (r *RetryRepo) FindDue(ctx context.Context, before time.Time, limit int) ([]*model.FlowRetryRecord, error) {
	query := `SELECT payload FROM flow_retries WHERE next_retry_time <= ? ORDER BY next_retry_time, entity_id`
	args := []any{before.UnixNano()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := payloads(ctx, r.db, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*model.FlowRetryRecord, 0, len(rows))
	for _, data := range rows {
		rec, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	persistence.SortRetryRecords(out)
	return out, nil
}

func (r *RetryRepo) Delete(ctx context.Context, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	placeholders, args := in(entityIDs)
	_, err := r.db.ExecContext(ctx, `DELETE FROM flow_retries WHERE entity_id IN `+placeholders, args...)
	return storageError(err)
}
