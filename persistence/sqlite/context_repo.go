package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
)

var _ persistence.ContextRepo = new(ContextRepo)

type ContextRepo struct {
	db     *sql.DB
	encDec util.EncoderDecoder[model.FlowContext]
}

func NewContextRepo(db *sql.DB, encDec util.EncoderDecoder[model.FlowContext]) *ContextRepo {
	return &ContextRepo{db: db, encDec: encDec}
}

func (r *ContextRepo) decodeAll(rows [][]byte) ([]*model.FlowContext, error) {
	out := make([]*model.FlowContext, 0, len(rows))
	for _, data := range rows {
		c, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *ContextRepo) query(ctx context.Context, q querier, query string, args ...any) ([]*model.FlowContext, error) {
	rows, err := payloads(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows)
}

func (r *ContextRepo) Save(ctx context.Context, flowCtx *model.FlowContext) error {
	data, err := r.encDec.Encode(*flowCtx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO flow_contexts (id, trace_id, stream_id, node_id, status, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		flowCtx.ID, flowCtx.TraceID, flowCtx.StreamID, flowCtx.NodeID, string(flowCtx.Status), data,
	)
	return storageError(err)
}

func (r *ContextRepo) Find(ctx context.Context, id string) (*model.FlowContext, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM flow_contexts WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, storageError(err)
	}
	return r.encDec.Decode(data)
}

func (r *ContextRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.FlowContext, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := in(ids)
	found, err := r.query(ctx, r.db, `SELECT payload FROM flow_contexts WHERE id IN `+placeholders, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.FlowContext, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]*model.FlowContext, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *ContextRepo) FindPending(ctx context.Context, streamID string, nodeID string) ([]*model.FlowContext, error) {
	out, err := r.query(ctx, r.db, `
		SELECT payload FROM flow_contexts WHERE stream_id = ? AND node_id = ? AND status = ?`,
		streamID, nodeID, string(model.CONTEXT_PENDING),
	)
	if err != nil {
		return nil, err
	}
	persistence.SortContexts(out)
	return out, nil
}

func (r *ContextRepo) FindByTraceIDs(ctx context.Context, traceIDs []string) ([]*model.FlowContext, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}
	placeholders, args := in(traceIDs)
	out, err := r.query(ctx, r.db, `SELECT payload FROM flow_contexts WHERE trace_id IN `+placeholders, args...)
	if err != nil {
		return nil, err
	}
	persistence.SortContexts(out)
	return out, nil
}

func (r *ContextRepo) BatchCreate(ctx context.Context, contexts []*model.FlowContext) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, c := range contexts {
			data, err := r.encDec.Encode(*c)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO flow_contexts (id, trace_id, stream_id, node_id, status, payload)
				VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, c.TraceID, c.StreamID, c.NodeID, string(c.Status), data,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ContextRepo) BatchUpdate(ctx context.Context, contexts []*model.FlowContext) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, c := range contexts {
			if err := r.update(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ContextRepo) update(ctx context.Context, tx *sql.Tx, c *model.FlowContext) error {
	data, err := r.encDec.Encode(*c)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE flow_contexts SET trace_id = ?, stream_id = ?, node_id = ?, status = ?, payload = ?
		WHERE id = ?`,
		c.TraceID, c.StreamID, c.NodeID, string(c.Status), data, c.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *ContextRepo) UpdateStatus(ctx context.Context, ids []string, status model.ContextStatus) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		placeholders, args := in(ids)
		contexts, err := r.query(ctx, tx, `SELECT payload FROM flow_contexts WHERE id IN `+placeholders, args...)
		if err != nil {
			return err
		}
		for _, c := range contexts {
			c.Status = status
			c.UpdatedAt = now
			if err := r.update(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ContextRepo) DeleteByTraceIDs(ctx context.Context, traceIDs []string) error {
	if len(traceIDs) == 0 {
		return nil
	}
	placeholders, args := in(traceIDs)
	_, err := r.db.ExecContext(ctx, `DELETE FROM flow_contexts WHERE trace_id IN `+placeholders, args...)
	return storageError(err)
}
