package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/util"
)

var _ persistence.TraceRepo = new(TraceRepo)

type TraceRepo struct {
	db     *sql.DB
	encDec util.EncoderDecoder[model.FlowTrace]
}

func NewTraceRepo(db *sql.DB, encDec util.EncoderDecoder[model.FlowTrace]) *TraceRepo {
	return &TraceRepo{db: db, encDec: encDec}
}

func (r *TraceRepo) query(ctx context.Context, q querier, query string, args ...any) ([]*model.FlowTrace, error) {
	rows, err := payloads(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*model.FlowTrace, 0, len(rows))
	for _, data := range rows {
		t, err := r.encDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TraceRepo) Save(ctx context.Context, trace *model.FlowTrace) error {
	data, err := r.encDec.Encode(*trace)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT OR REPLACE INTO flow_traces (id, status, payload) VALUES (?, ?, ?)`,
		trace.ID, string(trace.Status), data)
	return storageError(err)
}

func (r *TraceRepo) Find(ctx context.Context, id string) (*model.FlowTrace, error) {
	var data []byte
	if err := r.db.QueryRowContext(ctx, `SELECT payload FROM flow_traces WHERE id = ?`, id).Scan(&data); err != nil {
		return nil, storageError(err)
	}
	return r.encDec.Decode(data)
}

func (r *TraceRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.FlowTrace, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := in(ids)
	found, err := r.query(ctx, r.db, `SELECT payload FROM flow_traces WHERE id IN `+placeholders, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.FlowTrace, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]*model.FlowTrace, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TraceRepo) BatchCreate(ctx context.Context, traces []*model.FlowTrace) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, t := range traces {
			data, err := r.encDec.Encode(*t)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO flow_traces (id, status, payload) VALUES (?, ?, ?)`,
				t.ID, string(t.Status), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TraceRepo) BatchUpdate(ctx context.Context, traces []*model.FlowTrace) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, t := range traces {
			if err := r.update(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TraceRepo) update(ctx context.Context, tx *sql.Tx, t *model.FlowTrace) error {
	data, err := r.encDec.Encode(*t)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE flow_traces SET status = ?, payload = ? WHERE id = ?`,
		string(t.Status), data, t.ID)
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

// mutate applies change to every listed trace inside one transaction.
func (r *TraceRepo) mutate(ctx context.Context, ids []string, strict bool, change func(t *model.FlowTrace)) error {
	if len(ids) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		placeholders, args := in(ids)
		traces, err := r.query(ctx, tx, `SELECT payload FROM flow_traces WHERE id IN `+placeholders, args...)
		if err != nil {
			return err
		}
		if strict && len(traces) != len(ids) {
			return persistence.ErrNotFound
		}
		for _, t := range traces {
			change(t)
			if err := r.update(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TraceRepo) UpdateStatus(ctx context.Context, ids []string, status model.TraceStatus) error {
	now := time.Now().UTC()
	return r.mutate(ctx, ids, false, func(t *model.FlowTrace) {
		t.Status = status
		t.UpdatedAt = now
		if t.IsFinished() && t.EndTime.IsZero() {
			t.EndTime = now
		}
	})
}

func (r *TraceRepo) UpdateContextPool(ctx context.Context, traceIDs []string, contextIDs []string) error {
	now := time.Now().UTC()
	return r.mutate(ctx, traceIDs, true, func(t *model.FlowTrace) {
		t.ContextPool = append([]string{}, contextIDs...)
		t.UpdatedAt = now
	})
}

func (r *TraceRepo) FindRunningTraces(ctx context.Context) ([]*model.FlowTrace, error) {
	return r.FindByStatus(ctx, model.TRACE_RUNNING)
}

func (r *TraceRepo) FindByStatus(ctx context.Context, status model.TraceStatus) ([]*model.FlowTrace, error) {
	out, err := r.query(ctx, r.db, `SELECT payload FROM flow_traces WHERE status = ?`, string(status))
	if err != nil {
		return nil, err
	}
	persistence.SortTraces(out)
	return out, nil
}

func (r *TraceRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := in(ids)
	_, err := r.db.ExecContext(ctx, `DELETE FROM flow_traces WHERE id IN `+placeholders, args...)
	return storageError(err)
}
