package engine

import (
	"context"
	"errors"
	"time"

	"github.com/mohitkumar/flowengine/lock"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"go.uber.org/zap"
)

// scanRetries re-enters due retry records. Each (stream, node) group is handled under the node
// lease, behind a retry lease that makes concurrent scanners skip the group instead of waiting.
func (e *Engine) scanRetries() {
	ctx := e.ctx
	due, err := e.stores.Retries.FindDue(ctx, time.Now().UTC(), e.conf.RetryScanBatch)
	if err != nil {
		logger.Error("error loading due retries", zap.Error(err))
		return
	}
	var order []advanceTask
	groups := make(map[advanceTask][]*model.FlowRetryRecord)
	for _, r := range due {
		task := advanceTask{StreamID: r.StreamID, NodeID: r.NodeID}
		if _, ok := groups[task]; !ok {
			order = append(order, task)
		}
		groups[task] = append(groups[task], r)
	}
	for _, task := range order {
		records := groups[task]
		err := e.locker.WithLock(ctx, lock.Key(lock.RETRY_LOCK_PREFIX, task.StreamID, task.NodeID), nil, func(ctx context.Context) error {
			return e.locker.WithLock(ctx, lock.Key(lock.NODE_LOCK_PREFIX, task.StreamID, task.NodeID), e.waitPolicy(), func(ctx context.Context) error {
				return e.requeue(ctx, task.StreamID, records)
			})
		})
		if errors.Is(err, lock.ErrLockHeld) {
			logger.Debug("retry group busy", zap.String("stream", task.StreamID), zap.String("node", task.NodeID))
			continue
		}
		if err != nil {
			logger.Error("error re-entering retries", zap.String("stream", task.StreamID), zap.String("node", task.NodeID), zap.Error(err))
			continue
		}
		e.schedule(task.StreamID, task.NodeID)
	}
}

// requeue moves failed contexts back to pending. Records of contexts that moved on, or whose
// trace finished, are deleted. Pending contexts keep their record so the next failure counts on.
func (e *Engine) requeue(ctx context.Context, streamID string, records []*model.FlowRetryRecord) error {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.EntityID)
	}
	contexts, err := e.stores.Contexts.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	traces, err := e.stores.Traces.FindByIDs(ctx, traceIDs(contexts))
	if err != nil {
		return err
	}
	finished := make(map[string]bool)
	for _, t := range traces {
		finished[t.ID] = t.IsFinished()
	}
	byID := make(map[string]*model.FlowContext, len(contexts))
	for _, c := range contexts {
		byID[c.ID] = c
	}

	var stale []string
	var revive []*model.FlowContext
	for _, id := range ids {
		c, ok := byID[id]
		switch {
		case !ok:
			stale = append(stale, id)
		case c.Status == model.CONTEXT_PENDING:
		case c.Status != model.CONTEXT_ERROR:
			stale = append(stale, id)
		case finished[c.TraceID] || !hasTrace(traces, c.TraceID):
			stale = append(stale, id)
		default:
			revive = append(revive, c)
		}
	}
	if len(stale) > 0 {
		if err := e.stores.Retries.Delete(ctx, stale); err != nil {
			return err
		}
	}
	if len(revive) == 0 {
		return nil
	}
	if err := e.stores.Contexts.UpdateStatus(ctx, model.ContextIDs(revive), model.CONTEXT_PENDING); err != nil {
		return err
	}
	logger.Info("retrying contexts", zap.String("stream", streamID), zap.String("node", revive[0].NodeID), zap.Int("contexts", len(revive)))
	return e.setTraceStatus(ctx, streamID, traceIDs(revive), model.TRACE_RUNNING)
}

func hasTrace(traces []*model.FlowTrace, id string) bool {
	for _, t := range traces {
		if t.ID == id {
			return true
		}
	}
	return false
}

// recover queues every node that holds pending contexts of an unfinished trace, running or in
// error. It covers restarts and nodes dropped from a full advancement queue. Contexts left
// processing at an automatic node whose lease is free lost their worker and go back to pending.
func (e *Engine) recover() {
	ctx := e.ctx
	var order []advanceTask
	pending := make(map[advanceTask]bool)
	stalled := make(map[advanceTask][]string)
	note := func(task advanceTask) {
		if !pending[task] && stalled[task] == nil {
			order = append(order, task)
		}
	}
	for _, status := range []model.TraceStatus{model.TRACE_RUNNING, model.TRACE_ERROR} {
		traces, err := e.stores.Traces.FindByStatus(ctx, status)
		if err != nil {
			logger.Error("error loading unfinished traces", zap.String("status", string(status)), zap.Error(err))
			return
		}
		for _, t := range traces {
			contexts, err := e.stores.Contexts.FindByIDs(ctx, t.ContextPool)
			if err != nil {
				logger.Error("error loading trace contexts", zap.String("trace", t.ID), zap.Error(err))
				continue
			}
			for _, c := range contexts {
				task := advanceTask{StreamID: c.StreamID, NodeID: c.NodeID}
				switch c.Status {
				case model.CONTEXT_PENDING:
					note(task)
					pending[task] = true
				case model.CONTEXT_PROCESSING:
					note(task)
					stalled[task] = append(stalled[task], c.ID)
				}
			}
		}
	}
	for _, task := range order {
		if ids := stalled[task]; len(ids) > 0 {
			released, err := e.releaseStalled(ctx, task, ids)
			if err != nil {
				logger.Error("error releasing stalled contexts", zap.String("stream", task.StreamID), zap.String("node", task.NodeID), zap.Error(err))
			}
			if released {
				pending[task] = true
			}
		}
		if pending[task] {
			e.schedule(task.StreamID, task.NodeID)
		}
	}
}

// releaseStalled moves contexts stuck processing at an automatic node back to pending. A held
// node lease means a worker still owns them, and manual nodes keep theirs until resumed.
func (e *Engine) releaseStalled(ctx context.Context, task advanceTask, ids []string) (bool, error) {
	pub, err := e.publisher(ctx, task.StreamID)
	if err != nil {
		return false, err
	}
	defer pub.Release()
	node, ok := pub.Definition().Node(task.NodeID)
	if !ok || node.TaskKind() == model.TASK_MANUAL {
		return false, nil
	}
	released := false
	err = e.locker.WithLock(ctx, lock.Key(lock.NODE_LOCK_PREFIX, task.StreamID, task.NodeID), nil, func(ctx context.Context) error {
		contexts, err := e.stores.Contexts.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		var stuck []string
		for _, c := range contexts {
			if c.Status == model.CONTEXT_PROCESSING && c.NodeID == task.NodeID {
				stuck = append(stuck, c.ID)
			}
		}
		if len(stuck) == 0 {
			return nil
		}
		if err := e.stores.Contexts.UpdateStatus(ctx, stuck, model.CONTEXT_PENDING); err != nil {
			return err
		}
		released = true
		logger.Warn("released contexts stalled in processing", zap.String("stream", task.StreamID), zap.String("node", task.NodeID), zap.Int("contexts", len(stuck)))
		return nil
	})
	if errors.Is(err, lock.ErrLockHeld) {
		return false, nil
	}
	return released, err
}
