package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mohitkumar/flowengine/event"
	"github.com/mohitkumar/flowengine/executor"
	"github.com/mohitkumar/flowengine/lock"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"go.uber.org/zap"
)

type outcomeKind string

const OUTCOME_SUSPENDED outcomeKind = "suspended"
const OUTCOME_COMPLETED outcomeKind = "completed"
const OUTCOME_FAILED outcomeKind = "error"

// outcome is what an advancement step leaves for the work done after the lease is released.
type outcome struct {
	kind     outcomeKind
	contexts []*model.FlowContext
	next     []string
}

func (e *Engine) advance(task advanceTask) error {
	e.queued.Delete(task.key())
	pub, err := e.publisher(e.ctx, task.StreamID)
	if err != nil {
		return err
	}
	defer pub.Release()
	node, ok := pub.Definition().Node(task.NodeID)
	if !ok {
		return fmt.Errorf("stream %s has no node %s", task.StreamID, task.NodeID)
	}
	var out *outcome
	err = e.locker.WithLock(e.ctx, lock.Key(lock.NODE_LOCK_PREFIX, task.StreamID, task.NodeID), e.waitPolicy(), func(ctx context.Context) error {
		var err error
		out, err = e.advanceLocked(ctx, pub, node)
		return err
	})
	if err != nil {
		return err
	}
	e.afterAdvance(pub, node, out)
	return nil
}

func (e *Engine) advanceLocked(ctx context.Context, pub *Publisher, node *model.FlowNode) (*outcome, error) {
	streamID := pub.StreamID()
	pending, err := e.stores.Contexts.FindPending(ctx, streamID, node.ID)
	if err != nil {
		return nil, err
	}
	pending, err = e.dropTerminated(ctx, pending)
	if err != nil {
		return nil, err
	}
	batch := applyFilters(node.Filters, pending)
	if len(batch) == 0 {
		return nil, nil
	}
	if err := e.stores.Contexts.UpdateStatus(ctx, model.ContextIDs(batch), model.CONTEXT_PROCESSING); err != nil {
		return nil, err
	}
	for _, c := range batch {
		c.Status = model.CONTEXT_PROCESSING
	}

	exec, ok := pub.Executor(node.ID)
	if !ok {
		return e.fail(ctx, streamID, node, batch, errors.New("no executor bound"))
	}
	input := make([]*model.FlowData, len(batch))
	for i, c := range batch {
		input[i] = c.Data.Clone()
	}
	start := time.Now()
	results, err := exec.Execute(ctx, input)
	e.metrics.ObserveTaskDuration(string(node.TaskKind()), time.Since(start).Seconds())
	if errors.Is(err, executor.ErrSuspended) {
		logger.Debug("task suspended", zap.String("stream", streamID), zap.String("node", node.ID), zap.Int("contexts", len(batch)))
		return &outcome{kind: OUTCOME_SUSPENDED, contexts: batch}, nil
	}
	if err == nil && len(results) != len(batch) {
		err = fmt.Errorf("executor returned %d results for %d contexts", len(results), len(batch))
	}
	if err != nil {
		return e.fail(ctx, streamID, node, batch, err)
	}
	// The task ran, so a storage failure from here on must not count as a failed attempt.
	out, err := e.complete(ctx, streamID, node, batch, results)
	if err != nil {
		logger.Error("task finished but its results could not be stored, leaving batch to recovery",
			zap.String("stream", streamID), zap.String("node", node.ID), zap.Int("contexts", len(batch)), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// dropTerminated archives pending contexts whose trace was terminated or removed.
func (e *Engine) dropTerminated(ctx context.Context, pending []*model.FlowContext) ([]*model.FlowContext, error) {
	if len(pending) == 0 {
		return pending, nil
	}
	traces, err := e.stores.Traces.FindByIDs(ctx, traceIDs(pending))
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(traces))
	for _, t := range traces {
		live[t.ID] = t.Status != model.TRACE_TERMINATED
	}
	var keep, dropped []*model.FlowContext
	for _, c := range pending {
		if live[c.TraceID] {
			keep = append(keep, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	if len(dropped) > 0 {
		if err := e.stores.Contexts.UpdateStatus(ctx, model.ContextIDs(dropped), model.CONTEXT_ARCHIVED); err != nil {
			return nil, err
		}
		logger.Info("archived contexts of stopped traces", zap.String("stream", dropped[0].StreamID), zap.String("node", dropped[0].NodeID), zap.Int("contexts", len(dropped)))
	}
	return keep, nil
}

// edge holds the successors one event creates from a batch.
type edge struct {
	event      *model.FlowEvent
	successors []*model.FlowContext
}

// complete stores the results of a batch and moves it along every edge whose guard holds. The
// storage steps are retried as a whole; successor ids derive from the predecessor and the event,
// so a repeated step never creates a successor twice.
func (e *Engine) complete(ctx context.Context, streamID string, node *model.FlowNode, batch []*model.FlowContext, results []*model.FlowData) (*outcome, error) {
	now := time.Now().UTC()
	for i, c := range batch {
		if results[i] != nil {
			c.Data = *results[i]
		}
		c.Status = model.CONTEXT_COMPLETED
		c.UpdatedAt = now
	}

	var edges []edge
	var next []string
	for _, ev := range node.Events {
		var successors []*model.FlowContext
		for _, c := range batch {
			ok, err := e.evaluator.Evaluate(ev.Condition, c.Data.BusinessData)
			if err != nil {
				logger.Warn("guard evaluation failed, edge not taken", zap.String("stream", streamID), zap.String("event", ev.ID), zap.String("context", c.ID), zap.Error(err))
				continue
			}
			if ok {
				successors = append(successors, successor(c, ev, now))
			}
		}
		if len(successors) == 0 {
			continue
		}
		edges = append(edges, edge{event: ev, successors: successors})
		next = appendUnique(next, ev.To)
	}

	err := backoff.Retry(func() error {
		err := e.settle(ctx, streamID, batch, edges)
		if err != nil {
			logger.Warn("error storing batch results, retrying", zap.String("stream", streamID), zap.String("node", node.ID), zap.Error(err))
		}
		return err
	}, backoff.WithContext(e.waitPolicy(), ctx))
	if err != nil {
		return nil, err
	}
	e.metrics.IncContextsAdvanced(streamID, string(OUTCOME_COMPLETED), len(batch))
	return &outcome{kind: OUTCOME_COMPLETED, contexts: batch, next: next}, nil
}

// settle writes the successors, drops retry records, rewrites the trace pools and marks the
// batch completed, in that order. Every step can be repeated. The batch is marked last, so a
// batch still processing after a crash is still in its trace pool or already replaced there.
func (e *Engine) settle(ctx context.Context, streamID string, batch []*model.FlowContext, edges []edge) error {
	var live []*model.FlowContext
	for _, ed := range edges {
		err := e.locker.WithLock(ctx, lock.Key(lock.EVENT_LOCK_PREFIX, streamID, ed.event.ID), e.waitPolicy(), func(ctx context.Context) error {
			created, err := e.createSuccessors(ctx, ed.successors)
			live = append(live, created...)
			return err
		})
		if err != nil {
			return err
		}
	}
	if err := e.stores.Retries.Delete(ctx, model.ContextIDs(batch)); err != nil {
		return err
	}
	if err := e.rewritePools(ctx, streamID, batch, live); err != nil {
		return err
	}
	return e.stores.Contexts.BatchUpdate(ctx, batch)
}

// createSuccessors stores the successors that do not exist yet. It returns the ones that belong
// in the trace pool: the new ones and earlier copies that have not finished.
func (e *Engine) createSuccessors(ctx context.Context, successors []*model.FlowContext) ([]*model.FlowContext, error) {
	stored, err := e.stores.Contexts.FindByIDs(ctx, model.ContextIDs(successors))
	if err != nil {
		return nil, err
	}
	existing := make(map[string]*model.FlowContext, len(stored))
	for _, c := range stored {
		existing[c.ID] = c
	}
	var missing, live []*model.FlowContext
	for _, s := range successors {
		c, ok := existing[s.ID]
		if !ok {
			missing = append(missing, s)
			continue
		}
		if c.Status != model.CONTEXT_COMPLETED && c.Status != model.CONTEXT_ARCHIVED {
			live = append(live, c)
		}
	}
	if len(missing) > 0 {
		if err := e.stores.Contexts.BatchCreate(ctx, missing); err != nil {
			return nil, err
		}
	}
	return append(live, missing...), nil
}

// successorID is stable for a predecessor and an event.
func successorID(prev *model.FlowContext, ev *model.FlowEvent) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(prev.ID+"/"+ev.ID)).String()
}

func successor(prev *model.FlowContext, ev *model.FlowEvent, now time.Time) *model.FlowContext {
	return &model.FlowContext{
		ID:        successorID(prev, ev),
		TraceID:   prev.TraceID,
		StreamID:  prev.StreamID,
		NodeID:    ev.To,
		Index:     prev.Index,
		PrevID:    prev.ID,
		Data:      *prev.Data.Clone(),
		Status:    model.CONTEXT_PENDING,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// rewritePools swaps finished contexts for their successors in every touched trace. A trace left
// with an empty pool is complete.
func (e *Engine) rewritePools(ctx context.Context, streamID string, done []*model.FlowContext, created []*model.FlowContext) error {
	removed := make(map[string]map[string]bool)
	for _, c := range done {
		if removed[c.TraceID] == nil {
			removed[c.TraceID] = make(map[string]bool)
		}
		removed[c.TraceID][c.ID] = true
	}
	added := make(map[string][]string)
	for _, c := range created {
		added[c.TraceID] = append(added[c.TraceID], c.ID)
	}
	for _, traceID := range traceIDs(done) {
		err := e.withTrace(ctx, streamID, traceID, func(ctx context.Context, trace *model.FlowTrace) error {
			pool := make([]string, 0, len(trace.ContextPool)+len(added[traceID]))
			for _, id := range trace.ContextPool {
				if !removed[traceID][id] {
					pool = append(pool, id)
				}
			}
			for _, id := range added[traceID] {
				pool = appendUnique(pool, id)
			}
			if err := e.stores.Traces.UpdateContextPool(ctx, []string{traceID}, pool); err != nil {
				return err
			}
			if len(pool) == 0 && !trace.IsFinished() {
				logger.Info("trace completed", zap.String("stream", streamID), zap.String("trace", traceID))
				return e.stores.Traces.UpdateStatus(ctx, []string{traceID}, model.TRACE_COMPLETED)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// fail records a failed attempt for every context of the batch. Once a context has used up its
// retries the record is dropped and the context stays in error.
func (e *Engine) fail(ctx context.Context, streamID string, node *model.FlowNode, batch []*model.FlowContext, cause error) (*outcome, error) {
	cause = &ExecutionError{NodeID: node.ID, TaskKind: node.TaskKind(), Err: cause}
	now := time.Now().UTC()
	for _, c := range batch {
		count := 1
		record, err := e.stores.Retries.Find(ctx, c.ID)
		if err == nil {
			count = record.RetryCount + 1
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
		if count > e.conf.MaxRetries {
			if err := e.stores.Retries.Delete(ctx, []string{c.ID}); err != nil {
				return nil, err
			}
			e.metrics.IncRetriesExhausted(streamID)
			logger.Error("retries exhausted", zap.String("stream", streamID), zap.String("node", node.ID), zap.String("context", c.ID), zap.Int("attempts", count))
			continue
		}
		record = &model.FlowRetryRecord{
			EntityID:       c.ID,
			StreamID:       streamID,
			TraceID:        c.TraceID,
			NodeID:         node.ID,
			RetryCount:     count,
			NextRetryTime:  now.Add(e.policy.Sleep(count, cause)),
			LastRetryTime:  now,
			FailurePayload: cause.Error(),
		}
		if err := e.stores.Retries.Save(ctx, record); err != nil {
			return nil, err
		}
		e.metrics.IncRetriesScheduled(streamID)
	}
	if err := e.stores.Contexts.UpdateStatus(ctx, model.ContextIDs(batch), model.CONTEXT_ERROR); err != nil {
		return nil, err
	}
	for _, c := range batch {
		c.Status = model.CONTEXT_ERROR
	}
	if err := e.setTraceStatus(ctx, streamID, traceIDs(batch), model.TRACE_ERROR); err != nil {
		return nil, err
	}
	e.metrics.IncContextsAdvanced(streamID, string(OUTCOME_FAILED), len(batch))
	logger.Error("node task failed", zap.String("stream", streamID), zap.String("node", node.ID), zap.Int("contexts", len(batch)), zap.Error(cause))
	return &outcome{kind: OUTCOME_FAILED, contexts: batch}, nil
}

// afterAdvance runs once the node lease is gone: notifications go out and successors are queued.
// Failures only leave a log line and a retry record.
func (e *Engine) afterAdvance(pub *Publisher, node *model.FlowNode, out *outcome) {
	if out == nil {
		return
	}
	streamID := pub.StreamID()
	switch out.kind {
	case OUTCOME_SUSPENDED:
		e.publish(event.Event{Type: event.EVENT_TASK_CREATED, StreamID: streamID, NodeID: node.ID, Task: node.Task, Contexts: out.contexts})
	case OUTCOME_COMPLETED:
		e.publish(event.Event{Type: event.EVENT_NODE_ADVANCED, StreamID: streamID, NodeID: node.ID, Contexts: out.contexts})
		if node.Callback != nil {
			e.publish(event.Event{Type: event.EVENT_CALLBACK_DUE, StreamID: streamID, NodeID: node.ID, Callback: node.Callback, Contexts: out.contexts})
		}
		for _, nodeID := range out.next {
			e.schedule(streamID, nodeID)
		}
	}
}

// Resume completes a batch suspended on a manual task. data is either nil, keeping the stored
// data, or holds one entry per context id.
func (e *Engine) Resume(ctx context.Context, streamID string, contextIDs []string, data []*model.FlowData) error {
	if len(contextIDs) == 0 {
		return fmt.Errorf("no contexts to resume: %w", ErrNotSuspended)
	}
	if data != nil && len(data) != len(contextIDs) {
		return fmt.Errorf("got %d results for %d contexts", len(data), len(contextIDs))
	}
	pub, err := e.publisher(ctx, streamID)
	if err != nil {
		return err
	}
	defer pub.Release()
	first, err := e.stores.Contexts.Find(ctx, contextIDs[0])
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("context %s: %w", contextIDs[0], ErrNotSuspended)
	}
	if err != nil {
		return err
	}
	node, ok := pub.Definition().Node(first.NodeID)
	if !ok || node.TaskKind() != model.TASK_MANUAL {
		return fmt.Errorf("node %s: %w", first.NodeID, ErrNotSuspended)
	}

	var out *outcome
	err = e.locker.WithLock(ctx, lock.Key(lock.NODE_LOCK_PREFIX, streamID, node.ID), e.waitPolicy(), func(ctx context.Context) error {
		batch, err := e.suspended(ctx, streamID, node.ID, contextIDs)
		if err != nil {
			return err
		}
		results := data
		if results == nil {
			results = make([]*model.FlowData, len(batch))
		}
		out, err = e.complete(ctx, streamID, node, batch, results)
		return err
	})
	if err != nil {
		return err
	}
	e.afterAdvance(pub, node, out)
	return nil
}

// suspended loads the contexts in id order and checks they all wait on the same manual node.
func (e *Engine) suspended(ctx context.Context, streamID string, nodeID string, ids []string) ([]*model.FlowContext, error) {
	found, err := e.stores.Contexts.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.FlowContext, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	batch := make([]*model.FlowContext, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || c.StreamID != streamID || c.NodeID != nodeID || c.Status != model.CONTEXT_PROCESSING {
			return nil, fmt.Errorf("context %s: %w", id, ErrNotSuspended)
		}
		batch = append(batch, c)
	}
	return batch, nil
}

// withTrace runs fn on the current state of a trace under its lease. A missing trace is skipped.
func (e *Engine) withTrace(ctx context.Context, streamID string, traceID string, fn func(ctx context.Context, trace *model.FlowTrace) error) error {
	return e.locker.WithLock(ctx, lock.Key(lock.TRACE_LOCK_PREFIX, streamID, traceID), e.waitPolicy(), func(ctx context.Context) error {
		trace, err := e.stores.Traces.Find(ctx, traceID)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return fn(ctx, trace)
	})
}

// setTraceStatus moves traces to status. Finished traces keep their status.
func (e *Engine) setTraceStatus(ctx context.Context, streamID string, ids []string, status model.TraceStatus) error {
	for _, id := range ids {
		err := e.withTrace(ctx, streamID, id, func(ctx context.Context, trace *model.FlowTrace) error {
			if trace.IsFinished() || trace.Status == status {
				return nil
			}
			return e.stores.Traces.UpdateStatus(ctx, []string{id}, status)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func traceIDs(contexts []*model.FlowContext) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, c := range contexts {
		if !seen[c.TraceID] {
			seen[c.TraceID] = true
			ids = append(ids, c.TraceID)
		}
	}
	return ids
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
