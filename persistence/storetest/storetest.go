// Package storetest holds the behaviour every persistence backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/stretchr/testify/require"
)

type Repos struct {
	Contexts    persistence.ContextRepo
	Traces      persistence.TraceRepo
	Retries     persistence.RetryRepo
	Definitions persistence.DefinitionRepo
}

// Run executes every scenario against a fresh set of repos from newRepos.
func Run(t *testing.T, newRepos func(t *testing.T) Repos) {
	for scenario, fn := range map[string]func(t *testing.T, repos Repos){
		"context save and find":           testContextSaveFind,
		"context batch create is atomic":  testContextBatchCreateAtomic,
		"context batch update needs rows": testContextBatchUpdateMissing,
		"context pending index":           testContextPending,
		"context delete by trace":         testContextDeleteByTrace,
		"trace status indexes":            testTraceRunning,
		"trace context pool":              testTraceContextPool,
		"trace delete":                    testTraceDelete,
		"retry upsert and due ordering":   testRetryDue,
		"retry delete":                    testRetryDelete,
		"definition save list delete":     testDefinitions,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newRepos(t))
		})
	}
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flowContext(id, trace, node string, index int, status model.ContextStatus) *model.FlowContext {
	return &model.FlowContext{
		ID:        id,
		TraceID:   trace,
		StreamID:  "order-1",
		NodeID:    node,
		Index:     index,
		Data:      *model.NewFlowData(map[string]any{"id": id}),
		Status:    status,
		CreatedAt: base.Add(time.Duration(index) * time.Second),
		UpdatedAt: base,
	}
}

func flowTrace(id string, status model.TraceStatus, start time.Time) *model.FlowTrace {
	return &model.FlowTrace{
		ID:        id,
		StreamID:  "order-1",
		Status:    status,
		StartTime: start,
		UpdatedAt: start,
	}
}

func traceIDs(traces []*model.FlowTrace) []string {
	ids := make([]string, 0, len(traces))
	for _, t := range traces {
		ids = append(ids, t.ID)
	}
	return ids
}

func testContextSaveFind(t *testing.T, repos Repos) {
	ctx := context.Background()
	c := flowContext("c1", "t1", "A", 0, model.CONTEXT_PENDING)
	require.NoError(t, repos.Contexts.Save(ctx, c))

	got, err := repos.Contexts.Find(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "t1", got.TraceID)
	require.Equal(t, "c1", got.Data.BusinessData["id"])

	_, err = repos.Contexts.Find(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	found, err := repos.Contexts.FindByIDs(ctx, []string{"missing", "c1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func testContextBatchCreateAtomic(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Contexts.Save(ctx, flowContext("c1", "t1", "A", 0, model.CONTEXT_PENDING)))

	err := repos.Contexts.BatchCreate(ctx, []*model.FlowContext{
		flowContext("c2", "t1", "A", 1, model.CONTEXT_PENDING),
		flowContext("c1", "t1", "A", 0, model.CONTEXT_PENDING),
	})
	require.Error(t, err)

	_, err = repos.Contexts.Find(ctx, "c2")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testContextBatchUpdateMissing(t *testing.T, repos Repos) {
	ctx := context.Background()
	c1 := flowContext("c1", "t1", "A", 0, model.CONTEXT_PENDING)
	require.NoError(t, repos.Contexts.BatchCreate(ctx, []*model.FlowContext{c1}))

	c1.Status = model.CONTEXT_COMPLETED
	err := repos.Contexts.BatchUpdate(ctx, []*model.FlowContext{c1, flowContext("c9", "t1", "A", 9, model.CONTEXT_PENDING)})
	require.ErrorIs(t, err, persistence.ErrNotFound)

	got, err := repos.Contexts.Find(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, model.CONTEXT_PENDING, got.Status)

	require.NoError(t, repos.Contexts.BatchUpdate(ctx, []*model.FlowContext{c1}))
	got, err = repos.Contexts.Find(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, model.CONTEXT_COMPLETED, got.Status)
}

func testContextPending(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Contexts.BatchCreate(ctx, []*model.FlowContext{
		flowContext("c3", "t1", "A", 2, model.CONTEXT_PENDING),
		flowContext("c1", "t1", "A", 0, model.CONTEXT_PENDING),
		flowContext("c2", "t2", "A", 1, model.CONTEXT_PENDING),
		flowContext("c4", "t1", "B", 3, model.CONTEXT_PENDING),
	}))

	pending, err := repos.Contexts.FindPending(ctx, "order-1", "A")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2", "c3"}, model.ContextIDs(pending))

	require.NoError(t, repos.Contexts.UpdateStatus(ctx, []string{"c1", "missing"}, model.CONTEXT_PROCESSING))
	pending, err = repos.Contexts.FindPending(ctx, "order-1", "A")
	require.NoError(t, err)
	require.Equal(t, []string{"c2", "c3"}, model.ContextIDs(pending))

	require.NoError(t, repos.Contexts.UpdateStatus(ctx, []string{"c1"}, model.CONTEXT_PENDING))
	pending, err = repos.Contexts.FindPending(ctx, "order-1", "A")
	require.NoError(t, err)
	require.Len(t, pending, 3)
}

func testContextDeleteByTrace(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Contexts.BatchCreate(ctx, []*model.FlowContext{
		flowContext("c1", "t1", "A", 0, model.CONTEXT_PENDING),
		flowContext("c2", "t2", "A", 1, model.CONTEXT_PENDING),
	}))

	byTrace, err := repos.Contexts.FindByTraceIDs(ctx, []string{"t1", "t2"})
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, model.ContextIDs(byTrace))

	require.NoError(t, repos.Contexts.DeleteByTraceIDs(ctx, []string{"t1"}))
	pending, err := repos.Contexts.FindPending(ctx, "order-1", "A")
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, model.ContextIDs(pending))
}

func testTraceRunning(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Traces.BatchCreate(ctx, []*model.FlowTrace{
		flowTrace("t2", model.TRACE_RUNNING, base.Add(time.Minute)),
		flowTrace("t1", model.TRACE_RUNNING, base),
	}))
	require.Error(t, repos.Traces.BatchCreate(ctx, []*model.FlowTrace{flowTrace("t1", model.TRACE_RUNNING, base)}))

	running, err := repos.Traces.FindRunningTraces(ctx)
	require.NoError(t, err)
	require.Len(t, running, 2)
	require.Equal(t, "t1", running[0].ID)

	require.NoError(t, repos.Traces.UpdateStatus(ctx, []string{"t1"}, model.TRACE_COMPLETED))
	running, err = repos.Traces.FindRunningTraces(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "t2", running[0].ID)

	require.NoError(t, repos.Traces.UpdateStatus(ctx, []string{"t2"}, model.TRACE_ERROR))
	failed, err := repos.Traces.FindByStatus(ctx, model.TRACE_ERROR)
	require.NoError(t, err)
	require.Equal(t, []string{"t2"}, traceIDs(failed))
	completed, err := repos.Traces.FindByStatus(ctx, model.TRACE_COMPLETED)
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, traceIDs(completed))
	running, err = repos.Traces.FindRunningTraces(ctx)
	require.NoError(t, err)
	require.Empty(t, running)

	done, err := repos.Traces.Find(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, model.TRACE_COMPLETED, done.Status)
	require.False(t, done.EndTime.IsZero())

	done.Status = model.TRACE_RUNNING
	require.NoError(t, repos.Traces.BatchUpdate(ctx, []*model.FlowTrace{done}))
	running, err = repos.Traces.FindRunningTraces(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	completed, err = repos.Traces.FindByStatus(ctx, model.TRACE_COMPLETED)
	require.NoError(t, err)
	require.Empty(t, completed)
}

func testTraceContextPool(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Traces.Save(ctx, flowTrace("t1", model.TRACE_RUNNING, base)))

	require.NoError(t, repos.Traces.UpdateContextPool(ctx, []string{"t1"}, []string{"c1", "c2"}))
	got, err := repos.Traces.Find(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, got.ContextPool)

	err = repos.Traces.UpdateContextPool(ctx, []string{"t1", "missing"}, []string{"c3"})
	require.ErrorIs(t, err, persistence.ErrNotFound)
	got, err = repos.Traces.Find(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, got.ContextPool)
}

func testTraceDelete(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Traces.Save(ctx, flowTrace("t1", model.TRACE_RUNNING, base)))
	require.NoError(t, repos.Traces.DeleteByIDs(ctx, []string{"t1"}))

	_, err := repos.Traces.Find(ctx, "t1")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	running, err := repos.Traces.FindRunningTraces(ctx)
	require.NoError(t, err)
	require.Empty(t, running)
	failed, err := repos.Traces.FindByStatus(ctx, model.TRACE_ERROR)
	require.NoError(t, err)
	require.Empty(t, failed)
}

func testRetryDue(t *testing.T, repos Repos) {
	ctx := context.Background()
	for i, id := range []string{"r3", "r1", "r2"} {
		require.NoError(t, repos.Retries.Save(ctx, &model.FlowRetryRecord{
			EntityID:      id,
			NodeID:        "A",
			RetryCount:    1,
			NextRetryTime: base.Add(time.Duration(2-i) * time.Second),
		}))
	}
	require.NoError(t, repos.Retries.Save(ctx, &model.FlowRetryRecord{
		EntityID:      "r3",
		NodeID:        "A",
		RetryCount:    2,
		NextRetryTime: base.Add(time.Hour),
	}))

	due, err := repos.Retries.FindDue(ctx, base.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "r2", due[0].EntityID)
	require.Equal(t, "r1", due[1].EntityID)

	due, err = repos.Retries.FindDue(ctx, base.Add(2*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "r2", due[0].EntityID)

	rec, err := repos.Retries.Find(ctx, "r3")
	require.NoError(t, err)
	require.Equal(t, 2, rec.RetryCount)
}

func testRetryDelete(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Retries.Save(ctx, &model.FlowRetryRecord{EntityID: "r1", NextRetryTime: base}))
	require.NoError(t, repos.Retries.Delete(ctx, []string{"r1", "missing"}))

	_, err := repos.Retries.Find(ctx, "r1")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	due, err := repos.Retries.FindDue(ctx, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Empty(t, due)
}

func testDefinitions(t *testing.T, repos Repos) {
	ctx := context.Background()
	require.NoError(t, repos.Definitions.Save(ctx, "order-2", []byte(`{"id":"order"}`)))
	require.NoError(t, repos.Definitions.Save(ctx, "order-1", []byte(`{"id":"order"}`)))

	ids, err := repos.Definitions.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"order-1", "order-2"}, ids)

	payload, err := repos.Definitions.Get(ctx, "order-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"order"}`, string(payload))

	require.NoError(t, repos.Definitions.Delete(ctx, "order-1"))
	_, err = repos.Definitions.Get(ctx, "order-1")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}
