package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/flowengine/executor"
	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingExecutor struct {
	closed atomic.Bool
}

func (c *closingExecutor) Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error) {
	return data, nil
}

func (c *closingExecutor) Close() error {
	c.closed.Store(true)
	return nil
}

func publisherOf(streamID string, exec executor.Executor) *Publisher {
	def := &model.FlowDefinition{MetaID: streamID, Version: "1", Nodes: []*model.FlowNode{{ID: "A", Kind: model.NODE_START}}}
	def.BuildIndex()
	return &Publisher{def: def, executors: map[string]executor.Executor{"A": exec}}
}

func TestRegistryCreatesOnce(t *testing.T) {
	r := NewRegistry(nil)
	var created atomic.Int32
	var wg sync.WaitGroup
	results := make([]*Publisher, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.GetOrCreate("order-1", func() (*Publisher, error) {
				created.Add(1)
				return publisherOf("order", &closingExecutor{}), nil
			})
			if err == nil {
				results[i] = p
			}
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, 1, created.Load())
	for _, p := range results {
		require.Same(t, results[0], p)
	}
	require.Equal(t, 1, r.Size())
}

func TestRegistryKeepsNothingOnFailedCreate(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.GetOrCreate("order-1", func() (*Publisher, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	_, ok := r.Get("order-1")
	require.False(t, ok)
}

func TestRegistryClosesExecutorsOnRemove(t *testing.T) {
	r := NewRegistry(nil)
	first := &closingExecutor{}
	second := &closingExecutor{}
	_, err := r.GetOrCreate("a-1", func() (*Publisher, error) { return publisherOf("a", first), nil })
	require.NoError(t, err)
	_, err = r.GetOrCreate("b-1", func() (*Publisher, error) { return publisherOf("b", second), nil })
	require.NoError(t, err)

	r.Remove("a-1")
	require.True(t, first.closed.Load())
	require.False(t, second.closed.Load())

	r.Clear()
	require.True(t, second.closed.Load())
	require.Equal(t, 0, r.Size())
}

func TestRegistryKeepsExecutorsOpenWhileInUse(t *testing.T) {
	r := NewRegistry(nil)
	first := &closingExecutor{}
	p, err := r.Acquire("a-1", func() (*Publisher, error) { return publisherOf("a", first), nil })
	require.NoError(t, err)

	r.Remove("a-1")
	require.False(t, first.closed.Load())
	_, ok := r.Get("a-1")
	require.False(t, ok)

	second := &closingExecutor{}
	fresh, err := r.Acquire("a-1", func() (*Publisher, error) { return publisherOf("a", second), nil })
	require.NoError(t, err)
	require.NotSame(t, p, fresh)

	p.Release()
	require.True(t, first.closed.Load())
	fresh.Release()
	require.False(t, second.closed.Load())
	r.Clear()
	require.True(t, second.closed.Load())
}

func TestRegistryCreatesStreamsIndependently(t *testing.T) {
	r := NewRegistry(nil)
	slow := make(chan struct{})
	go r.GetOrCreate("a-1", func() (*Publisher, error) {
		<-slow
		return publisherOf("a", &closingExecutor{}), nil
	})
	defer close(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.GetOrCreate("b-1", func() (*Publisher, error) { return publisherOf("b", &closingExecutor{}), nil })
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("creating b-1 waited on a-1")
	}
}

func TestNewPublisherBindsEveryNode(t *testing.T) {
	def := &model.FlowDefinition{MetaID: "m", Version: "1", Nodes: []*model.FlowNode{
		{ID: "A", Kind: model.NODE_START},
		{ID: "B", Kind: model.NODE_STATE, Task: &model.TaskSpec{Kind: model.TASK_MANUAL}},
		{ID: "C", Kind: model.NODE_END},
	}}
	def.BuildIndex()
	p, err := NewPublisher(def, executor.NewRegistry(executor.DefaultConfig()))
	require.NoError(t, err)
	require.Equal(t, "m-1", p.StreamID())
	for _, id := range []string{"A", "B", "C"} {
		_, ok := p.Executor(id)
		require.True(t, ok, id)
	}

	def.Nodes[1].Task.Kind = "smtp"
	_, err = NewPublisher(def, executor.NewRegistry(executor.DefaultConfig()))
	require.Error(t, err)
}
