package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/event"
	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{subject: subj, data: data})
	return nil
}

func (f *fakePublisher) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.subject)
	}
	return out
}

func TestNatsSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNatsSink(pub, "flows")
	contexts := []*model.FlowContext{{ID: "c1", NodeID: "A"}}

	require.NoError(t, sink.OnNodeAdvanced(context.Background(), "A", contexts))
	require.NoError(t, sink.OnCallback(context.Background(), &model.FlowCallback{
		Type:       model.CALLBACK_SINGLE_TARGET,
		FitableIDs: []string{"audit", "billing"},
	}, contexts))
	require.NoError(t, sink.OnTaskCreated(context.Background(), &model.TaskSpec{TaskID: "approve"}, contexts))

	require.Equal(t, []string{"flows.node_advanced", "flows.callback.audit", "flows.callback.billing", "flows.task_created"}, pub.subjects())

	var msg message
	require.NoError(t, json.Unmarshal(pub.sent[3].data, &msg))
	require.Equal(t, "approve", msg.TaskID)
	require.Equal(t, "c1", msg.Contexts[0].ID)
}

func TestAttachRoutesBusEvents(t *testing.T) {
	bus := event.NewBus(config.BusConfig{Workers: 1, QueueSize: 10}, nil)
	pub := &fakePublisher{}
	Attach(bus, NewNatsSink(pub, ""))
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(event.Event{Type: event.EVENT_NODE_ADVANCED, NodeID: "A"}))
	require.NoError(t, bus.Publish(event.Event{Type: event.EVENT_TASK_CREATED, NodeID: "B"}))
	require.NoError(t, bus.Stop(time.Second))

	require.ElementsMatch(t, []string{"flowengine.node_advanced", "flowengine.task_created"}, pub.subjects())
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink()
	require.NoError(t, sink.OnNodeAdvanced(context.Background(), "A", nil))
	require.NoError(t, sink.OnCallback(context.Background(), &model.FlowCallback{Type: model.CALLBACK_GENERAL, FitableIDs: []string{"x"}}, nil))
	require.NoError(t, sink.OnTaskCreated(context.Background(), nil, nil))
}
