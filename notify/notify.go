package notify

import (
	"context"

	"github.com/mohitkumar/flowengine/event"
	"github.com/mohitkumar/flowengine/model"
)

// NodeListener is told about every node that finished advancing a batch.
type NodeListener interface {
	OnNodeAdvanced(ctx context.Context, nodeID string, contexts []*model.FlowContext) error
}

// CallbackListener receives the contexts of a node whose callback is due.
type CallbackListener interface {
	OnCallback(ctx context.Context, callback *model.FlowCallback, contexts []*model.FlowContext) error
}

// TaskListener is told about manual tasks waiting for an operator.
type TaskListener interface {
	OnTaskCreated(ctx context.Context, task *model.TaskSpec, contexts []*model.FlowContext) error
}

// Sink listens to all three kinds of notification.
type Sink interface {
	NodeListener
	CallbackListener
	TaskListener
}

// Attach subscribes the sink to the bus.
func Attach(bus *event.Bus, sink Sink) {
	bus.Subscribe(event.EVENT_NODE_ADVANCED, func(ctx context.Context, ev event.Event) error {
		return sink.OnNodeAdvanced(ctx, ev.NodeID, ev.Contexts)
	})
	bus.Subscribe(event.EVENT_CALLBACK_DUE, func(ctx context.Context, ev event.Event) error {
		return sink.OnCallback(ctx, ev.Callback, ev.Contexts)
	})
	bus.Subscribe(event.EVENT_TASK_CREATED, func(ctx context.Context, ev event.Event) error {
		return sink.OnTaskCreated(ctx, ev.Task, ev.Contexts)
	})
}
