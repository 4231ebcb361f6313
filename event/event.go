package event

import (
	"fmt"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/util"
)

type Class string

const CLASS_INTERNAL Class = "internal"
const CLASS_EXTERNAL Class = "external"

type Type string

const EVENT_TASK_CREATED Type = "task_created"
const EVENT_CALLBACK_DUE Type = "callback_due"
const EVENT_NODE_ADVANCED Type = "node_advanced"

type Event struct {
	Type     Type
	StreamID string
	NodeID   string
	Task     *model.TaskSpec
	Callback *model.FlowCallback
	Contexts []*model.FlowContext
	At       time.Time
}

// Class tells which queue carries the event. Node advancement notifications go to external
// collaborators, the rest stay inside the engine.
func (e Event) Class() Class {
	if e.Type == EVENT_NODE_ADVANCED {
		return CLASS_EXTERNAL
	}
	return CLASS_INTERNAL
}

// CapacityError is returned when the queue for an event class is full.
type CapacityError struct {
	Class Class
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s event queue is full", e.Class)
}

func (e *CapacityError) Unwrap() error {
	return util.ErrQueueFull
}
