package engine

import (
	"errors"
	"fmt"

	"github.com/mohitkumar/flowengine/model"
)

var ErrStreamNotFound = errors.New("flow stream not found")
var ErrAlreadyActive = errors.New("flow stream is already deployed and active")
var ErrNotSuspended = errors.New("contexts are not waiting on a manual task")

// ExecutionError wraps a task failure. It never leaves the advancement step: it is turned into
// a retry record and logged.
type ExecutionError struct {
	NodeID   string
	TaskKind model.TaskKind
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s on node %s failed: %v", e.TaskKind, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
