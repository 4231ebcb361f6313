package executor

import (
	"context"

	"github.com/mohitkumar/flowengine/model"
)

var _ Executor = new(manualExecutor)
var _ Executor = new(echoExecutor)

type manualExecutor struct{}

func NewManualExecutor(spec *model.TaskSpec, conf Config) (Executor, error) {
	return &manualExecutor{}, nil
}

func (e *manualExecutor) Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error) {
	return nil, ErrSuspended
}

type echoExecutor struct{}

func NewEchoExecutor(spec *model.TaskSpec, conf Config) (Executor, error) {
	return &echoExecutor{}, nil
}

func (e *echoExecutor) Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error) {
	out := make([]*model.FlowData, 0, len(data))
	for _, d := range data {
		out = append(out, d.Clone())
	}
	return out, nil
}
