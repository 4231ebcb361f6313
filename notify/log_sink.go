package notify

import (
	"context"

	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"go.uber.org/zap"
)

var _ Sink = new(LogSink)

type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) OnNodeAdvanced(ctx context.Context, nodeID string, contexts []*model.FlowContext) error {
	logger.Info("node advanced", zap.String("node", nodeID), zap.Strings("contexts", model.ContextIDs(contexts)))
	return nil
}

func (s *LogSink) OnCallback(ctx context.Context, callback *model.FlowCallback, contexts []*model.FlowContext) error {
	logger.Info("callback due", zap.String("type", string(callback.Type)), zap.Strings("targets", callback.FitableIDs),
		zap.Strings("contexts", model.ContextIDs(contexts)))
	return nil
}

func (s *LogSink) OnTaskCreated(ctx context.Context, task *model.TaskSpec, contexts []*model.FlowContext) error {
	taskID := ""
	if task != nil {
		taskID = task.TaskID
	}
	logger.Info("manual task created", zap.String("task", taskID), zap.Strings("contexts", model.ContextIDs(contexts)))
	return nil
}
