package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var _ Sink = new(NatsSink)

// Publisher is the part of a NATS connection the sink needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NatsSink publishes notifications as JSON on <prefix>.node_advanced, <prefix>.callback.<target>
// and <prefix>.task_created.
type NatsSink struct {
	pub    Publisher
	prefix string
}

type message struct {
	Type     string               `json:"type"`
	NodeID   string               `json:"nodeId,omitempty"`
	TaskID   string               `json:"taskId,omitempty"`
	Callback *model.FlowCallback  `json:"callback,omitempty"`
	Contexts []*model.FlowContext `json:"contexts"`
	SentAt   time.Time            `json:"sentAt"`
}

func NewNatsSink(pub Publisher, prefix string) *NatsSink {
	if prefix == "" {
		prefix = "flowengine"
	}
	return &NatsSink{pub: pub, prefix: prefix}
}

// Connect dials NATS with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("flowengine-notify"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("disconnected from nats", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func (s *NatsSink) publish(subject string, msg message) error {
	msg.SentAt = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (s *NatsSink) OnNodeAdvanced(ctx context.Context, nodeID string, contexts []*model.FlowContext) error {
	return s.publish(s.prefix+".node_advanced", message{Type: "node_advanced", NodeID: nodeID, Contexts: contexts})
}

// OnCallback publishes once per callback target.
func (s *NatsSink) OnCallback(ctx context.Context, callback *model.FlowCallback, contexts []*model.FlowContext) error {
	for _, target := range callback.FitableIDs {
		if err := s.publish(s.prefix+".callback."+target, message{Type: "callback", Callback: callback, Contexts: contexts}); err != nil {
			return err
		}
	}
	return nil
}

func (s *NatsSink) OnTaskCreated(ctx context.Context, task *model.TaskSpec, contexts []*model.FlowContext) error {
	msg := message{Type: "task_created", Contexts: contexts}
	if task != nil {
		msg.TaskID = task.TaskID
	}
	return s.publish(s.prefix+".task_created", msg)
}
