package executor

import (
	"context"
	"fmt"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/util"
	"go.opencensus.io/plugin/ocgrpc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ Executor = new(remoteExecutor)

// remoteExecutor makes one unary call per batch. The request is a Struct of the form
// {"items": [business data...]} and the reply must carry an items list of the same length.
type remoteExecutor struct {
	conn    *grpc.ClientConn
	method  string
	timeout time.Duration
}

func NewRemoteExecutor(spec *model.TaskSpec, conf Config) (Executor, error) {
	target := spec.StringProperty("target")
	zapOpts := []grpc_zap.Option{
		grpc_zap.WithDurationField(
			func(duration time.Duration) zapcore.Field {
				return zap.Int64("grpc.time_ns", duration.Nanoseconds())
			},
		),
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(
			grpc_zap.UnaryClientInterceptor(logger.Get().Named("remote"), zapOpts...),
		)),
		grpc.WithStatsHandler(&ocgrpc.ClientHandler{}),
	}
	opts = append(opts, conf.DialOptions...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", target, err)
	}
	limit := conf.RemoteTimeout
	if limit <= 0 {
		limit = DefaultConfig().RemoteTimeout
	}
	return &remoteExecutor{
		conn:    conn,
		method:  spec.StringProperty("method"),
		timeout: min(timeout(spec, limit), limit),
	}, nil
}

func (e *remoteExecutor) Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error) {
	items := make([]any, 0, len(data))
	for _, d := range data {
		items = append(items, d.BusinessData)
	}
	req, err := util.ConvertMapToStruct(map[string]any{"items": items})
	if err != nil {
		return nil, fmt.Errorf("error encoding remote request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp := &structpb.Struct{}
	if err := e.conn.Invoke(ctx, e.method, req, resp); err != nil {
		return nil, fmt.Errorf("remote call %s failed: %w", e.method, err)
	}
	results, err := util.ConvertStructListToMaps(resp.GetFields()["items"].GetListValue())
	if err != nil {
		return nil, fmt.Errorf("error decoding remote reply: %w", err)
	}
	if len(results) != len(data) {
		return nil, fmt.Errorf("remote call %s returned %d items for %d inputs", e.method, len(results), len(data))
	}
	out := make([]*model.FlowData, 0, len(data))
	for i, d := range data {
		result := d.Clone()
		result.BusinessData = results[i]
		out = append(out, result)
	}
	return out, nil
}

func (e *remoteExecutor) Close() error {
	return e.conn.Close()
}
