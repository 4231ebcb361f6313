package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func node(kind model.TaskKind, props map[string]any) *model.FlowNode {
	return &model.FlowNode{ID: "n1", Kind: model.NODE_STATE, Task: &model.TaskSpec{TaskID: "t1", Kind: kind, Properties: props}}
}

func batch(values ...float64) []*model.FlowData {
	out := make([]*model.FlowData, 0, len(values))
	for _, v := range values {
		out = append(out, model.NewFlowData(map[string]any{"amount": v}))
	}
	return out
}

func TestManualSuspends(t *testing.T) {
	exec, err := NewRegistry(DefaultConfig()).Build(node(model.TASK_MANUAL, nil))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), batch(1))
	require.ErrorIs(t, err, ErrSuspended)
}

func TestEchoCopiesInput(t *testing.T) {
	exec, err := NewRegistry(DefaultConfig()).Build(&model.FlowNode{ID: "start", Kind: model.NODE_START})
	require.NoError(t, err)
	in := batch(1, 2)
	out, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	out[0].BusinessData["amount"] = 99.0
	require.Equal(t, 1.0, in[0].BusinessData["amount"])
}

func TestUnknownKind(t *testing.T) {
	_, err := NewRegistry(DefaultConfig()).Build(node("smtp", nil))
	require.Error(t, err)
}

func TestHttpExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "abc", r.Header.Get("X-Tenant"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"doubled": body["value"].(float64) * 2})
	}))
	defer srv.Close()

	exec, err := NewRegistry(DefaultConfig()).Build(node(model.TASK_HTTP, map[string]any{
		"url":     srv.URL,
		"method":  http.MethodPost,
		"headers": map[string]any{"X-Tenant": "abc"},
		"params":  map[string]any{"value": "{$.amount}"},
	}))
	require.NoError(t, err)
	out, err := exec.Execute(context.Background(), batch(2, 5))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 4.0, out[0].BusinessData["doubled"])
	require.Equal(t, 10.0, out[1].BusinessData["doubled"])
	require.Equal(t, 5.0, out[1].BusinessData["amount"])
}

func TestHttpExecutorFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	exec, err := NewRegistry(DefaultConfig()).Build(node(model.TASK_HTTP, map[string]any{"url": srv.URL, "method": http.MethodGet}))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), batch(1))
	require.Error(t, err)
}

func TestScriptExecutor(t *testing.T) {
	exec, err := NewRegistry(DefaultConfig()).Build(node(model.TASK_SCRIPT, map[string]any{
		"script": "$.total = $.amount * 3; $.checked = true;",
	}))
	require.NoError(t, err)
	out, err := exec.Execute(context.Background(), batch(2))
	require.NoError(t, err)
	require.Equal(t, 6.0, out[0].BusinessData["total"])
	require.Equal(t, true, out[0].BusinessData["checked"])
}

func TestScriptExecutorTimeout(t *testing.T) {
	exec, err := NewRegistry(DefaultConfig()).Build(node(model.TASK_SCRIPT, map[string]any{
		"script":  "while (true) {}",
		"timeout": "50ms",
	}))
	require.NoError(t, err)
	start := time.Now()
	_, err = exec.Execute(context.Background(), batch(1))
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

const scoreMethod = "/scoring.Scorer/Score"

func startRemote(t *testing.T, handler func(req *structpb.Struct) *structpb.Struct) grpc.DialOption {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(srv any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != scoreMethod {
			return errors.New("unknown method " + method)
		}
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		return stream.SendMsg(handler(req))
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestRemoteExecutor(t *testing.T) {
	dialer := startRemote(t, func(req *structpb.Struct) *structpb.Struct {
		items := req.GetFields()["items"].GetListValue().GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			m := item.GetStructValue().AsMap()
			m["score"] = m["amount"].(float64) + 1
			out = append(out, m)
		}
		resp, _ := structpb.NewStruct(map[string]any{"items": out})
		return resp
	})
	conf := DefaultConfig()
	conf.DialOptions = []grpc.DialOption{dialer}
	exec, err := NewRegistry(conf).Build(node(model.TASK_REMOTE, map[string]any{
		"target": "passthrough:///bufnet",
		"method": scoreMethod,
	}))
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), batch(1, 2))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 2.0, out[0].BusinessData["score"])
	require.Equal(t, 3.0, out[1].BusinessData["score"])
}

func TestRemoteExecutorRejectsShortReply(t *testing.T) {
	dialer := startRemote(t, func(req *structpb.Struct) *structpb.Struct {
		resp, _ := structpb.NewStruct(map[string]any{"items": []any{}})
		return resp
	})
	conf := DefaultConfig()
	conf.DialOptions = []grpc.DialOption{dialer}
	exec, err := NewRegistry(conf).Build(node(model.TASK_REMOTE, map[string]any{
		"target": "passthrough:///bufnet",
		"method": scoreMethod,
	}))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), batch(1))
	require.Error(t, err)
}
