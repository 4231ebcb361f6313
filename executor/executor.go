package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/model"
	"google.golang.org/grpc"
)

// ErrSuspended is returned by tasks that wait for an operator. The batch stays processing
// until it is resumed.
var ErrSuspended = errors.New("task suspended for manual completion")

// Executor runs one node task over a batch. It returns exactly one result per input, in order.
type Executor interface {
	Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error)
}

// Factory binds a task spec to an executor when a publisher is built.
type Factory func(spec *model.TaskSpec, conf Config) (Executor, error)

type Config struct {
	HttpTimeout   time.Duration
	ScriptTimeout time.Duration
	// RemoteTimeout is the upper bound for a single remote call.
	RemoteTimeout time.Duration
	HttpClient    *http.Client
	DialOptions   []grpc.DialOption
}

func DefaultConfig() Config {
	return Config{
		HttpTimeout:   30 * time.Second,
		ScriptTimeout: 5 * time.Second,
		RemoteTimeout: 30 * time.Minute,
	}
}

type Registry struct {
	mu        sync.RWMutex
	conf      Config
	factories map[model.TaskKind]Factory
}

func NewRegistry(conf Config) *Registry {
	return &Registry{
		conf: conf,
		factories: map[model.TaskKind]Factory{
			model.TASK_MANUAL: NewManualExecutor,
			model.TASK_ECHO:   NewEchoExecutor,
			model.TASK_HTTP:   NewHttpExecutor,
			model.TASK_SCRIPT: NewScriptExecutor,
			model.TASK_REMOTE: NewRemoteExecutor,
		},
	}
}

// Register replaces the factory for a task kind.
func (r *Registry) Register(kind model.TaskKind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

func (r *Registry) Build(node *model.FlowNode) (Executor, error) {
	kind := node.TaskKind()
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("node %s: no executor for task kind %s", node.ID, kind)
	}
	spec := node.Task
	if spec == nil {
		spec = &model.TaskSpec{Kind: kind, Properties: map[string]any{}}
	}
	return factory(spec, r.conf)
}

// timeout reads an optional duration property, falling back to def.
func timeout(spec *model.TaskSpec, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(spec.StringProperty("timeout")); err == nil && d > 0 {
		return d
	}
	return def
}
