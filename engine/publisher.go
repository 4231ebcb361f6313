package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/mohitkumar/flowengine/executor"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/model"
	"go.uber.org/zap"
)

// Publisher is the live dispatcher of one flow version: the definition plus one bound executor
// per node.
type Publisher struct {
	def       *model.FlowDefinition
	executors map[string]executor.Executor

	mu      sync.Mutex
	uses    int
	retired bool
	closed  bool
}

func NewPublisher(def *model.FlowDefinition, registry *executor.Registry) (*Publisher, error) {
	p := &Publisher{
		def:       def,
		executors: make(map[string]executor.Executor, len(def.Nodes)),
	}
	for _, n := range def.Nodes {
		exec, err := registry.Build(n)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("stream %s: %w", def.StreamID(), err)
		}
		p.executors[n.ID] = exec
	}
	return p, nil
}

func (p *Publisher) StreamID() string {
	return p.def.StreamID()
}

func (p *Publisher) Definition() *model.FlowDefinition {
	return p.def
}

func (p *Publisher) Executor(nodeID string) (executor.Executor, bool) {
	exec, ok := p.executors[nodeID]
	return exec, ok
}

func (p *Publisher) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retired {
		return false
	}
	p.uses++
	return true
}

// Release ends a use taken by Registry.Acquire. The last use of a retired publisher closes it.
func (p *Publisher) Release() {
	p.mu.Lock()
	p.uses--
	last := p.retired && p.uses <= 0
	p.mu.Unlock()
	if last {
		p.Close()
	}
}

// retire stops new uses. The executors close once the uses in flight are released.
func (p *Publisher) retire() {
	p.mu.Lock()
	p.retired = true
	idle := p.uses <= 0
	p.mu.Unlock()
	if idle {
		p.Close()
	}
}

// Close releases executors that hold connections. Only the first call has an effect.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	for nodeID, exec := range p.executors {
		if closer, ok := exec.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("error closing executor", zap.String("stream", p.def.StreamID()), zap.String("node", nodeID), zap.Error(err))
			}
		}
	}
}
