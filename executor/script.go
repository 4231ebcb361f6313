package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/mohitkumar/flowengine/model"
)

var _ Executor = new(scriptExecutor)

// scriptExecutor runs javascript with the business data bound to $. Whatever $ holds when the
// script ends becomes the new business data.
type scriptExecutor struct {
	program *goja.Program
	timeout time.Duration
}

func NewScriptExecutor(spec *model.TaskSpec, conf Config) (Executor, error) {
	program, err := goja.Compile(spec.TaskID, spec.StringProperty("script"), false)
	if err != nil {
		return nil, fmt.Errorf("error compiling script: %w", err)
	}
	return &scriptExecutor{
		program: program,
		timeout: timeout(spec, conf.ScriptTimeout),
	}, nil
}

func (e *scriptExecutor) Execute(ctx context.Context, data []*model.FlowData) ([]*model.FlowData, error) {
	out := make([]*model.FlowData, 0, len(data))
	for _, d := range data {
		result, err := e.run(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, nil
}

func (e *scriptExecutor) run(ctx context.Context, d *model.FlowData) (*model.FlowData, error) {
	result := d.Clone()
	raw, err := json.Marshal(result.BusinessData)
	if err != nil {
		return nil, err
	}
	vm := goja.New()
	if _, err := vm.RunString(fmt.Sprintf("var $ = %s;", raw)); err != nil {
		return nil, fmt.Errorf("error binding data: %w", err)
	}
	if e.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(ctx.Err())
			case <-stop:
			}
		}()
	}
	if _, err := vm.RunProgram(e.program); err != nil {
		return nil, fmt.Errorf("error executing javascript: %w", err)
	}
	val, err := vm.RunString("$")
	if err != nil {
		return nil, fmt.Errorf("error executing javascript: %w", err)
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return nil, err
	}
	var business map[string]any
	if err := json.Unmarshal(res, &business); err != nil {
		return nil, fmt.Errorf("script must leave an object in $: %w", err)
	}
	if business == nil {
		business = map[string]any{}
	}
	result.BusinessData = business
	return result, nil
}
