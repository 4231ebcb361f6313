package rule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	c "github.com/patrickmn/go-cache"
)

// Evaluator decides whether a guard expression holds for a unit of business data.
type Evaluator interface {
	Evaluate(expression string, data map[string]any) (bool, error)
}

var _ Evaluator = new(JsEvaluator)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// JsEvaluator runs guards as javascript expressions. Business data is visible as $ and each
// top-level key is also bound as a variable of its own, unless it names a global.
type JsEvaluator struct {
	programs *c.Cache
}

func NewJsEvaluator() *JsEvaluator {
	return &JsEvaluator{programs: c.New(c.NoExpiration, 0)}
}

func (e *JsEvaluator) program(expression string) (*goja.Program, error) {
	if p, ok := e.programs.Get(expression); ok {
		return p.(*goja.Program), nil
	}
	p, err := goja.Compile("guard", expression, false)
	if err != nil {
		return nil, fmt.Errorf("error compiling guard %q: %w", expression, err)
	}
	e.programs.SetDefault(expression, p)
	return p, nil
}

// Evaluate treats an empty expression as always true. A guard that touches data which is not
// there evaluates to false rather than failing.
func (e *JsEvaluator) Evaluate(expression string, data map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	p, err := e.program(expression)
	if err != nil {
		return false, err
	}
	if data == nil {
		data = map[string]any{}
	}
	vm := goja.New()
	if err := vm.Set("$", data); err != nil {
		return false, err
	}
	for k, v := range data {
		// keys naming a builtin such as String stay reachable through $ only
		if k == "$" || !identifier.MatchString(k) || vm.Get(k) != nil {
			continue
		}
		if err := vm.Set(k, v); err != nil {
			return false, err
		}
	}
	val, err := vm.RunProgram(p)
	if err != nil {
		if missingData(vm, err) {
			return false, nil
		}
		return false, fmt.Errorf("error evaluating guard %q: %w", expression, err)
	}
	return val.ToBoolean(), nil
}

func missingData(vm *goja.Runtime, err error) bool {
	var exc *goja.Exception
	if !errors.As(err, &exc) || exc.Value() == nil {
		return false
	}
	obj := exc.Value().ToObject(vm)
	if obj == nil {
		return false
	}
	name := obj.Get("name")
	if name == nil {
		return false
	}
	switch name.String() {
	case "ReferenceError", "TypeError":
		return true
	}
	return false
}
