package parser

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/mohitkumar/flowengine/model"
)

type rawTask struct {
	TaskID     string         `json:"taskId"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type taskParser func(nodeID string, raw rawTask) (*model.TaskSpec, error)

var taskParsers = map[model.TaskKind]taskParser{
	model.TASK_MANUAL: parsePassThroughTask(model.TASK_MANUAL),
	model.TASK_ECHO:   parsePassThroughTask(model.TASK_ECHO),
	model.TASK_HTTP:   parseHttpTask,
	model.TASK_SCRIPT: parseScriptTask,
	model.TASK_REMOTE: parseRemoteTask,
}

var httpMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func parseTask(nodeID string, raw *rawTask) (*model.TaskSpec, error) {
	if raw == nil {
		return nil, nil
	}
	kind := model.TaskKind(strings.ToLower(raw.Type))
	parse, ok := taskParsers[kind]
	if !ok {
		return nil, newError(UNSUPPORTED_TASK_KIND, "node %s: unsupported task kind %q", nodeID, raw.Type)
	}
	return parse(nodeID, *raw)
}

func newTaskSpec(kind model.TaskKind, raw rawTask) *model.TaskSpec {
	props := raw.Properties
	if props == nil {
		props = map[string]any{}
	}
	return &model.TaskSpec{
		TaskID:     raw.TaskID,
		Kind:       kind,
		Properties: props,
	}
}

func parsePassThroughTask(kind model.TaskKind) taskParser {
	return func(nodeID string, raw rawTask) (*model.TaskSpec, error) {
		return newTaskSpec(kind, raw), nil
	}
}

func parseHttpTask(nodeID string, raw rawTask) (*model.TaskSpec, error) {
	spec := newTaskSpec(model.TASK_HTTP, raw)
	if spec.StringProperty("url") == "" {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: http task requires a url", nodeID)
	}
	method := strings.ToUpper(spec.StringProperty("method"))
	if method == "" {
		method = http.MethodPost
	}
	if !httpMethods[method] {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: unsupported http method %q", nodeID, method)
	}
	spec.Properties["method"] = method
	if err := checkDuration(spec, "timeout"); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: %v", nodeID, err)
	}
	return spec, nil
}

func parseScriptTask(nodeID string, raw rawTask) (*model.TaskSpec, error) {
	spec := newTaskSpec(model.TASK_SCRIPT, raw)
	script := spec.StringProperty("script")
	if strings.TrimSpace(script) == "" {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: script task requires a script", nodeID)
	}
	if _, err := goja.Compile(nodeID, script, false); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: script does not compile: %v", nodeID, err)
	}
	if err := checkDuration(spec, "timeout"); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: %v", nodeID, err)
	}
	return spec, nil
}

func parseRemoteTask(nodeID string, raw rawTask) (*model.TaskSpec, error) {
	spec := newTaskSpec(model.TASK_REMOTE, raw)
	if spec.StringProperty("target") == "" {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: remote task requires a target", nodeID)
	}
	if !strings.HasPrefix(spec.StringProperty("method"), "/") {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: remote task method must be a full method name like /pkg.Service/Method", nodeID)
	}
	if err := checkDuration(spec, "timeout"); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: %v", nodeID, err)
	}
	return spec, nil
}

func checkDuration(spec *model.TaskSpec, name string) error {
	v, ok := spec.Properties[name]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s must be a duration string", name)
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	return nil
}
