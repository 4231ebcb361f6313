package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohitkumar/flowengine/model"
	"gopkg.in/yaml.v3"
)

type ErrorKind string

const MALFORMED_PAYLOAD ErrorKind = "Malformed"
const INVALID_REFERENCE ErrorKind = "InvalidReference"
const UNSUPPORTED_TASK_KIND ErrorKind = "UnsupportedTaskKind"

type ParseError struct {
	Kind    ErrorKind
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

type rawDefinition struct {
	MetaID            string         `json:"metaId"`
	Version           string         `json:"version"`
	Name              string         `json:"name"`
	Status            string         `json:"status"`
	ExceptionFitables []string       `json:"exceptionFitables"`
	Metadata          map[string]any `json:"metadata"`
	Nodes             []rawNode      `json:"nodes"`
	Events            []rawEvent     `json:"events"`
}

type rawNode struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Task     *rawTask     `json:"task"`
	Filters  []rawFilter  `json:"filters"`
	Callback *rawCallback `json:"callback"`
}

type rawFilter struct {
	Type       string            `json:"type"`
	Threshold  *int              `json:"threshold"`
	Properties map[string]string `json:"properties"`
}

type rawCallback struct {
	Type       string   `json:"type"`
	FitableIDs []string `json:"fitableIds"`
}

type rawEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Condition  string         `json:"condition"`
	Conditions *ConditionTree `json:"conditions"`
}

var nodeKinds = map[string]model.NodeKind{
	"start": model.NODE_START,
	"state": model.NODE_STATE,
	"end":   model.NODE_END,
}

var filterTypes = map[string]model.FilterType{
	string(model.FILTER_MINIMUM_SIZE):             model.FILTER_MINIMUM_SIZE,
	string(model.FILTER_MINIMUM_SAME_SOURCE_SIZE): model.FILTER_MINIMUM_SAME_SOURCE_SIZE,
}

var callbackTypes = map[string]model.CallbackType{
	string(model.CALLBACK_GENERAL):       model.CALLBACK_GENERAL,
	string(model.CALLBACK_SINGLE_TARGET): model.CALLBACK_SINGLE_TARGET,
}

func definitionStatus(s string) (model.DefinitionStatus, bool) {
	switch model.DefinitionStatus(strings.ToLower(s)) {
	case "", model.DEFINITION_DRAFT:
		return model.DEFINITION_DRAFT, true
	case model.DEFINITION_ACTIVE:
		return model.DEFINITION_ACTIVE, true
	case model.DEFINITION_DEPRECATED:
		return model.DEFINITION_DEPRECATED, true
	}
	return "", false
}

// Parse builds a flow definition from a JSON payload. It never returns a
// partially built definition: any error discards the whole result.
func Parse(raw []byte) (*model.FlowDefinition, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "invalid json: %v", err)
	}
	if err := validateSchema(generic); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "%v", err)
	}
	var rd rawDefinition
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "invalid definition: %v", err)
	}
	return build(rd)
}

// ParseYAML accepts the same tree as Parse written in YAML.
func ParseYAML(raw []byte) (*model.FlowDefinition, error) {
	asJson, err := YAMLToJSON(raw)
	if err != nil {
		return nil, err
	}
	return Parse(asJson)
}

// YAMLToJSON rewrites a YAML definition as the equivalent JSON payload.
func YAMLToJSON(raw []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "invalid yaml: %v", err)
	}
	asJson, err := json.Marshal(tree)
	if err != nil {
		return nil, newError(MALFORMED_PAYLOAD, "yaml is not representable as json: %v", err)
	}
	return asJson, nil
}

func build(rd rawDefinition) (*model.FlowDefinition, error) {
	status, ok := definitionStatus(rd.Status)
	if !ok {
		return nil, newError(MALFORMED_PAYLOAD, "unknown definition status %q", rd.Status)
	}
	def := &model.FlowDefinition{
		MetaID:            rd.MetaID,
		Version:           rd.Version,
		Name:              rd.Name,
		Status:            status,
		ExceptionFitables: rd.ExceptionFitables,
		Metadata:          rd.Metadata,
	}

	nodes := make(map[string]*model.FlowNode, len(rd.Nodes))
	for _, rn := range rd.Nodes {
		node, err := buildNode(rn)
		if err != nil {
			return nil, err
		}
		if _, dup := nodes[node.ID]; dup {
			return nil, newError(MALFORMED_PAYLOAD, "duplicate node id %s", node.ID)
		}
		nodes[node.ID] = node
		def.Nodes = append(def.Nodes, node)
	}

	events := make(map[string]bool, len(rd.Events))
	for _, re := range rd.Events {
		if events[re.ID] {
			return nil, newError(MALFORMED_PAYLOAD, "duplicate event id %s", re.ID)
		}
		events[re.ID] = true
		from, ok := nodes[re.From]
		if !ok {
			return nil, newError(INVALID_REFERENCE, "event %s references unknown from node %q", re.ID, re.From)
		}
		ev, err := buildEvent(re)
		if err != nil {
			return nil, err
		}
		from.Events = append(from.Events, ev)
	}
	def.BuildIndex()
	return def, nil
}

func buildNode(rn rawNode) (*model.FlowNode, error) {
	kind, ok := nodeKinds[strings.ToLower(rn.Type)]
	if !ok {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: unknown node type %q", rn.ID, rn.Type)
	}
	task, err := parseTask(rn.ID, rn.Task)
	if err != nil {
		return nil, err
	}
	node := &model.FlowNode{
		ID:   rn.ID,
		Name: rn.Name,
		Kind: kind,
		Task: task,
	}
	for i, rf := range rn.Filters {
		filter, err := buildFilter(rn.ID, i, rf)
		if err != nil {
			return nil, err
		}
		node.Filters = append(node.Filters, filter)
	}
	if rn.Callback != nil {
		cbType, ok := callbackTypes[strings.ToLower(rn.Callback.Type)]
		if !ok {
			return nil, newError(MALFORMED_PAYLOAD, "node %s: unknown callback type %q", rn.ID, rn.Callback.Type)
		}
		node.Callback = &model.FlowCallback{
			Type:       cbType,
			FitableIDs: rn.Callback.FitableIDs,
		}
	}
	return node, nil
}

func buildFilter(nodeID string, i int, rf rawFilter) (*model.FlowFilter, error) {
	ft, ok := filterTypes[strings.ToLower(rf.Type)]
	if !ok {
		return nil, newError(MALFORMED_PAYLOAD, "node %s: filter %d has unknown type %q", nodeID, i, rf.Type)
	}
	filter := &model.FlowFilter{
		Type:       ft,
		Properties: rf.Properties,
	}
	switch {
	case rf.Threshold != nil:
		filter.Threshold = *rf.Threshold
	case rf.Properties["threshold"] != "":
		n, err := strconv.Atoi(rf.Properties["threshold"])
		if err != nil {
			return nil, newError(MALFORMED_PAYLOAD, "node %s: filter %d threshold is not an integer", nodeID, i)
		}
		filter.Threshold = n
	default:
		return nil, newError(MALFORMED_PAYLOAD, "node %s: filter %d has no threshold", nodeID, i)
	}
	return filter, nil
}

func buildEvent(re rawEvent) (*model.FlowEvent, error) {
	ev := &model.FlowEvent{
		ID:        re.ID,
		Name:      re.Name,
		From:      re.From,
		To:        re.To,
		Condition: strings.TrimSpace(re.Condition),
	}
	if re.Conditions != nil && len(re.Conditions.Conditions) > 0 {
		expr, err := TranslateConditions(*re.Conditions)
		if err != nil {
			return nil, newError(MALFORMED_PAYLOAD, "event %s: %v", re.ID, err)
		}
		ev.Condition = expr
	}
	return ev, nil
}
