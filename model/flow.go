package model

type DefinitionStatus string

const DEFINITION_DRAFT DefinitionStatus = "draft"
const DEFINITION_ACTIVE DefinitionStatus = "active"
const DEFINITION_DEPRECATED DefinitionStatus = "deprecated"

type NodeKind string

const NODE_START NodeKind = "start"
const NODE_STATE NodeKind = "state"
const NODE_END NodeKind = "end"

type TaskKind string

const TASK_MANUAL TaskKind = "manual"
const TASK_ECHO TaskKind = "echo"
const TASK_HTTP TaskKind = "http"
const TASK_SCRIPT TaskKind = "script"
const TASK_REMOTE TaskKind = "remote"

type FilterType string

const FILTER_MINIMUM_SIZE FilterType = "minimum_size"
const FILTER_MINIMUM_SAME_SOURCE_SIZE FilterType = "minimum_same_source_size"

type CallbackType string

const CALLBACK_GENERAL CallbackType = "general"
const CALLBACK_SINGLE_TARGET CallbackType = "single_target"

// FlowDefinition is one version of a flow graph. Nodes keep payload order.
type FlowDefinition struct {
	MetaID            string           `json:"metaId"`
	Version           string           `json:"version"`
	Name              string           `json:"name"`
	Status            DefinitionStatus `json:"status"`
	Nodes             []*FlowNode      `json:"nodes"`
	ExceptionFitables []string         `json:"exceptionFitables,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`

	nodeIndex map[string]*FlowNode
}

type FlowNode struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Kind     NodeKind      `json:"kind"`
	Task     *TaskSpec     `json:"task,omitempty"`
	Events   []*FlowEvent  `json:"events,omitempty"`
	Filters  []*FlowFilter `json:"filters,omitempty"`
	Callback *FlowCallback `json:"callback,omitempty"`
}

type TaskSpec struct {
	TaskID     string         `json:"taskId,omitempty"`
	Kind       TaskKind       `json:"kind"`
	Properties map[string]any `json:"properties,omitempty"`
}

// FlowEvent is a guarded edge. An empty Condition always holds.
type FlowEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

type FlowFilter struct {
	Type       FilterType        `json:"type"`
	Threshold  int               `json:"threshold"`
	Properties map[string]string `json:"properties,omitempty"`
}

type FlowCallback struct {
	Type       CallbackType `json:"type"`
	FitableIDs []string     `json:"fitableIds"`
}

func StreamID(metaID string, version string) string {
	return metaID + "-" + version
}

func (d *FlowDefinition) StreamID() string {
	return StreamID(d.MetaID, d.Version)
}

// BuildIndex must be called after Nodes is final and before the definition is shared.
func (d *FlowDefinition) BuildIndex() {
	d.nodeIndex = make(map[string]*FlowNode, len(d.Nodes))
	for _, n := range d.Nodes {
		d.nodeIndex[n.ID] = n
	}
}

func (d *FlowDefinition) Node(id string) (*FlowNode, bool) {
	if d.nodeIndex != nil {
		n, ok := d.nodeIndex[id]
		return n, ok
	}
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

func (d *FlowDefinition) StartNodes() []*FlowNode {
	var out []*FlowNode
	for _, n := range d.Nodes {
		if n.Kind == NODE_START {
			out = append(out, n)
		}
	}
	return out
}

func (d *FlowDefinition) InboundEvents(nodeID string) []*FlowEvent {
	var out []*FlowEvent
	for _, n := range d.Nodes {
		for _, ev := range n.Events {
			if ev.To == nodeID {
				out = append(out, ev)
			}
		}
	}
	return out
}

func (n *FlowNode) TaskKind() TaskKind {
	if n.Task == nil {
		return TASK_ECHO
	}
	return n.Task.Kind
}

func (t *TaskSpec) StringProperty(name string) string {
	if t == nil || t.Properties == nil {
		return ""
	}
	if s, ok := t.Properties[name].(string); ok {
		return s
	}
	return ""
}
