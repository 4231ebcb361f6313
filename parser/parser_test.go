package parser

import (
	"errors"
	"testing"

	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/require"
)

const simpleFlow = `{
  "metaId": "order",
  "version": "1.0.0",
  "name": "order flow",
  "status": "active",
  "nodes": [
    {"id": "A", "type": "start"},
    {"id": "B", "type": "state", "task": {"type": "echo"},
     "filters": [{"type": "minimum_size", "threshold": 3}],
     "callback": {"type": "general", "fitableIds": ["notify-order"]}},
    {"id": "C", "type": "end"}
  ],
  "events": [
    {"id": "E1", "from": "A", "to": "B"},
    {"id": "E2", "from": "B", "to": "C",
     "conditions": {"conditions": [{"key": "status", "value": "done", "condition": "equal"}], "conditionRelation": "and"}}
  ]
}`

func TestParseSimpleFlow(t *testing.T) {
	def, err := Parse([]byte(simpleFlow))
	require.NoError(t, err)
	require.Equal(t, "order-1.0.0", def.StreamID())
	require.Equal(t, model.DEFINITION_ACTIVE, def.Status)
	require.Len(t, def.Nodes, 3)

	a, ok := def.Node("A")
	require.True(t, ok)
	require.Equal(t, model.NODE_START, a.Kind)
	require.Len(t, a.Events, 1)
	require.Equal(t, "", a.Events[0].Condition)

	b, _ := def.Node("B")
	require.Equal(t, model.TASK_ECHO, b.Task.Kind)
	require.Equal(t, 3, b.Filters[0].Threshold)
	require.Equal(t, model.CALLBACK_GENERAL, b.Callback.Type)
	require.Equal(t, `status == "done"`, b.Events[0].Condition)
}

func TestParseYAML(t *testing.T) {
	raw := `
metaId: order
version: "2"
nodes:
  - id: A
    type: start
  - id: B
    type: end
events:
  - id: E1
    from: A
    to: B
    conditions:
      conditionRelation: or
      conditions:
        - {key: amount, value: 10, condition: greater}
        - {key: vip, value: true, condition: equal}
`
	def, err := ParseYAML([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, model.DEFINITION_DRAFT, def.Status)
	a, _ := def.Node("A")
	require.Equal(t, "amount > 10 || vip == true", a.Events[0].Condition)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		payload string
		kind    ErrorKind
	}{
		"invalid json": {
			payload: `{"nodes": [`,
			kind:    MALFORMED_PAYLOAD,
		},
		"schema violation": {
			payload: `{"metaId": "x", "nodes": []}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"unknown from node": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start"}],
			  "events":[{"id":"E1","from":"Z","to":"A"}]}`,
			kind: INVALID_REFERENCE,
		},
		"unsupported task kind": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start","task":{"type":"ftp"}}]}`,
			kind:    UNSUPPORTED_TASK_KIND,
		},
		"unknown node kind": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"fork"}]}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"duplicate node": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start"},{"id":"A","type":"end"}]}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"http task without url": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start","task":{"type":"http"}}]}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"script does not compile": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start","task":{"type":"script","properties":{"script":"var = ;"}}}]}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"remote task without method": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start","task":{"type":"remote","properties":{"target":"localhost:1"}}}]}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"unknown filter": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start","filters":[{"type":"max","threshold":1}]}]}`,
			kind:    MALFORMED_PAYLOAD,
		},
		"unknown condition operator": {
			payload: `{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start"},{"id":"B","type":"end"}],
			  "events":[{"id":"E1","from":"A","to":"B","conditions":{"conditions":[{"key":"a","value":1,"condition":"like"}]}}]}`,
			kind: MALFORMED_PAYLOAD,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			def, err := Parse([]byte(tc.payload))
			require.Nil(t, def)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "expected ParseError, got %v", err)
			require.Equal(t, tc.kind, pe.Kind)
		})
	}
}

func TestParseKeepsUnresolvedTargetForValidator(t *testing.T) {
	def, err := Parse([]byte(`{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start"}],
	  "events":[{"id":"E1","from":"A","to":"nowhere"}]}`))
	require.NoError(t, err)
	a, _ := def.Node("A")
	require.Equal(t, "nowhere", a.Events[0].To)
}

func TestParseFilterThresholdFromProperties(t *testing.T) {
	def, err := Parse([]byte(`{"metaId":"x","version":"1","nodes":[{"id":"A","type":"start",
	  "filters":[{"type":"minimum_same_source_size","properties":{"threshold":"2"}}]}]}`))
	require.NoError(t, err)
	a, _ := def.Node("A")
	require.Equal(t, model.FILTER_MINIMUM_SAME_SOURCE_SIZE, a.Filters[0].Type)
	require.Equal(t, 2, a.Filters[0].Threshold)
}
