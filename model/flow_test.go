package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefinitionLookups(t *testing.T) {
	def := &FlowDefinition{
		MetaID:  "order",
		Version: "1.0.0",
		Nodes: []*FlowNode{
			{ID: "A", Kind: NODE_START, Events: []*FlowEvent{{ID: "E1", From: "A", To: "B"}}},
			{ID: "B", Kind: NODE_STATE, Task: &TaskSpec{Kind: TASK_HTTP, Properties: map[string]any{"url": "http://x"}}, Events: []*FlowEvent{{ID: "E2", From: "B", To: "C"}}},
			{ID: "C", Kind: NODE_END},
		},
	}
	require.Equal(t, "order-1.0.0", def.StreamID())

	n, ok := def.Node("B")
	require.True(t, ok)
	require.Equal(t, TASK_HTTP, n.TaskKind())
	require.Equal(t, "http://x", n.Task.StringProperty("url"))

	def.BuildIndex()
	_, ok = def.Node("missing")
	require.False(t, ok)
	c, ok := def.Node("C")
	require.True(t, ok)
	require.Equal(t, TASK_ECHO, c.TaskKind())

	require.Len(t, def.StartNodes(), 1)
	inbound := def.InboundEvents("C")
	require.Len(t, inbound, 1)
	require.Equal(t, "E2", inbound[0].ID)
}

func TestFlowDataCloneIsDeep(t *testing.T) {
	d := NewFlowData(map[string]any{"order": map[string]any{"id": "o-1"}})
	c := d.Clone()
	c.BusinessData["order"].(map[string]any)["id"] = "o-2"
	require.Equal(t, "o-1", d.BusinessData["order"].(map[string]any)["id"])
	require.Equal(t, d.StartTime, c.StartTime)
}
