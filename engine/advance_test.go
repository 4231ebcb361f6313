package engine

import (
	"testing"

	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/require"
)

func TestSuccessorIDIsStable(t *testing.T) {
	prev := &model.FlowContext{ID: "ctx-1"}
	e1 := &model.FlowEvent{ID: "E1", To: "B"}
	e2 := &model.FlowEvent{ID: "E2", To: "C"}
	require.Equal(t, successorID(prev, e1), successorID(prev, e1))
	require.NotEqual(t, successorID(prev, e1), successorID(prev, e2))
	require.NotEqual(t, successorID(prev, e1), successorID(&model.FlowContext{ID: "ctx-2"}, e1))
}
