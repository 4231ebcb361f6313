package engine

import (
	"testing"

	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/require"
)

func contextsOf(traces ...string) []*model.FlowContext {
	out := make([]*model.FlowContext, 0, len(traces))
	for i, traceID := range traces {
		out = append(out, &model.FlowContext{ID: traceID + "-" + string(rune('a'+i)), TraceID: traceID})
	}
	return out
}

func TestApplyFilters(t *testing.T) {
	tests := []struct {
		name     string
		filters  []*model.FlowFilter
		contexts []*model.FlowContext
		want     int
	}{
		{"no filters pass everything", nil, contextsOf("t1", "t2"), 2},
		{"minimum size not reached", []*model.FlowFilter{{Type: model.FILTER_MINIMUM_SIZE, Threshold: 3}}, contextsOf("t1", "t2"), 0},
		{"minimum size reached", []*model.FlowFilter{{Type: model.FILTER_MINIMUM_SIZE, Threshold: 3}}, contextsOf("t1", "t2", "t3"), 3},
		{"same source keeps full traces", []*model.FlowFilter{{Type: model.FILTER_MINIMUM_SAME_SOURCE_SIZE, Threshold: 2}}, contextsOf("t1", "t1", "t2"), 2},
		{"same source drops all", []*model.FlowFilter{{Type: model.FILTER_MINIMUM_SAME_SOURCE_SIZE, Threshold: 2}}, contextsOf("t1", "t2"), 0},
		{"filters chain in order", []*model.FlowFilter{
			{Type: model.FILTER_MINIMUM_SAME_SOURCE_SIZE, Threshold: 2},
			{Type: model.FILTER_MINIMUM_SIZE, Threshold: 3},
		}, contextsOf("t1", "t1", "t2", "t3"), 0},
		{"zero threshold passes", []*model.FlowFilter{{Type: model.FILTER_MINIMUM_SIZE, Threshold: 0}}, contextsOf("t1"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, applyFilters(tt.filters, tt.contexts), tt.want)
		})
	}
}
