package validator

import (
	"errors"
	"testing"

	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/require"
)

func validDefinition() *model.FlowDefinition {
	def := &model.FlowDefinition{
		MetaID:  "order",
		Version: "1",
		Nodes: []*model.FlowNode{
			{ID: "A", Kind: model.NODE_START, Events: []*model.FlowEvent{{ID: "E1", From: "A", To: "B"}}},
			{ID: "B", Kind: model.NODE_STATE,
				Events:   []*model.FlowEvent{{ID: "E2", From: "B", To: "C"}},
				Filters:  []*model.FlowFilter{{Type: model.FILTER_MINIMUM_SIZE, Threshold: 2}},
				Callback: &model.FlowCallback{Type: model.CALLBACK_GENERAL, FitableIDs: []string{"cb"}},
			},
			{ID: "C", Kind: model.NODE_END},
		},
	}
	def.BuildIndex()
	return def
}

func TestValidateAcceptsValidDefinition(t *testing.T) {
	require.NoError(t, New().Validate(validDefinition()))
}

func TestValidateRules(t *testing.T) {
	cases := map[string]struct {
		mutate func(def *model.FlowDefinition)
		rule   string
	}{
		"missing version": {
			mutate: func(def *model.FlowDefinition) { def.Version = "" },
			rule:   "identity",
		},
		"two start nodes": {
			mutate: func(def *model.FlowDefinition) { def.Nodes[1].Kind = model.NODE_START },
			rule:   "single-start-node",
		},
		"start node with inbound edge": {
			mutate: func(def *model.FlowDefinition) { def.Nodes[1].Events[0].To = "A" },
			rule:   "single-start-node",
		},
		"unresolved to": {
			mutate: func(def *model.FlowDefinition) { def.Nodes[1].Events[0].To = "Z" },
			rule:   "event-references",
		},
		"state node without events": {
			mutate: func(def *model.FlowDefinition) { def.Nodes[1].Events = nil },
			rule:   "non-terminal-events",
		},
		"general callback with two targets": {
			mutate: func(def *model.FlowDefinition) { def.Nodes[1].Callback.FitableIDs = []string{"a", "b"} },
			rule:   "callback-targets",
		},
		"single target callback without targets": {
			mutate: func(def *model.FlowDefinition) {
				def.Nodes[1].Callback = &model.FlowCallback{Type: model.CALLBACK_SINGLE_TARGET}
			},
			rule: "callback-targets",
		},
		"negative threshold": {
			mutate: func(def *model.FlowDefinition) { def.Nodes[1].Filters[0].Threshold = -1 },
			rule:   "filter-thresholds",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			def := validDefinition()
			tc.mutate(def)
			def.BuildIndex()
			err := New().Validate(def)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			require.Equal(t, tc.rule, ve.Rule)
		})
	}
}

func TestValidateReportsFirstFailureInChainOrder(t *testing.T) {
	def := validDefinition()
	def.MetaID = ""
	def.Nodes[1].Filters[0].Threshold = -5
	err := New().Validate(def)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "identity", ve.Rule)
}

func TestValidateRunsExtraRules(t *testing.T) {
	calls := 0
	extra := ruleFunc{"custom", func(def *model.FlowDefinition) error {
		calls++
		return nil
	}}
	require.NoError(t, New(extra).Validate(validDefinition()))
	require.Equal(t, 1, calls)
}

func TestValidatePagination(t *testing.T) {
	cases := []struct {
		offset, limit int
		ok            bool
	}{
		{0, 0, true},
		{0, 200, true},
		{10, 50, true},
		{1000, 1, true},
		{-1, 10, false},
		{0, -1, false},
		{0, 201, false},
	}
	for _, tc := range cases {
		err := ValidatePagination(tc.offset, tc.limit)
		if tc.ok {
			require.NoError(t, err, "offset=%d limit=%d", tc.offset, tc.limit)
		} else {
			require.Error(t, err, "offset=%d limit=%d", tc.offset, tc.limit)
		}
	}
}

func TestValidateTraceStatus(t *testing.T) {
	for _, status := range model.TRACE_STATUSES {
		require.NoError(t, ValidateTraceStatus(status))
	}
	var validationErr *ValidationError
	require.ErrorAs(t, ValidateTraceStatus("paused"), &validationErr)
	require.Equal(t, "trace-status", validationErr.Rule)
}
