package engine

import (
	"github.com/mohitkumar/flowengine/model"
)

// applyFilters narrows the pending set of a node to the batch that may run now. An empty result
// leaves every context pending.
func applyFilters(filters []*model.FlowFilter, contexts []*model.FlowContext) []*model.FlowContext {
	batch := contexts
	for _, f := range filters {
		switch f.Type {
		case model.FILTER_MINIMUM_SIZE:
			if len(batch) < f.Threshold {
				return nil
			}
		case model.FILTER_MINIMUM_SAME_SOURCE_SIZE:
			batch = sameSource(batch, f.Threshold)
		}
		if len(batch) == 0 {
			return nil
		}
	}
	return batch
}

// sameSource keeps the traces that have at least threshold contexts in the set.
func sameSource(contexts []*model.FlowContext, threshold int) []*model.FlowContext {
	counts := make(map[string]int)
	for _, c := range contexts {
		counts[c.TraceID]++
	}
	var out []*model.FlowContext
	for _, c := range contexts {
		if counts[c.TraceID] >= threshold {
			out = append(out, c)
		}
	}
	return out
}
