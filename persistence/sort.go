package persistence

import (
	"sort"

	"github.com/mohitkumar/flowengine/model"
)

// SortContexts orders contexts oldest first, then by positional index and id.
func SortContexts(contexts []*model.FlowContext) {
	sort.SliceStable(contexts, func(i, j int) bool {
		a, b := contexts[i], contexts[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ID < b.ID
	})
}

func SortTraces(traces []*model.FlowTrace) {
	sort.SliceStable(traces, func(i, j int) bool {
		a, b := traces[i], traces[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})
}

func SortRetryRecords(records []*model.FlowRetryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.NextRetryTime.Equal(b.NextRetryTime) {
			return a.NextRetryTime.Before(b.NextRetryTime)
		}
		return a.EntityID < b.EntityID
	})
}
