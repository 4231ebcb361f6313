package model

import "time"

type ContextStatus string

const CONTEXT_PENDING ContextStatus = "pending"
const CONTEXT_PROCESSING ContextStatus = "processing"
const CONTEXT_COMPLETED ContextStatus = "completed"
const CONTEXT_ERROR ContextStatus = "error"
const CONTEXT_ARCHIVED ContextStatus = "archived"

// FlowContext is one data unit sitting at one node of one trace.
type FlowContext struct {
	ID        string        `json:"id"`
	TraceID   string        `json:"traceId"`
	StreamID  string        `json:"streamId"`
	NodeID    string        `json:"nodeId"`
	Index     int           `json:"index"`
	PrevID    string        `json:"prevId,omitempty"`
	Data      FlowData      `json:"data"`
	Status    ContextStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func ContextIDs(contexts []*FlowContext) []string {
	ids := make([]string, 0, len(contexts))
	for _, c := range contexts {
		ids = append(ids, c.ID)
	}
	return ids
}
