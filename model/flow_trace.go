package model

import "time"

type TraceStatus string

const TRACE_RUNNING TraceStatus = "running"
const TRACE_ERROR TraceStatus = "error"
const TRACE_TERMINATED TraceStatus = "terminated"
const TRACE_COMPLETED TraceStatus = "completed"

var TRACE_STATUSES = []TraceStatus{TRACE_RUNNING, TRACE_ERROR, TRACE_TERMINATED, TRACE_COMPLETED}

// FlowTrace is one invocation of a flow definition version.
type FlowTrace struct {
	ID          string      `json:"id"`
	StreamID    string      `json:"streamId"`
	Status      TraceStatus `json:"status"`
	ContextPool []string    `json:"contextPool"`
	Operator    string      `json:"operator,omitempty"`
	Tenant      string      `json:"tenant,omitempty"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (t *FlowTrace) IsFinished() bool {
	return t.Status == TRACE_COMPLETED || t.Status == TRACE_TERMINATED
}
