package model

import "time"

type FlowRetryRecord struct {
	EntityID       string    `json:"entityId"`
	StreamID       string    `json:"streamId"`
	TraceID        string    `json:"traceId"`
	NodeID         string    `json:"nodeId"`
	RetryCount     int       `json:"retryCount"`
	NextRetryTime  time.Time `json:"nextRetryTime"`
	LastRetryTime  time.Time `json:"lastRetryTime"`
	FailurePayload string    `json:"failurePayload,omitempty"`
}
