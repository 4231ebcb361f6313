package model

import (
	"encoding/json"
	"time"
)

// FlowData is the unit of business data moving through a flow.
type FlowData struct {
	BusinessData map[string]any `json:"businessData"`
	ContextData  map[string]any `json:"contextData,omitempty"`
	Operator     string         `json:"operator,omitempty"`
	StartTime    time.Time      `json:"startTime"`
}

func NewFlowData(business map[string]any) *FlowData {
	if business == nil {
		business = map[string]any{}
	}
	return &FlowData{
		BusinessData: business,
		ContextData:  map[string]any{},
		StartTime:    time.Now().UTC(),
	}
}

// Clone deep copies the data maps through JSON, the same shape they have once persisted.
func (d *FlowData) Clone() *FlowData {
	if d == nil {
		return nil
	}
	out := &FlowData{
		Operator:  d.Operator,
		StartTime: d.StartTime,
	}
	out.BusinessData = cloneMap(d.BusinessData)
	out.ContextData = cloneMap(d.ContextData)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
