package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohitkumar/flowengine/metrics"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeTraces struct {
	traces []*model.FlowTrace
}

func (f *fakeTraces) TracesByStatus(ctx context.Context, status model.TraceStatus, offset int, limit int) ([]*model.FlowTrace, error) {
	if err := validator.ValidateTraceStatus(status); err != nil {
		return nil, err
	}
	if err := validator.ValidatePagination(offset, limit); err != nil {
		return nil, err
	}
	matched := []*model.FlowTrace{}
	for _, t := range f.traces {
		if t.Status == status {
			matched = append(matched, t)
		}
	}
	if offset >= len(matched) {
		return []*model.FlowTrace{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func newTestServer(t *testing.T) *httptest.Server {
	reg := prometheus.NewRegistry()
	m := metrics.NewProm("flowengine", reg)
	m.SetPublishers(2)
	traces := &fakeTraces{traces: []*model.FlowTrace{
		{ID: "t1", StreamID: "s-1", Status: model.TRACE_RUNNING},
		{ID: "t2", StreamID: "s-1", Status: model.TRACE_RUNNING},
		{ID: "t3", StreamID: "s-2", Status: model.TRACE_RUNNING},
		{ID: "t4", StreamID: "s-2", Status: model.TRACE_ERROR},
	}}
	s, err := NewServer(0, traces, reg)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestServer(t *testing.T) {
	srv := newTestServer(t)
	for scenario, fn := range map[string]func(t *testing.T, url string){
		"health":               testHealth,
		"metrics":              testMetrics,
		"running traces":       testRunningTraces,
		"traces by status":     testTracesByStatus,
		"rejects bad status":   testRejectsBadStatus,
		"rejects bad paging":   testRejectsBadPaging,
		"rejects non integers": testRejectsNonIntegers,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, srv.URL)
		})
	}
}

func testHealth(t *testing.T, url string) {
	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func testMetrics(t *testing.T, url string) {
	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "flowengine_publishers 2")
}

func testRunningTraces(t *testing.T, url string) {
	resp, err := http.Get(url + "/traces/running?offset=1&limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Traces []*model.FlowTrace `json:"traces"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Traces, 1)
	require.Equal(t, "t2", page.Traces[0].ID)
}

func testTracesByStatus(t *testing.T, url string) {
	for status, want := range map[string][]string{
		"":        {"t1", "t2", "t3"},
		"running": {"t1", "t2", "t3"},
		"error":   {"t4"},
	} {
		resp, err := http.Get(url + "/traces?status=" + status)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, status)
		var page struct {
			Traces []*model.FlowTrace `json:"traces"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
		resp.Body.Close()
		var ids []string
		for _, tr := range page.Traces {
			ids = append(ids, tr.ID)
		}
		require.Equal(t, want, ids, status)
	}
}

func testRejectsBadStatus(t *testing.T, url string) {
	resp, err := http.Get(url + "/traces?status=paused")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func testRejectsBadPaging(t *testing.T, url string) {
	resp, err := http.Get(url + "/traces/running?limit=1000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func testRejectsNonIntegers(t *testing.T, url string) {
	resp, err := http.Get(url + "/traces/running?offset=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
