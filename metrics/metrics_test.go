package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.IncContextsAdvanced("s", "completed", 2)
	m.ObserveTaskDuration("echo", 0.1)
	m.IncRetriesScheduled("s")
	m.IncRetriesExhausted("s")
	m.IncBusRejected("internal")
	m.ObserveLockWait(0.1)
	m.SetPublishers(1)
}

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProm("flowengine", reg)
	m.IncContextsAdvanced("order-1", "completed", 3)
	m.IncRetriesScheduled("order-1")
	m.IncBusRejected("external")
	m.ObserveLockWait(0.25)
	m.SetPublishers(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	advanced := find(families, "flowengine_contexts_advanced_total")
	require.NotNil(t, advanced)
	require.Equal(t, 3.0, advanced.GetMetric()[0].GetCounter().GetValue())

	publishers := find(families, "flowengine_publishers")
	require.NotNil(t, publishers)
	require.Equal(t, 2.0, publishers.GetMetric()[0].GetGauge().GetValue())

	require.NotNil(t, find(families, "flowengine_retries_scheduled_total"))
	require.NotNil(t, find(families, "flowengine_bus_rejected_total"))
	require.NotNil(t, find(families, "flowengine_lock_wait_seconds"))
}

func TestPromWithoutRegistry(t *testing.T) {
	m := NewProm("flowengine", nil)
	m.IncRetriesExhausted("order-1")
}

func find(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}
