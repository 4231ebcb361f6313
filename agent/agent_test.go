package agent

import (
	"context"
	"testing"
	"time"

	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/model"
	"github.com/stretchr/testify/require"
)

const flow = `{
  "metaId": "greet",
  "version": "1",
  "status": "active",
  "nodes": [
    {"id": "A", "type": "start"},
    {"id": "B", "type": "state", "task": {"type": "script", "properties": {"script": "$.greeting = 'hello ' + $.name;"}}},
    {"id": "C", "type": "end"}
  ],
  "events": [
    {"id": "E1", "from": "A", "to": "B"},
    {"id": "E2", "from": "B", "to": "C"}
  ]
}`

func TestAgentRunsFlow(t *testing.T) {
	conf := config.Default()
	conf.HttpPort = 0
	conf.EngineConfig.RecoveryInterval = 50 * time.Millisecond
	a, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer a.Shutdown()

	ctx := context.Background()
	_, err = a.Engine().Deploy(ctx, []byte(flow))
	require.NoError(t, err)
	traceID, err := a.Engine().Submit(ctx, "greet-1", model.NewFlowData(map[string]any{"name": "ada"}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		trace, err := a.Engine().Trace(ctx, traceID)
		return err == nil && trace.Status == model.TRACE_COMPLETED
	}, 5*time.Second, 10*time.Millisecond)
	contexts, err := a.Engine().Contexts(ctx, traceID)
	require.NoError(t, err)
	for _, c := range contexts {
		if c.NodeID == "C" {
			require.Equal(t, "hello ada", c.Data.BusinessData["greeting"])
		}
	}

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
}

func TestAgentRejectsUnknownStorage(t *testing.T) {
	conf := config.Default()
	conf.StorageType = "cassandra"
	_, err := New(conf)
	require.Error(t, err)
}
