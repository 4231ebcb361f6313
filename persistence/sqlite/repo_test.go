package sqlite

import (
	"testing"

	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence/storetest"
	"github.com/mohitkumar/flowengine/util"
	"github.com/stretchr/testify/require"
)

func TestSqliteRepos(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Repos {
		db, err := Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return storetest.Repos{
			Contexts:    NewContextRepo(db, util.NewJsonEncoderDecoder[model.FlowContext]()),
			Traces:      NewTraceRepo(db, util.NewJsonEncoderDecoder[model.FlowTrace]()),
			Retries:     NewRetryRepo(db, util.NewJsonEncoderDecoder[model.FlowRetryRecord]()),
			Definitions: NewDefinitionRepo(db),
		}
	})
}
