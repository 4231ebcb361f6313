package memory

import (
	"testing"

	"github.com/mohitkumar/flowengine/persistence/storetest"
)

func TestMemoryRepos(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Repos {
		return storetest.Repos{
			Contexts:    NewContextRepo(),
			Traces:      NewTraceRepo(),
			Retries:     NewRetryRepo(),
			Definitions: NewDefinitionRepo(),
		}
	})
}
