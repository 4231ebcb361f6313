package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence/storetest"
	"github.com/mohitkumar/flowengine/util"
	rd "github.com/redis/go-redis/v9"
)

func TestRedisRepos(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Repos {
		srv := miniredis.RunT(t)
		client := rd.NewClient(&rd.Options{Addr: srv.Addr()})
		t.Cleanup(func() { client.Close() })
		dao := NewBaseDaoWithClient(client, "test")
		return storetest.Repos{
			Contexts:    NewRedisContextRepo(dao, util.NewJsonEncoderDecoder[model.FlowContext]()),
			Traces:      NewRedisTraceRepo(dao, util.NewJsonEncoderDecoder[model.FlowTrace]()),
			Retries:     NewRedisRetryRepo(dao, util.NewJsonEncoderDecoder[model.FlowRetryRecord]()),
			Definitions: NewRedisDefinitionRepo(dao),
		}
	})
}
