package container

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/lock"
	"github.com/stretchr/testify/require"
)

func TestInitByStorageType(t *testing.T) {
	srv := miniredis.RunT(t)
	for name, conf := range map[string]func() config.Config{
		"memory": func() config.Config {
			return config.Default()
		},
		"sqlite": func() config.Config {
			c := config.Default()
			c.StorageType = config.STORAGE_TYPE_SQLITE
			c.SqliteConfig.DSN = ":memory:"
			return c
		},
		"redis": func() config.Config {
			c := config.Default()
			c.StorageType = config.STORAGE_TYPE_REDIS
			c.RedisConfig.Addrs = []string{srv.Addr()}
			return c
		},
	} {
		t.Run(name, func(t *testing.T) {
			d := NewDiContainer()
			require.NoError(t, d.Init(conf()))
			t.Cleanup(func() { d.Close() })

			ctx := context.Background()
			stores := d.GetStores()
			require.NoError(t, stores.Definitions.Save(ctx, "s-1", []byte(`{}`)))
			ids, err := stores.Definitions.List(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"s-1"}, ids)

			key := lock.Key(lock.NODE_LOCK_PREFIX, "s-1", "A")
			ok, err := d.GetLockProvider().TryAcquire(ctx, key, "me", time.Now())
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestInitRejectsUnknownStorage(t *testing.T) {
	c := config.Default()
	c.StorageType = "cassandra"
	require.Error(t, NewDiContainer().Init(c))
}

func TestGettersPanicBeforeInit(t *testing.T) {
	require.Panics(t, func() { NewDiContainer().GetStores() })
}
