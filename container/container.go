package container

import (
	"database/sql"
	"fmt"

	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/engine"
	"github.com/mohitkumar/flowengine/lock"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/persistence/memory"
	rd "github.com/mohitkumar/flowengine/persistence/redis"
	"github.com/mohitkumar/flowengine/persistence/sqlite"
	"github.com/mohitkumar/flowengine/util"
)

type DIContainer struct {
	initialized   bool
	stores        engine.Stores
	lockProvider  lock.Provider
	closers       []func() error
	ContextEncDec util.EncoderDecoder[model.FlowContext]
	TraceEncDec   util.EncoderDecoder[model.FlowTrace]
	RetryEncDec   util.EncoderDecoder[model.FlowRetryRecord]
}

func (d *DIContainer) setInitialized() {
	d.initialized = true
}

func NewDiContainer() *DIContainer {
	return &DIContainer{
		initialized: false,
	}
}

// Init picks the repositories and the lease provider for the configured storage. The memory and
// sqlite backends serve a single process, so their leases stay in memory too.
func (d *DIContainer) Init(conf config.Config) error {
	switch conf.EncoderDecoderType {
	case config.JSON_ENCODER_DECODER, "":
		d.ContextEncDec = util.NewJsonEncoderDecoder[model.FlowContext]()
		d.TraceEncDec = util.NewJsonEncoderDecoder[model.FlowTrace]()
		d.RetryEncDec = util.NewJsonEncoderDecoder[model.FlowRetryRecord]()
	default:
		return fmt.Errorf("unsupported encoder decoder %s", conf.EncoderDecoderType)
	}

	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
		}
		baseDao := rd.NewBaseDao(rdConf)
		d.stores = engine.Stores{
			Contexts:    rd.NewRedisContextRepo(baseDao, d.ContextEncDec),
			Traces:      rd.NewRedisTraceRepo(baseDao, d.TraceEncDec),
			Retries:     rd.NewRedisRetryRepo(baseDao, d.RetryEncDec),
			Definitions: rd.NewRedisDefinitionRepo(baseDao),
		}
		d.lockProvider = lock.NewRedisProvider(baseDao.Client(), rdConf.Namespace)
		d.closers = append(d.closers, baseDao.Close)
	case config.STORAGE_TYPE_SQLITE:
		db, err := sqlite.Open(conf.SqliteConfig.DSN)
		if err != nil {
			return err
		}
		d.initSqlite(db)
	case config.STORAGE_TYPE_INMEM, "":
		d.stores = engine.Stores{
			Contexts:    memory.NewContextRepo(),
			Traces:      memory.NewTraceRepo(),
			Retries:     memory.NewRetryRepo(),
			Definitions: memory.NewDefinitionRepo(),
		}
		d.lockProvider = lock.NewMemoryProvider()
	default:
		return fmt.Errorf("unsupported storage type %s", conf.StorageType)
	}
	d.setInitialized()
	return nil
}

func (d *DIContainer) initSqlite(db *sql.DB) {
	d.stores = engine.Stores{
		Contexts:    sqlite.NewContextRepo(db, d.ContextEncDec),
		Traces:      sqlite.NewTraceRepo(db, d.TraceEncDec),
		Retries:     sqlite.NewRetryRepo(db, d.RetryEncDec),
		Definitions: sqlite.NewDefinitionRepo(db),
	}
	d.lockProvider = lock.NewMemoryProvider()
	d.closers = append(d.closers, db.Close)
}

func (d *DIContainer) GetStores() engine.Stores {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.stores
}

func (d *DIContainer) GetLockProvider() lock.Provider {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.lockProvider
}

// Close releases storage connections.
func (d *DIContainer) Close() error {
	var first error
	for _, closer := range d.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}
