package agent

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/container"
	"github.com/mohitkumar/flowengine/engine"
	"github.com/mohitkumar/flowengine/event"
	"github.com/mohitkumar/flowengine/lock"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/metrics"
	"github.com/mohitkumar/flowengine/notify"
	"github.com/mohitkumar/flowengine/rest"
	"github.com/mohitkumar/flowengine/retry"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const BUS_STOP_TIMEOUT = 5 * time.Second

type Agent struct {
	Config       config.Config
	container    *container.DIContainer
	registry     *prometheus.Registry
	metrics      *metrics.Prom
	locker       *lock.Locker
	sweeper      *lock.Sweeper
	bus          *event.Bus
	natsConn     *nats.Conn
	engine       *engine.Engine
	httpServer   *rest.Server
	ctx          context.Context
	cancel       context.CancelFunc
	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	setup := []func() error{
		a.setupContainer,
		a.setupMetrics,
		a.setupLocker,
		a.setupBus,
		a.setupNotify,
		a.setupEngine,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			a.container.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupContainer() error {
	a.container = container.NewDiContainer()
	return a.container.Init(a.Config)
}

func (a *Agent) setupMetrics() error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewProm("flowengine", a.registry)
	return nil
}

func (a *Agent) setupLocker() error {
	lockConf := a.Config.LockConfig
	provider := a.container.GetLockProvider()
	a.locker = lock.NewLocker(provider, lockConf.Timeout, a.metrics)
	a.sweeper = lock.NewSweeper(provider, lockConf.Timeout, lockConf.CleanupInterval, &a.wg)
	return nil
}

func (a *Agent) setupBus() error {
	a.bus = event.NewBus(a.Config.BusConfig, a.metrics)
	return nil
}

func (a *Agent) setupNotify() error {
	notify.Attach(a.bus, notify.NewLogSink())
	natsConf := a.Config.NatsConfig
	if natsConf.URL == "" {
		return nil
	}
	var err error
	a.natsConn, err = notify.Connect(natsConf.URL)
	if err != nil {
		return err
	}
	notify.Attach(a.bus, notify.NewNatsSink(a.natsConn, natsConf.Subject))
	return nil
}

func (a *Agent) setupEngine() error {
	var err error
	a.engine, err = engine.New(a.Config.EngineConfig, engine.Deps{
		Stores:          a.container.GetStores(),
		Locker:          a.locker,
		Bus:             a.bus,
		Policy:          retry.FromConfig(a.Config.RetryConfig),
		Metrics:         a.metrics,
		LockWait:        a.Config.LockConfig.Wait,
		PublishAttempts: a.Config.BusConfig.PublishAttempts,
	})
	return err
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.engine, a.registry)
	return err
}

func (a *Agent) Engine() *engine.Engine {
	return a.engine
}

func (a *Agent) Start() error {
	if err := a.bus.Start(a.ctx); err != nil {
		return err
	}
	if err := a.engine.Start(a.ctx); err != nil {
		return err
	}
	a.sweeper.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			a.engine.Stop()
			return nil
		},
		func() error {
			return a.bus.Stop(BUS_STOP_TIMEOUT)
		},
		func() error {
			a.sweeper.Stop()
			return nil
		},
		func() error {
			if a.natsConn != nil {
				return a.natsConn.Drain()
			}
			return nil
		},
		a.container.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}
	a.cancel()
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
