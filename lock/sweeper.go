package lock

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/util"
	"go.uber.org/zap"
)

// Sweeper removes leases whose holder stopped refreshing them.
type Sweeper struct {
	provider Provider
	timeout  time.Duration
	tw       *util.TickWorker
}

func NewSweeper(provider Provider, timeout time.Duration, interval time.Duration, wg *sync.WaitGroup) *Sweeper {
	s := &Sweeper{
		provider: provider,
		timeout:  timeout,
	}
	s.tw = util.NewTickWorker("lock-sweeper", interval, s.Sweep, wg)
	return s
}

func (s *Sweeper) Sweep() {
	removed, err := s.provider.Sweep(context.Background(), time.Now().Add(-s.timeout))
	if err != nil {
		logger.Error("error sweeping leases", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("swept stale leases", zap.Int("count", removed))
	}
}

func (s *Sweeper) Start() {
	s.tw.Start()
}

func (s *Sweeper) Stop() {
	s.tw.Stop()
}
