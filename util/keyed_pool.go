package util

import (
	"fmt"
	"sync"
)

// KeyedPool spreads work over single-goroutine lanes. Items with the same key
// always land on the same lane, so they run one after another in this process.
type KeyedPool[T any] struct {
	ring  *Ring
	lanes []*Worker[T]
	key   func(T) string
}

func NewKeyedPool[T any](name string, lanes int, queueSize int, key func(T) string, handler func(T) error, wg *sync.WaitGroup) *KeyedPool[T] {
	if lanes <= 0 {
		lanes = 1
	}
	perLane := queueSize / lanes
	if perLane <= 0 {
		perLane = 1
	}
	kp := &KeyedPool[T]{
		ring: NewRing(lanes),
		key:  key,
	}
	for i := 0; i < lanes; i++ {
		kp.lanes = append(kp.lanes, NewWorker(fmt.Sprintf("%s-%d", name, i), wg, handler, perLane))
	}
	return kp
}

func (kp *KeyedPool[T]) Start() {
	for _, w := range kp.lanes {
		w.Start()
	}
}

func (kp *KeyedPool[T]) Stop() {
	for _, w := range kp.lanes {
		w.Stop()
	}
}

func (kp *KeyedPool[T]) Submit(item T) error {
	return kp.lanes[kp.ring.Locate(kp.key(item))].Submit(item)
}

func (kp *KeyedPool[T]) Pending() int {
	n := 0
	for _, w := range kp.lanes {
		n += w.Pending()
	}
	return n
}
