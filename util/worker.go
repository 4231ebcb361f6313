package util

import (
	"fmt"
	"sync"

	"github.com/mohitkumar/flowengine/logger"
	"go.uber.org/zap"
)

// Worker is a single goroutine draining its own bounded queue.
type Worker[T any] struct {
	name     string
	stop     chan struct{}
	stopOnce sync.Once
	wg       *sync.WaitGroup
	handler  func(T) error
	taskChan chan T
}

func NewWorker[T any](name string, wg *sync.WaitGroup, handler func(T) error, capacity int) *Worker[T] {
	return &Worker[T]{
		taskChan: make(chan T, capacity),
		name:     name,
		wg:       wg,
		stop:     make(chan struct{}),
		handler:  handler,
	}
}

func (w *Worker[T]) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case task := <-w.taskChan:
				w.handle(task)
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

func (w *Worker[T]) handle(task T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker recovered from panic", zap.String("worker", w.name), zap.Any("task", task), zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	if err := w.handler(task); err != nil {
		logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Any("task", task), zap.Error(err))
	}
}

// Submit enqueues without blocking and returns ErrQueueFull when the queue is at capacity.
func (w *Worker[T]) Submit(task T) error {
	select {
	case w.taskChan <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Worker[T]) Pending() int {
	return len(w.taskChan)
}

func (w *Worker[T]) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}
