package util

import "errors"

var (
	ErrQueueFull      = errors.New("worker queue full")
	ErrPoolNotStarted = errors.New("worker pool not started")
	ErrPoolStopped    = errors.New("worker pool stopped")
	ErrStopTimeout    = errors.New("timeout waiting for workers to stop")
)
