package collab

import (
	"context"
	"errors"
)

// MaxSemaphore 未指定容量时的默认并发上限
var MaxSemaphore int = 100

var (
	ErrAcquireTimeout = errors.New("Acquire Reach time limit")
	ErrNotAcquired    = errors.New("Release Failed, semaphore is not acquired")
)

type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(n int) *SemaphoreControl {
	if n <= 0 {
		n = MaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, n)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrAcquireTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrNotAcquired
	}
}

// InUse 当前已占用的名额
func (s *SemaphoreControl) InUse() int {
	return len(s.ch)
}
