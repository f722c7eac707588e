package status

import (
	"context"
	"sync"
	"sync/atomic"
)

// Loop is the UI loop: any goroutine can post tasks, a single goroutine runs
// them in order from Run.
type Loop struct {
	lock   sync.Mutex
	queue  []func()
	closed bool
	notify chan struct{}

	inLoop atomic.Bool
}

func NewLoop() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Post enqueues a task without blocking. It returns false once the loop was
// closed.
func (l *Loop) Post(task func()) bool {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return false
	}

	l.queue = append(l.queue, task)
	l.lock.Unlock()

	l.wake()
	return true
}

func (l *Loop) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// InLoop reports whether a task is being run, which only happens on the
// goroutine calling Run.
func (l *Loop) InLoop() bool {
	return l.inLoop.Load()
}

// Run executes tasks until the loop is closed and drained, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.lock.Lock()
		tasks := l.queue
		l.queue = nil
		closed := l.closed
		l.lock.Unlock()

		for _, task := range tasks {
			l.inLoop.Store(true)
			task()
			l.inLoop.Store(false)
		}

		if len(tasks) > 0 {
			continue
		} else if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Close stops accepting tasks, Run returns after the queued ones.
func (l *Loop) Close() {
	l.lock.Lock()
	l.closed = true
	l.lock.Unlock()

	l.wake()
}
