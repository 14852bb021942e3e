package walk

import (
	"context"
	"sync"
)

// Loop runs the continuations of one call on a single goroutine.
//
// Traversal and mutation run synchronously; only sub-document readiness is
// delivered from elsewhere, through Post. Everything posted runs on the
// goroutine inside Run, so the tree is never touched concurrently.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	stopped  bool
	waits    map[uint64]func()
	nextWait uint64
}

// NewLoop returns an idle loop.
func NewLoop() *Loop {
	return &Loop{
		wake:  make(chan struct{}, 1),
		waits: make(map[uint64]func()),
	}
}

// Post schedules fn on the loop goroutine. Safe for concurrent use; never
// blocks, even after the loop stopped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop makes Run return once the current task finishes. Loop goroutine only.
func (l *Loop) Stop() {
	l.stopped = true
}

// Run executes posted tasks until Stop is called. When ctx is done every
// outstanding wait is abandoned, which closes its branch.
func (l *Loop) Run(ctx context.Context) {
	done := ctx.Done()
	for {
		l.drain()
		if l.stopped {
			return
		}
		select {
		case <-l.wake:
		case <-done:
			done = nil
			l.abandon()
		}
	}
}

func (l *Loop) drain() {
	for !l.stopped {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// await records an outstanding external wait. abandon is called if the loop
// gives up on it; the returned release forgets it.
func (l *Loop) await(abandon func()) (release func()) {
	id := l.nextWait
	l.nextWait++
	l.waits[id] = abandon
	return func() { delete(l.waits, id) }
}

// pending reports how many external waits are outstanding.
func (l *Loop) pending() int {
	return len(l.waits)
}

func (l *Loop) abandon() {
	waits := l.waits
	l.waits = make(map[uint64]func())
	for _, fn := range waits {
		fn()
	}
}
