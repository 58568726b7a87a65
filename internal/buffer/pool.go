package buffer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pool runs dispatch work on at most size goroutines
type pool struct {
	sem      *semaphore.Weighted
	inflight *inflight
}

func newPool(size int) *pool {
	return &pool{
		sem:      semaphore.NewWeighted(int64(size)),
		inflight: newInflight(),
	}
}

// trySubmit starts fn on a worker. It returns false without running fn when
// every worker is busy.
func (p *pool) trySubmit(fn func()) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.inflight.add()
	go func() {
		defer p.sem.Release(1)
		defer p.inflight.done()
		fn()
	}()
	return true
}

// track runs fn on its own goroutine outside the worker limit, counted as in-flight
func (p *pool) track(fn func()) {
	p.inflight.add()
	go func() {
		defer p.inflight.done()
		fn()
	}()
}

// runInline runs fn on the caller, counted as in-flight
func (p *pool) runInline(fn func()) {
	p.inflight.add()
	defer p.inflight.done()
	fn()
}

// inflight counts running dispatches and signals when none are left
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func newInflight() *inflight {
	idle := make(chan struct{})
	close(idle)
	return &inflight{idle: idle}
}

func (f *inflight) add() {
	f.mu.Lock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
	f.mu.Unlock()
}

func (f *inflight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// wait blocks until nothing is in flight or ctx is done
func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
