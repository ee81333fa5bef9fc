package pool

import (
	"sync"
)

// Pool runs submitted jobs on a fixed number of goroutines.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan func()
	wg     sync.WaitGroup
}

func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		jobs: make(chan func(), n*2),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for f := range p.jobs {
				if f != nil {
					f()
				}
			}
		}()
	}
	return p
}

// TrySubmit queues f without blocking. It reports false when the queue is
// full or the pool is closed.
func (p *Pool) TrySubmit(f func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- f:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs; queued jobs still run. Safe to call twice.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}
