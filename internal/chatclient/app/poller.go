package app

import (
	"context"
	"sync"
	"time"
)

// Poller runs fn on a fixed interval until stopped. Each tick runs in its own
// goroutine so a slow call never delays the next tick.
type Poller struct {
	interval time.Duration
	fn       func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  sync.WaitGroup
}

// NewPoller 建立 Poller
func NewPoller(interval time.Duration, fn func(ctx context.Context)) *Poller {
	return &Poller{interval: interval, fn: fn}
}

// Start begin ticking. immediate fires one run right away. Calling Start on a
// running poller restarts it.
func (p *Poller) Start(ctx context.Context, immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		if immediate {
			p.tick(ctx)
		}
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

func (p *Poller) tick(ctx context.Context) {
	p.ticks.Add(1)
	go func() {
		defer p.ticks.Done()
		p.fn(ctx)
	}()
}

// Stop cancel the loop and wait for in-flight ticks to return
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.ticks.Wait()
	p.cancel, p.done = nil, nil
}

// Running reports whether the loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
