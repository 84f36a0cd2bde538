package chat

import (
	"context"
	"sync"
	"time"
)

// Poller runs fn on a fixed interval until stopped. Stop cancels the context
// passed to an in-flight fn and waits for it to return.
type Poller struct {
	interval  time.Duration
	fn        func(ctx context.Context)
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPoller(interval time.Duration, fn func(ctx context.Context)) *Poller {
	return &Poller{
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
	}
}

// Start begins the loop in background. Only the first call has an effect.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		p.wg.Add(1)
		go p.run(ctx)
	})
}

// Stop is safe to call more than once and before Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		// block a late Start from launching the loop
		p.startOnce.Do(func() {})
		if p.cancel != nil {
			p.cancel()
		}
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.fn(ctx)
		}
	}
}
