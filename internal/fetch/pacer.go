package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer keeps the configured delay between one request finishing and the
// next one starting. The first Wait returns immediately. A zero interval
// never blocks.
type Pacer struct {
	interval time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewPacer creates a Pacer pausing interval between requests.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next request may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	lim := p.current()
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}

// Done records that a request finished. The following Wait blocks for the
// full interval counted from now, however long the request took.
func (p *Pacer) Done() {
	if p.current() == nil {
		return
	}
	// A fresh bucket whose only token is spent now.
	lim := rate.NewLimiter(rate.Every(p.interval), 1)
	lim.Allow()

	p.mu.Lock()
	p.limiter = lim
	p.mu.Unlock()
}

func (p *Pacer) current() *rate.Limiter {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limiter
}
