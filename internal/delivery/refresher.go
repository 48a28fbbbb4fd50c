package delivery

import (
	"context"
	"sync"
	"time"
)

// Refresher recomputes a quote after address edits settle. Every Update
// supersedes pending and in-flight work; only the newest result is kept.
// Update waits for a callback that is already running, so onQuote never sees
// an address older than the last Update. onQuote must not call Update.
type Refresher struct {
	resolver QuoteResolver
	delay    time.Duration
	onQuote  func(address string, quote Quote)

	// delivering is held across the generation check and onQuote.
	delivering sync.Mutex

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	current    *Quote
	closed     bool

	wg sync.WaitGroup
}

func NewRefresher(resolver QuoteResolver, delay time.Duration, onQuote func(address string, quote Quote)) *Refresher {
	return &Refresher{resolver: resolver, delay: delay, onQuote: onQuote}
}

// Update marks the current quote stale and schedules a resolution for address.
func (r *Refresher) Update(address string) {
	r.delivering.Lock()
	defer r.delivering.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.generation++
	gen := r.generation
	r.current = nil
	r.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	r.timer = time.AfterFunc(r.delay, func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, gen, address)
	})
}

func (r *Refresher) run(ctx context.Context, gen uint64, address string) {
	quote := r.resolver.Resolve(ctx, address)

	r.delivering.Lock()
	defer r.delivering.Unlock()
	r.mu.Lock()
	if gen != r.generation || r.closed {
		r.mu.Unlock()
		return
	}
	r.current = &quote
	cb := r.onQuote
	r.mu.Unlock()

	if cb != nil {
		cb(address, quote)
	}
}

// Current returns the latest quote, or false while it is stale.
func (r *Refresher) Current() (Quote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Quote{}, false
	}
	return *r.current, true
}

// Flush waits for the pending resolution, if any, to deliver its quote.
func (r *Refresher) Flush() {
	r.wg.Wait()
}

// Close cancels outstanding work and waits for running resolutions to return.
func (r *Refresher) Close() {
	r.mu.Lock()
	r.closed = true
	r.stopLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Refresher) stopLocked() {
	if r.timer != nil && r.timer.Stop() {
		r.wg.Done()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.timer = nil
	r.cancel = nil
}
