package history

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleOptions selects which edges of a throttle window invoke the wrapped function.
type ThrottleOptions struct {
	DisableLeading  bool // don't run the first call of a quiet period immediately
	DisableTrailing bool // drop calls made inside a window instead of delivering the latest at its end
}

// Throttle limits calls to a function to one per interval.
//
// The first call in a quiet period runs immediately. Later calls inside the window are coalesced, keeping only
// the most recent arguments, and delivered once when the window ends. With trailing enabled the last value of a
// burst is always delivered, unless the throttle is stopped first.
type Throttle struct {
	fn       func(value float64, key string)
	interval time.Duration
	opts     ThrottleOptions
	lim      *rate.Limiter

	deliver sync.Mutex // held while fn runs; taken before mu
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending *throttleCall
	stopped bool
}

type throttleCall struct {
	value float64
	key   string
}

// NewThrottle wraps fn so it runs at most once per interval.
func NewThrottle(interval time.Duration, fn func(value float64, key string), opts ThrottleOptions) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		fn:       fn,
		interval: interval,
		opts:     opts,
		lim:      rate.NewLimiter(limit, 1),
	}
}

// Call invokes the wrapped function now or schedules it for the end of the current window.
func (t *Throttle) Call(value float64, key string) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	call := &throttleCall{value: value, key: key}
	if t.timer != nil {
		t.pending = call
		t.mu.Unlock()
		return
	}

	r := t.lim.Reserve()
	delay := r.Delay()
	if delay == 0 && !t.opts.DisableLeading {
		t.mu.Unlock()
		t.fn(value, key)
		return
	}
	if t.opts.DisableTrailing {
		r.Cancel()
		t.mu.Unlock()
		return
	}
	if delay == 0 {
		delay = t.interval
	}

	t.pending = call
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(delay, func() { t.fire(gen) })
	t.mu.Unlock()
}

func (t *Throttle) fire(gen uint64) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if gen != t.gen || t.stopped {
		t.mu.Unlock()
		return
	}
	call := t.pending
	t.pending, t.timer = nil, nil
	t.mu.Unlock()

	if call != nil {
		t.fn(call.value, call.key)
	}
}

// Flush delivers a pending trailing call immediately and waits for any delivery in progress.
func (t *Throttle) Flush() {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	call := t.pending
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
		t.gen++
	}
	stopped := t.stopped
	t.mu.Unlock()

	if call != nil && !stopped {
		t.fn(call.value, call.key)
	}
}

// Stop discards any pending call. Later calls are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// Pending reports whether a trailing call is scheduled.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
