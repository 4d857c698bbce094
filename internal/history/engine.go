package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/services"
	"github.com/desertthunder/viewsync/internal/shared"
)

const (
	DefaultMaxRetries       = 5
	DefaultThrottleInterval = 2 * time.Second
)

// Options configures an [Engine]. Use [DefaultOptions] or [OptionsFromConfig] as a starting point.
type Options struct {
	TrackViewed             bool          // write VIEWED when the player becomes ready
	PlaybackContext         string        // sent with every write
	PlaybackCompletePercent string        // "80", "80%"; invalid input means 100
	PlaybackCompleteSeconds float64       // seconds before the end that count as complete
	MaxRetries              int           // retries per queued write
	ThrottleInterval        time.Duration // minimum spacing of last-time-reached writes
	RetryDelay              time.Duration // pause before each retry; 0 retries immediately
	Throttle                ThrottleOptions
}

// DefaultOptions returns the engine defaults: 100% completion, 5 retries, 2s throttle.
func DefaultOptions() Options {
	return Options{
		PlaybackCompletePercent: "100%",
		MaxRetries:              DefaultMaxRetries,
		ThrottleInterval:        DefaultThrottleInterval,
	}
}

// OptionsFromConfig converts the [tracking] config section.
func OptionsFromConfig(c shared.TrackingConfig) Options {
	return Options{
		TrackViewed:             c.TrackViewed,
		PlaybackContext:         c.PlaybackContext,
		PlaybackCompletePercent: string(c.PlaybackCompletePercent),
		PlaybackCompleteSeconds: c.PlaybackCompleteSeconds,
		MaxRetries:              c.MaxRetries,
		ThrottleInterval:        time.Duration(c.ThrottleIntervalMS) * time.Millisecond,
		RetryDelay:              time.Duration(c.RetryDelayMS) * time.Millisecond,
	}
}

// EngineOpts contains the dependencies of an [Engine].
type EngineOpts struct {
	Client      services.Client
	Credentials services.Credentials
	Player      Player // optional; lifecycle handlers need it
	Options     Options
	Logger      *log.Logger
	Updates     chan<- TransitionUpdate // optional; sends never block
}

// Engine synchronizes local playback with remote view-history records.
//
// All state is scoped to the engine instance and keyed by entry id. Methods are safe for concurrent use and
// never block on the network: results are delivered as [Future] values.
type Engine struct {
	client  services.Client
	creds   services.Credentials
	player  Player
	opts    Options
	logger  *log.Logger
	updates chan<- TransitionUpdate

	thresholds *thresholdCache

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entryState
	closed  bool
}

// entryState is the engine's tracking state for one entry.
type entryState struct {
	key    string
	logger *log.Logger // engine logger bound to the entry
	ctx    context.Context
	cancel context.CancelFunc

	fetch       *Future[*models.Record] // nil when nothing is cached
	tail        *Future[*models.Record] // settles when every queued write has settled
	decisions   *Future[struct{}]       // settles when every lifecycle decision has been made
	retriesLeft int
	reporter    *Throttle
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}
	if opts.Options.MaxRetries < 0 {
		opts.Options.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		client:     opts.Client,
		creds:      opts.Credentials,
		player:     opts.Player,
		opts:       opts.Options,
		logger:     shared.WithPrefix(opts.Logger, "history"),
		updates:    opts.Updates,
		thresholds: newThresholdCache(opts.Options.PlaybackCompletePercent, opts.Options.PlaybackCompleteSeconds),
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*entryState),
	}
}

// Options returns the engine's configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// state returns the tracking state for key, creating it on first use.
func (e *Engine) state(key string) (*entryState, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty entry id", shared.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, shared.ErrEngineClosed
	}
	if st, ok := e.entries[key]; ok {
		return st, nil
	}

	ctx, cancel := context.WithCancel(e.ctx)
	st := &entryState{
		key:         key,
		logger:      shared.WithLogger(e.logger, "entry", key),
		ctx:         ctx,
		cancel:      cancel,
		tail:        Resolved[*models.Record](nil),
		decisions:   Resolved(struct{}{}),
		retriesLeft: e.opts.MaxRetries,
	}
	e.entries[key] = st
	return st, nil
}

// current reports whether st is still the live state for its key.
func (e *Engine) current(st *entryState) bool {
	return e.entries[st.key] == st
}

// Tracked returns the keys of all tracked entries.
func (e *Engine) Tracked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]string, 0, len(e.entries))
	for k := range e.entries {
		keys = append(keys, k)
	}
	return keys
}

// Release delivers any pending progress for key, waits for its decisions and writes to settle, then untracks it.
func (e *Engine) Release(ctx context.Context, key string) error {
	e.mu.Lock()
	st, ok := e.entries[key]
	e.mu.Unlock()
	if !ok {
		return nil
	}

	for {
		e.mu.Lock()
		reporter := st.reporter
		e.mu.Unlock()
		if reporter != nil {
			reporter.Flush()
		}

		e.mu.Lock()
		decisions := st.decisions
		e.mu.Unlock()
		if _, err := decisions.Wait(ctx); err != nil {
			return err
		}

		e.mu.Lock()
		settled := st.decisions == decisions
		e.mu.Unlock()
		if settled && (reporter == nil || !reporter.Pending()) {
			break
		}
	}

	e.mu.Lock()
	tail := st.tail
	e.mu.Unlock()
	if _, err := tail.Wait(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	e.Untrack(key)
	return nil
}

// Untrack drops the entry's state. Pending progress is discarded and in-flight work is cancelled.
func (e *Engine) Untrack(key string) {
	e.mu.Lock()
	st, ok := e.entries[key]
	var reporter *Throttle
	if ok {
		delete(e.entries, key)
		reporter = st.reporter
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	if reporter != nil {
		reporter.Stop()
	}
	st.cancel()
	st.logger.Debug("untracked")
}

// Close untracks every entry and rejects further work.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	reporters := make([]*Throttle, 0, len(e.entries))
	for _, st := range e.entries {
		if st.reporter != nil {
			reporters = append(reporters, st.reporter)
		}
	}
	e.entries = make(map[string]*entryState)
	e.mu.Unlock()

	for _, r := range reporters {
		r.Stop()
	}
	e.cancel()
	return nil
}

// do sends one request after checking the session; no network call is made without a ks or with a failed player.
func (e *Engine) do(ctx context.Context, req *services.Request) (*services.Response, error) {
	if e.player != nil {
		if err := e.player.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrPlayerError, err)
		}
	}
	if e.creds == nil {
		return nil, shared.ErrNoCredentials
	}
	ks, err := e.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if e.client == nil {
		return nil, fmt.Errorf("%w: no record client configured", shared.ErrServiceUnavailable)
	}

	req.KS = ks
	return e.client.Do(ctx, req)
}
