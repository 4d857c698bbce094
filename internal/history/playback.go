package history

import (
	"fmt"
	"math"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/shared"
)

// PlayerStateEnd is the state a player reports once the clip has ended.
const PlayerStateEnd = "end"

// Lifecycle events bound by [Engine.Bind].
const (
	EventPlayerReady = "playerReady"
	EventFirstPlay   = "firstPlay"
	EventMonitor     = "monitorEvent"
	EventEnded       = "ended"
)

// Player exposes the playback state the engine reads when handling lifecycle events.
type Player interface {
	EntryID() string
	CurrentTime() float64 // seconds
	Duration() float64    // seconds
	Traits() models.Traits
	State() string
	Err() error // non-nil once the player has failed
}

// EventSource emits named lifecycle events.
type EventSource interface {
	Bind(event string, fn func())
}

// Bind registers the engine's lifecycle handlers on src.
func (e *Engine) Bind(src EventSource) {
	src.Bind(EventPlayerReady, func() { e.OnReady() })
	src.Bind(EventFirstPlay, func() { e.OnFirstPlay() })
	src.Bind(EventMonitor, func() { e.OnMonitor() })
	src.Bind(EventEnded, func() { e.OnEnded() })
}

// playerEntry resolves the player's current entry.
func (e *Engine) playerEntry() (*entryState, error) {
	if e.player == nil {
		return nil, fmt.Errorf("%w: no player attached", shared.ErrInvalidInput)
	}
	return e.state(e.player.EntryID())
}

// OnReady handles a loaded player: it resets the entry's reporter and retry budget, marks images complete and,
// when enabled, marks unseen media viewed. Records carrying any status, including ones this package does not
// know, are left alone.
func (e *Engine) OnReady() *Future[*models.Record] {
	st, err := e.playerEntry()
	if err != nil {
		return Failed[*models.Record](err)
	}
	e.resetReporter(st)
	e.resetRetries(st)

	switch traits := e.player.Traits(); {
	case traits.Image:
		return e.decide(st, "ready", func(*models.Record) (models.Update, bool) {
			return models.StatusUpdate(models.StatusPlaybackComplete), true
		})
	case e.opts.TrackViewed:
		return e.decide(st, "ready", func(rec *models.Record) (models.Update, bool) {
			if rec.Status() != models.StatusNone {
				return models.Update{}, false
			}
			return models.StatusUpdate(models.StatusViewed), true
		})
	default:
		return Resolved[*models.Record](nil)
	}
}

// OnFirstPlay marks the entry started. Images are marked complete and live media is always marked started.
func (e *Engine) OnFirstPlay() *Future[*models.Record] {
	st, err := e.playerEntry()
	if err != nil {
		return Failed[*models.Record](err)
	}

	traits := e.player.Traits()
	return e.decide(st, "first play", func(rec *models.Record) (models.Update, bool) {
		switch {
		case traits.Image:
			return models.StatusUpdate(models.StatusPlaybackComplete), true
		case traits.Live:
			return models.StatusUpdate(models.StatusPlaybackStarted), true
		case rec.Status().AtLeast(models.StatusPlaybackStarted):
			return models.Update{}, false
		default:
			return models.StatusUpdate(models.StatusPlaybackStarted), true
		}
	})
}

// OnMonitor handles a progress tick: it completes playback inside the threshold and otherwise reports the
// position through the throttle.
//
// Ticks for untrackable media and ticks after the player ended are ignored.
func (e *Engine) OnMonitor() *Future[*models.Record] {
	st, err := e.playerEntry()
	if err != nil {
		return Failed[*models.Record](err)
	}
	if !e.player.Traits().Trackable() || e.player.State() == PlayerStateEnd {
		return Resolved[*models.Record](nil)
	}

	position := e.player.CurrentTime()
	if e.IsPlaybackComplete(position, e.player.Duration()) {
		return e.trackPlaybackComplete(st, position)
	}
	e.reporter(st).Call(position, st.key)
	return Resolved[*models.Record](nil)
}

// OnEnded completes playback at the full duration.
func (e *Engine) OnEnded() *Future[*models.Record] {
	st, err := e.playerEntry()
	if err != nil {
		return Failed[*models.Record](err)
	}
	if !e.player.Traits().Trackable() {
		return Resolved[*models.Record](nil)
	}
	return e.trackPlaybackComplete(st, e.player.Duration())
}

// TrackLastTimeReached reports a position through the entry's throttle.
func (e *Engine) TrackLastTimeReached(key string, position float64) error {
	st, err := e.state(key)
	if err != nil {
		return err
	}
	e.reporter(st).Call(position, key)
	return nil
}

// trackPlaybackComplete writes a complete status unless the record already has it, then reports the position.
func (e *Engine) trackPlaybackComplete(st *entryState, position float64) *Future[*models.Record] {
	return e.decide(st, "playback complete", func(rec *models.Record) (models.Update, bool) {
		defer e.reporter(st).Call(position, st.key)

		if rec.Status() == models.StatusPlaybackComplete {
			return models.Update{}, false
		}
		st.logger.Info("playback complete", "position", position)
		return models.CompleteUpdate(position), true
	})
}

// doTrackLastTimeReached writes the rounded position unless the record already holds it.
func (e *Engine) doTrackLastTimeReached(st *entryState, position float64) *Future[*models.Record] {
	position = math.Round(position)
	return e.decide(st, "last time reached", func(rec *models.Record) (models.Update, bool) {
		if rec != nil && rec.LastTimeReached == position {
			return models.Update{}, false
		}
		return models.PositionUpdate(position), true
	})
}

// decide reads the entry's record after every earlier decision has been made and enqueues the write fn asks
// for. The returned future settles with that write's result, or with the current record when nothing is written.
//
// A failed read is invalidated so the next event reads again.
func (e *Engine) decide(st *entryState, event string, fn func(*models.Record) (models.Update, bool)) *Future[*models.Record] {
	result := newFuture[*models.Record]()
	made := newFuture[struct{}]()

	e.mu.Lock()
	prev := st.decisions
	st.decisions = made
	e.mu.Unlock()

	go func() {
		<-prev.Done()

		rec, err := e.viewHistory(st).Wait(st.ctx)
		if err != nil {
			e.invalidate(st)
			made.settle(struct{}{}, nil)
			st.logger.Debug("skipped event", "event", event, "error", err)
			result.settle(nil, err)
			return
		}

		u, ok := fn(rec)
		if !ok {
			made.settle(struct{}{}, nil)
			result.settle(rec, nil)
			return
		}

		write := e.enqueue(st, u)
		made.settle(struct{}{}, nil)
		forward(write, result)
	}()
	return result
}

// reporter returns the entry's throttled position reporter, creating it on first use.
func (e *Engine) reporter(st *entryState) *Throttle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st.reporter == nil {
		st.reporter = e.newReporter(st)
	}
	return st.reporter
}

// resetReporter replaces the entry's reporter. A position the previous one still had pending is delivered first.
func (e *Engine) resetReporter(st *entryState) {
	e.mu.Lock()
	old := st.reporter
	st.reporter = e.newReporter(st)
	e.mu.Unlock()

	if old != nil {
		old.Flush()
		old.Stop()
	}
}

func (e *Engine) newReporter(st *entryState) *Throttle {
	return NewThrottle(e.opts.ThrottleInterval, func(position float64, _ string) {
		e.doTrackLastTimeReached(st, position)
	}, e.opts.Throttle)
}
