package history

import (
	"fmt"

	"github.com/desertthunder/viewsync/internal/models"
)

// TransitionUpdate reports the outcome of one write attempt.
//
// Used to surface engine activity to the CLI without coupling it to the engine's internals.
type TransitionUpdate struct {
	Kind    Transition     // What happened
	EntryID string         // Entry the write belongs to
	Attempt int            // 1 for the first attempt
	Update  models.Update  // The queued write
	Record  *models.Record // Resulting record on success
	Err     error          // Failure cause for retries and failures
	Message string         // Human-readable message for display
}

// Transition enumerates the kinds of [TransitionUpdate].
type Transition int

const (
	TransitionViewed Transition = iota
	TransitionStarted
	TransitionComplete
	TransitionPosition
	TransitionRetry
	TransitionFailed
)

func (t Transition) String() string {
	switch t {
	case TransitionViewed:
		return "viewed"
	case TransitionStarted:
		return "started"
	case TransitionComplete:
		return "complete"
	case TransitionPosition:
		return "position"
	case TransitionRetry:
		return "retry"
	case TransitionFailed:
		return "failed"
	default:
		return ""
	}
}

// transitionFor classifies a successful write by the status it carries.
func transitionFor(u models.Update) Transition {
	switch u.ExtendedStatus {
	case models.StatusViewed:
		return TransitionViewed
	case models.StatusPlaybackStarted:
		return TransitionStarted
	case models.StatusPlaybackComplete:
		return TransitionComplete
	default:
		return TransitionPosition
	}
}

func transitionMessage(kind Transition, key string, attempt int, u models.Update, err error) string {
	switch kind {
	case TransitionRetry:
		return fmt.Sprintf("%s: %s failed (attempt %d), retrying: %v", key, u, attempt, err)
	case TransitionFailed:
		return fmt.Sprintf("%s: %s failed after %d attempt(s): %v", key, u, attempt, err)
	default:
		return fmt.Sprintf("%s: %s", key, u)
	}
}

// notify publishes an update without blocking; updates are dropped when nobody is listening.
func (e *Engine) notify(kind Transition, key string, attempt int, rec *models.Record, u models.Update, err error) {
	if e.updates == nil {
		return
	}
	upd := TransitionUpdate{
		Kind:    kind,
		EntryID: key,
		Attempt: attempt,
		Update:  u,
		Record:  rec,
		Err:     err,
		Message: transitionMessage(kind, key, attempt, u, err),
	}
	select {
	case e.updates <- upd:
	default:
	}
}
