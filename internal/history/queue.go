package history

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/services"
	"github.com/desertthunder/viewsync/internal/shared"
)

// Enqueue schedules a write of u to the entry's record.
//
// Writes for one entry run strictly one at a time in submission order: each starts only after the previous one
// has settled, successfully or not. Every queued write gets a fresh retry budget; a failed predecessor does not
// consume it. Writes for different entries run independently.
func (e *Engine) Enqueue(key string, u models.Update) *Future[*models.Record] {
	if err := u.Validate(); err != nil {
		return Failed[*models.Record](fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
	}
	st, err := e.state(key)
	if err != nil {
		return Failed[*models.Record](err)
	}
	return e.enqueue(st, u)
}

func (e *Engine) enqueue(st *entryState, u models.Update) *Future[*models.Record] {
	e.mu.Lock()
	defer e.mu.Unlock()

	st.tail = then(st.tail, func(_ *models.Record, prevErr error) (*models.Record, error) {
		if prevErr != nil {
			st.logger.Debug("previous write failed", "error", prevErr)
		}
		return e.runWrite(st, u)
	})
	return st.tail
}

// runWrite performs one queued write with up to MaxRetries retries. A write that gives up fails with the error of
// its first attempt.
func (e *Engine) runWrite(st *entryState, u models.Update) (*models.Record, error) {
	e.resetRetries(st)

	var first error
	for attempt := 1; ; attempt++ {
		rec, err := e.setViewHistory(st, u)
		if err == nil {
			e.notify(transitionFor(u), st.key, attempt, rec, u, nil)
			return rec, nil
		}
		if first == nil {
			first = err
		}

		if !shared.Retryable(err) || st.ctx.Err() != nil || !e.takeRetry(st) {
			st.logger.Warn("write failed", "update", u, "attempts", attempt, "error", err)
			e.notify(TransitionFailed, st.key, attempt, nil, u, err)
			return nil, fmt.Errorf("write %s for %s failed after %d attempt(s): %w", u, st.key, attempt, first)
		}

		e.invalidate(st)
		st.logger.Info("retrying write", "update", u, "attempt", attempt+1, "error", err)
		e.notify(TransitionRetry, st.key, attempt, nil, u, err)

		if err := sleepCtx(st.ctx, e.opts.RetryDelay); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrEntryUntracked, err)
		}
	}
}

func (e *Engine) resetRetries(st *entryState) {
	e.mu.Lock()
	st.retriesLeft = e.opts.MaxRetries
	e.mu.Unlock()
}

// takeRetry consumes one retry, reporting false when none remain.
func (e *Engine) takeRetry(st *entryState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st.retriesLeft <= 0 {
		return false
	}
	st.retriesLeft--
	return true
}

// setViewHistory writes u against the entry's current record and caches the result.
//
// A cached record without an id is re-fetched once first, since a concurrent write may have created it.
func (e *Engine) setViewHistory(st *entryState, u models.Update) (*models.Record, error) {
	prev, err := e.viewHistory(st).Wait(st.ctx)
	if err != nil {
		return nil, err
	}
	if !prev.HasID() {
		e.invalidate(st)
		if prev, err = e.viewHistory(st).Wait(st.ctx); err != nil {
			return nil, err
		}
	}

	u = u.Clamp(prev.Status())
	params := &services.EntryParams{
		ObjectType:      services.ObjectTypeViewHistory,
		PlaybackContext: e.opts.PlaybackContext,
		LastUpdateTime:  1,
		ExtendedStatus:  u.ExtendedStatus,
		LastTimeReached: u.LastTimeReached,
	}
	req := &services.Request{Service: services.ServiceUserEntry, Entry: params}
	if prev.HasID() {
		req.Action = services.ActionUpdate
		req.ID = prev.ID
		if params.ExtendedStatus == models.StatusNone {
			params.ExtendedStatus = prev.ExtendedStatus
		}
	} else {
		req.Action = services.ActionAdd
		params.EntryID = st.key
	}

	optimistic := prev.Merge(st.key, u)
	resp, err := e.do(st.ctx, req)
	if err != nil {
		return nil, err
	}

	rec := optimistic
	if resp != nil && resp.Record != nil {
		rec = resp.Record
	}

	e.mu.Lock()
	live := e.current(st)
	e.mu.Unlock()
	if live {
		e.store(st, rec)
	}
	st.logger.Debug("set", "action", req.Action, "record", rec)
	return rec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
