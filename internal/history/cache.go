package history

import (
	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/services"
)

// ViewHistory returns the entry's cached record, fetching it when nothing is cached.
//
// Concurrent callers share one in-flight fetch. The settled future, failed or not, stays cached until
// [Engine.Invalidate]; a nil record means the service has no record for the entry yet.
func (e *Engine) ViewHistory(key string) *Future[*models.Record] {
	st, err := e.state(key)
	if err != nil {
		return Failed[*models.Record](err)
	}
	return e.viewHistory(st)
}

// Invalidate clears the entry's cached record so the next read fetches it again.
func (e *Engine) Invalidate(key string) {
	e.mu.Lock()
	st, ok := e.entries[key]
	e.mu.Unlock()
	if ok {
		e.invalidate(st)
	}
}

func (e *Engine) viewHistory(st *entryState) *Future[*models.Record] {
	e.mu.Lock()
	if st.fetch != nil {
		f := st.fetch
		e.mu.Unlock()
		return f
	}
	f := newFuture[*models.Record]()
	st.fetch = f
	e.mu.Unlock()

	go func() {
		resp, err := e.do(st.ctx, services.NewListRequest(st.key))
		if err != nil {
			st.logger.Debug("get failed", "error", err)
			f.settle(nil, err)
			return
		}
		rec := resp.First()
		st.logger.Debug("get", "record", rec)
		f.settle(rec, nil)
	}()
	return f
}

func (e *Engine) invalidate(st *entryState) {
	e.mu.Lock()
	st.fetch = nil
	e.mu.Unlock()
}

// store caches rec as the entry's settled record without a network read.
func (e *Engine) store(st *entryState, rec *models.Record) {
	e.mu.Lock()
	st.fetch = Resolved(rec)
	e.mu.Unlock()
}
