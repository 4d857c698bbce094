package history

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/services"
	"github.com/desertthunder/viewsync/internal/shared"
	th "github.com/desertthunder/viewsync/internal/testing"
)

func transportErr() error {
	return fmt.Errorf("%w: connection reset", shared.ErrAPIRequest)
}

func TestEngine_ViewHistory(t *testing.T) {
	t.Run("concurrent readers share one fetch", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Delay = 50 * time.Millisecond
		client.Seed(models.Record{EntryID: "entry", ExtendedStatus: models.StatusViewed})
		e := newTestEngine(t, client, nil, DefaultOptions())

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, err := await(t, e.ViewHistory("entry"))
				if err != nil || rec.Status() != models.StatusViewed {
					t.Errorf("ViewHistory() = %+v, %v", rec, err)
				}
			}()
		}
		wg.Wait()

		if n := client.Count(services.ActionList); n != 1 {
			t.Errorf("list calls = %d, want 1", n)
		}
	})

	t.Run("missing record resolves to nil", func(t *testing.T) {
		e := newTestEngine(t, th.NewFakeRecordClient(), nil, DefaultOptions())
		rec, err := await(t, e.ViewHistory("entry"))
		if err != nil || rec != nil {
			t.Errorf("ViewHistory() = %+v, %v; want nil, nil", rec, err)
		}
	})

	t.Run("failure stays cached until invalidated", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.FailNext(services.ActionList, 1, transportErr())
		e := newTestEngine(t, client, nil, DefaultOptions())

		if _, err := await(t, e.ViewHistory("entry")); !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("first read error = %v, want ErrAPIRequest", err)
		}
		if _, err := await(t, e.ViewHistory("entry")); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("cached read error = %v, want ErrAPIRequest", err)
		}
		if n := client.Count(services.ActionList); n != 1 {
			t.Errorf("list calls before invalidate = %d, want 1", n)
		}

		e.Invalidate("entry")
		if _, err := await(t, e.ViewHistory("entry")); err != nil {
			t.Errorf("read after invalidate error = %v", err)
		}
		if n := client.Count(services.ActionList); n != 2 {
			t.Errorf("list calls after invalidate = %d, want 2", n)
		}
	})
}

func TestEngine_Enqueue(t *testing.T) {
	t.Run("writes settle in submission order", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Delay = 10 * time.Millisecond
		e := newTestEngine(t, client, nil, DefaultOptions())

		futures := make([]*Future[*models.Record], 5)
		for i := range futures {
			futures[i] = e.Enqueue("entry", models.PositionUpdate(float64(i+1)))
		}
		for i, f := range futures {
			if _, err := await(t, f); err != nil {
				t.Errorf("write %d error = %v", i, err)
			}
			for j := range i {
				if !futures[j].Settled() {
					t.Errorf("write %d settled before write %d", i, j)
				}
			}
		}

		var positions []float64
		for _, r := range client.Requests() {
			if r.Action != services.ActionList && r.Entry != nil && r.Entry.LastTimeReached != nil {
				positions = append(positions, *r.Entry.LastTimeReached)
			}
		}
		for i, p := range positions {
			if p != float64(i+1) {
				t.Fatalf("write order = %v, want 1..5", positions)
			}
		}
		if rec := client.Record("entry"); rec == nil || rec.LastTimeReached != 5 {
			t.Errorf("final record = %+v, want last time reached 5", rec)
		}
		if client.MaxConcurrent() != 1 {
			t.Errorf("max concurrent calls = %d, want 1", client.MaxConcurrent())
		}
	})

	t.Run("first write adds, later writes update", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		opts := DefaultOptions()
		opts.PlaybackContext = "course-1"
		e := newTestEngine(t, client, nil, opts)

		if _, err := await(t, e.Enqueue("entry", models.StatusUpdate(models.StatusPlaybackStarted))); err != nil {
			t.Fatalf("first write error = %v", err)
		}
		rec, err := await(t, e.Enqueue("entry", models.PositionUpdate(30)))
		if err != nil {
			t.Fatalf("second write error = %v", err)
		}

		if client.Count(services.ActionAdd) != 1 || client.Count(services.ActionUpdate) != 1 {
			t.Errorf("add/update calls = %d/%d, want 1/1", client.Count(services.ActionAdd), client.Count(services.ActionUpdate))
		}
		if rec.Status() != models.StatusPlaybackStarted || rec.LastTimeReached != 30 {
			t.Errorf("record = %+v, want started at 30", rec)
		}

		for _, r := range client.Requests() {
			if r.Entry == nil {
				continue
			}
			if r.KS != "test-ks" || r.Entry.ObjectType != services.ObjectTypeViewHistory ||
				r.Entry.PlaybackContext != "course-1" || r.Entry.LastUpdateTime != 1 {
				t.Errorf("request = %+v, entry = %+v", r, *r.Entry)
			}
			if r.Action == services.ActionUpdate && r.Entry.ExtendedStatus != models.StatusPlaybackStarted {
				t.Errorf("update carries status %q, want the record's current status", r.Entry.ExtendedStatus)
			}
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		for _, k := range []int{0, 1, 3, DefaultMaxRetries} {
			t.Run(fmt.Sprintf("%d failures", k), func(t *testing.T) {
				client := th.NewFakeRecordClient()
				client.FailNext(services.ActionAdd, k, transportErr())
				e := newTestEngine(t, client, nil, DefaultOptions())

				rec, err := await(t, e.Enqueue("entry", models.CompleteUpdate(90)))
				if err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
				if n := client.Count(services.ActionAdd); n != k+1 {
					t.Errorf("add calls = %d, want %d", n, k+1)
				}
				if rec.Status() != models.StatusPlaybackComplete || rec.LastTimeReached != 90 {
					t.Errorf("record = %+v, want complete at 90", rec)
				}
			})
		}
	})

	t.Run("exhaustion fails one write only", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		opts := DefaultOptions()
		opts.MaxRetries = 2
		client.FailNext(services.ActionAdd, 3+2, transportErr())
		e := newTestEngine(t, client, nil, opts)

		first := e.Enqueue("entry", models.StatusUpdate(models.StatusViewed))
		second := e.Enqueue("entry", models.StatusUpdate(models.StatusPlaybackStarted))

		if _, err := await(t, first); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("first write error = %v, want ErrAPIRequest", err)
		}
		rec, err := await(t, second)
		if err != nil {
			t.Fatalf("second write error = %v", err)
		}
		if rec.Status() != models.StatusPlaybackStarted {
			t.Errorf("record = %+v, want started", rec)
		}
		if n := client.Count(services.ActionAdd); n != 6 {
			t.Errorf("add calls = %d, want 6", n)
		}
	})

	t.Run("exhaustion carries the first error", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		opts := DefaultOptions()
		opts.MaxRetries = 1
		client.FailNext(services.ActionAdd, 1, transportErr())
		client.FailNext(services.ActionAdd, 1, &services.RemoteError{Code: "INTERNAL", Message: "try again"})
		e := newTestEngine(t, client, nil, opts)

		_, err := await(t, e.Enqueue("entry", models.StatusUpdate(models.StatusViewed)))
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("write error = %v, want ErrAPIRequest", err)
		}
		var remote *services.RemoteError
		if errors.As(err, &remote) {
			t.Errorf("write error = %v, want the first attempt's error", err)
		}
		if n := client.Count(services.ActionAdd); n != 2 {
			t.Errorf("add calls = %d, want 2", n)
		}
	})

	t.Run("remote exceptions are retried", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.FailNext(services.ActionAdd, 1, &services.RemoteError{Code: "INTERNAL", Message: "try again"})
		e := newTestEngine(t, client, nil, DefaultOptions())

		if _, err := await(t, e.Enqueue("entry", models.StatusUpdate(models.StatusViewed))); err != nil {
			t.Errorf("Enqueue() error = %v", err)
		}
	})

	t.Run("complete is never downgraded", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Seed(models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackComplete, LastTimeReached: 100})
		e := newTestEngine(t, client, nil, DefaultOptions())

		rec, err := await(t, e.Enqueue("entry", models.StatusUpdate(models.StatusPlaybackStarted)))
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		if rec.Status() != models.StatusPlaybackComplete {
			t.Errorf("status = %q, want complete", rec.Status())
		}
		if got := client.Record("entry").ExtendedStatus; got != models.StatusPlaybackComplete {
			t.Errorf("remote status = %q, want complete", got)
		}
	})

	t.Run("proxy path keeps the optimistic record", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.ReturnRecord = false
		client.Seed(models.Record{ID: "rec-1", EntryID: "entry", ExtendedStatus: models.StatusViewed, LastTimeReached: 5})
		e := newTestEngine(t, client, nil, DefaultOptions())

		rec, err := await(t, e.Enqueue("entry", models.PositionUpdate(12)))
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		want := models.Record{ID: "rec-1", EntryID: "entry", ExtendedStatus: models.StatusViewed, LastTimeReached: 12}
		if *rec != want {
			t.Errorf("record = %+v, want %+v", *rec, want)
		}

		lists := client.Count(services.ActionList)
		cached, err := await(t, e.ViewHistory("entry"))
		if err != nil || cached.LastTimeReached != 12 {
			t.Errorf("cached record = %+v, %v", cached, err)
		}
		if client.Count(services.ActionList) != lists {
			t.Error("expected the cached record to be served without a read")
		}
	})

	t.Run("entries run independently", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Delay = 100 * time.Millisecond
		e := newTestEngine(t, client, nil, DefaultOptions())

		a := e.Enqueue("a", models.StatusUpdate(models.StatusViewed))
		b := e.Enqueue("b", models.StatusUpdate(models.StatusViewed))
		if _, err := await(t, a); err != nil {
			t.Fatalf("a error = %v", err)
		}
		if _, err := await(t, b); err != nil {
			t.Fatalf("b error = %v", err)
		}
		if client.MaxConcurrent() < 2 {
			t.Errorf("max concurrent calls = %d, want at least 2", client.MaxConcurrent())
		}
	})

	t.Run("invalid update", func(t *testing.T) {
		e := newTestEngine(t, th.NewFakeRecordClient(), nil, DefaultOptions())
		if _, err := await(t, e.Enqueue("entry", models.PositionUpdate(-1))); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("untrack cancels queued writes", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Delay = time.Second
		e := newTestEngine(t, client, nil, DefaultOptions())

		f := e.Enqueue("entry", models.StatusUpdate(models.StatusViewed))
		e.Untrack("entry")
		if _, err := await(t, f); err == nil {
			t.Error("expected untracked write to fail")
		}
	})
}

func TestEngine_Updates(t *testing.T) {
	client := th.NewFakeRecordClient()
	client.FailNext(services.ActionAdd, 1, transportErr())
	updates := make(chan TransitionUpdate, 10)
	e := NewEngine(EngineOpts{
		Client:      client,
		Credentials: services.NewStaticCredentials("ks"),
		Options:     DefaultOptions(),
		Updates:     updates,
	})
	defer e.Close()

	if _, err := await(t, e.Enqueue("entry", models.StatusUpdate(models.StatusPlaybackStarted))); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	close(updates)

	var kinds []Transition
	for u := range updates {
		kinds = append(kinds, u.Kind)
		if u.EntryID != "entry" || u.Message == "" {
			t.Errorf("update = %+v", u)
		}
	}
	if len(kinds) != 2 || kinds[0] != TransitionRetry || kinds[1] != TransitionStarted {
		t.Errorf("transitions = %v, want [retry started]", kinds)
	}
}
