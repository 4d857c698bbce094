package history

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/services"
	"github.com/desertthunder/viewsync/internal/shared"
	th "github.com/desertthunder/viewsync/internal/testing"
)

// statuses returns the statuses written to the service, in order.
func statuses(client *th.FakeRecordClient) []models.Status {
	var out []models.Status
	for _, r := range client.Requests() {
		if r.Action != services.ActionList && r.Entry != nil {
			out = append(out, r.Entry.ExtendedStatus)
		}
	}
	return out
}

func TestEngine_OnReady(t *testing.T) {
	tests := []struct {
		name        string
		traits      models.Traits
		trackViewed bool
		seed        *models.Record
		wantStatus  models.Status
		wantWrites  int
	}{
		{
			name:       "image completes",
			traits:     models.Traits{Image: true},
			wantStatus: models.StatusPlaybackComplete,
			wantWrites: 1,
		},
		{
			name:        "image completes even when tracking viewed",
			traits:      models.Traits{Image: true},
			trackViewed: true,
			wantStatus:  models.StatusPlaybackComplete,
			wantWrites:  1,
		},
		{
			name:        "tracking viewed marks unseen media viewed",
			trackViewed: true,
			wantStatus:  models.StatusViewed,
			wantWrites:  1,
		},
		{
			name:        "tracking viewed keeps later statuses",
			trackViewed: true,
			seed:        &models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackStarted},
			wantStatus:  models.StatusPlaybackStarted,
			wantWrites:  0,
		},
		{
			name:        "tracking viewed keeps unknown statuses",
			trackViewed: true,
			seed:        &models.Record{EntryID: "entry", ExtendedStatus: models.Status("viewHistory.BOOKMARKED")},
			wantStatus:  models.Status("viewHistory.BOOKMARKED"),
			wantWrites:  0,
		},
		{
			name:       "viewed tracking disabled",
			wantStatus: models.StatusNone,
			wantWrites: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := th.NewFakeRecordClient()
			if tt.seed != nil {
				client.Seed(*tt.seed)
			}
			player := th.NewFakePlayer("entry", 120)
			player.SetTraits(tt.traits)
			opts := DefaultOptions()
			opts.TrackViewed = tt.trackViewed
			e := newTestEngine(t, client, player, opts)

			if _, err := await(t, e.OnReady()); err != nil {
				t.Fatalf("OnReady() error = %v", err)
			}
			release(t, e, "entry")

			if got := client.Record("entry").Status(); got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
			if got := len(statuses(client)); got != tt.wantWrites {
				t.Errorf("writes = %d, want %d", got, tt.wantWrites)
			}
		})
	}
}

func TestEngine_OnFirstPlay(t *testing.T) {
	tests := []struct {
		name       string
		traits     models.Traits
		seed       *models.Record
		wantStatus models.Status
		wantWrites int
	}{
		{
			name:       "unseen media starts",
			wantStatus: models.StatusPlaybackStarted,
			wantWrites: 1,
		},
		{
			name:       "viewed media starts",
			seed:       &models.Record{EntryID: "entry", ExtendedStatus: models.StatusViewed},
			wantStatus: models.StatusPlaybackStarted,
			wantWrites: 1,
		},
		{
			name:       "started media is left alone",
			seed:       &models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackStarted},
			wantStatus: models.StatusPlaybackStarted,
			wantWrites: 0,
		},
		{
			name:       "complete media is left alone",
			seed:       &models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackComplete},
			wantStatus: models.StatusPlaybackComplete,
			wantWrites: 0,
		},
		{
			name:       "live media from unseen starts",
			traits:     models.Traits{Live: true},
			wantStatus: models.StatusPlaybackStarted,
			wantWrites: 1,
		},
		{
			name:       "live media always writes",
			traits:     models.Traits{Live: true},
			seed:       &models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackStarted},
			wantStatus: models.StatusPlaybackStarted,
			wantWrites: 1,
		},
		{
			name:       "image completes",
			traits:     models.Traits{Image: true},
			wantStatus: models.StatusPlaybackComplete,
			wantWrites: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := th.NewFakeRecordClient()
			if tt.seed != nil {
				client.Seed(*tt.seed)
			}
			player := th.NewFakePlayer("entry", 120)
			player.SetTraits(tt.traits)
			e := newTestEngine(t, client, player, DefaultOptions())

			if _, err := await(t, e.OnFirstPlay()); err != nil {
				t.Fatalf("OnFirstPlay() error = %v", err)
			}
			release(t, e, "entry")

			if got := client.Record("entry").Status(); got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
			if got := len(statuses(client)); got != tt.wantWrites {
				t.Errorf("writes = %d, want %d", got, tt.wantWrites)
			}
		})
	}
}

func TestEngine_ImageNeverStarts(t *testing.T) {
	client := th.NewFakeRecordClient()
	player := th.NewFakePlayer("entry", 0)
	player.SetTraits(models.Traits{Image: true})
	e := newTestEngine(t, client, player, DefaultOptions())

	e.OnReady()
	e.OnFirstPlay()
	release(t, e, "entry")

	for _, s := range statuses(client) {
		if s == models.StatusPlaybackStarted {
			t.Fatalf("statuses = %v, an image must never be marked started", statuses(client))
		}
	}
	if got := client.Record("entry").Status(); got != models.StatusPlaybackComplete {
		t.Errorf("status = %q, want complete", got)
	}
}

func TestEngine_OnMonitor(t *testing.T) {
	t.Run("inside threshold completes", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		player := th.NewFakePlayer("entry", 100)
		player.SetPosition(85)
		opts := DefaultOptions()
		opts.PlaybackCompletePercent = "80"
		e := newTestEngine(t, client, player, opts)

		rec, err := await(t, e.OnMonitor())
		if err != nil {
			t.Fatalf("OnMonitor() error = %v", err)
		}
		if rec.Status() != models.StatusPlaybackComplete || rec.LastTimeReached != 85 {
			t.Errorf("record = %+v, want complete at 85", rec)
		}
		release(t, e, "entry")
	})

	t.Run("complete is not downgraded by a later tick", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Seed(models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackComplete, LastTimeReached: 100})
		player := th.NewFakePlayer("entry", 100)
		player.SetPosition(50)
		e := newTestEngine(t, client, player, DefaultOptions())

		if _, err := await(t, e.OnMonitor()); err != nil {
			t.Fatalf("OnMonitor() error = %v", err)
		}
		release(t, e, "entry")

		rec := client.Record("entry")
		if rec.Status() != models.StatusPlaybackComplete {
			t.Errorf("status = %q, want complete", rec.Status())
		}
		if rec.LastTimeReached != 50 {
			t.Errorf("last time reached = %v, want 50", rec.LastTimeReached)
		}
	})

	t.Run("untrackable media is ignored", func(t *testing.T) {
		for _, traits := range []models.Traits{{Live: true}, {Image: true}, {InSequence: true}} {
			client := th.NewFakeRecordClient()
			player := th.NewFakePlayer("entry", 100)
			player.SetTraits(traits)
			player.SetPosition(99)
			e := newTestEngine(t, client, player, DefaultOptions())

			if _, err := await(t, e.OnMonitor()); err != nil {
				t.Fatalf("OnMonitor() error = %v", err)
			}
			if _, err := await(t, e.OnEnded()); err != nil {
				t.Fatalf("OnEnded() error = %v", err)
			}
			release(t, e, "entry")
			if n := len(client.Requests()); n != 0 {
				t.Errorf("traits %+v: made %d calls, want 0", traits, n)
			}
		}
	})

	t.Run("ticks after the end are ignored", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		player := th.NewFakePlayer("entry", 100)
		player.SetState(PlayerStateEnd)
		player.SetPosition(40)
		e := newTestEngine(t, client, player, DefaultOptions())

		if _, err := await(t, e.OnMonitor()); err != nil {
			t.Fatalf("OnMonitor() error = %v", err)
		}
		release(t, e, "entry")
		if n := len(client.Requests()); n != 0 {
			t.Errorf("made %d calls, want 0", n)
		}
	})

	t.Run("burst of ticks writes the final position once", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		player := th.NewFakePlayer("entry", 1000)
		opts := DefaultOptions()
		opts.ThrottleInterval = 200 * time.Millisecond
		e := newTestEngine(t, client, player, opts)

		for _, pos := range []float64{10, 10.6, 11.2, 12.4, 13.7} {
			player.SetPosition(pos)
			e.OnMonitor()
		}
		time.Sleep(3 * opts.ThrottleInterval)
		release(t, e, "entry")

		var positions []float64
		for _, r := range client.Requests() {
			if r.Entry != nil && r.Entry.LastTimeReached != nil {
				positions = append(positions, *r.Entry.LastTimeReached)
			}
		}
		if len(positions) != 2 || positions[0] != 10 || positions[1] != 14 {
			t.Errorf("written positions = %v, want [10 14]", positions)
		}
	})

	t.Run("ready again delivers the pending position", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		player := th.NewFakePlayer("entry", 1000)
		opts := DefaultOptions()
		opts.ThrottleInterval = 200 * time.Millisecond
		e := newTestEngine(t, client, player, opts)

		if _, err := await(t, e.OnReady()); err != nil {
			t.Fatalf("OnReady() error = %v", err)
		}
		for _, pos := range []float64{10, 20} {
			player.SetPosition(pos)
			e.OnMonitor()
		}
		if _, err := await(t, e.OnReady()); err != nil {
			t.Fatalf("second OnReady() error = %v", err)
		}
		time.Sleep(3 * opts.ThrottleInterval)
		release(t, e, "entry")

		var positions []float64
		for _, r := range client.Requests() {
			if r.Entry != nil && r.Entry.LastTimeReached != nil {
				positions = append(positions, *r.Entry.LastTimeReached)
			}
		}
		if len(positions) != 2 || positions[0] != 10 || positions[1] != 20 {
			t.Errorf("written positions = %v, want [10 20]", positions)
		}
		if got := client.Record("entry").LastTimeReached; got != 20 {
			t.Errorf("LastTimeReached = %v, want 20", got)
		}
	})

	t.Run("unchanged position is not rewritten", func(t *testing.T) {
		client := th.NewFakeRecordClient()
		client.Seed(models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackStarted, LastTimeReached: 30})
		e := newTestEngine(t, client, th.NewFakePlayer("entry", 100), DefaultOptions())

		st, err := e.state("entry")
		if err != nil {
			t.Fatal(err)
		}
		rec, err := await(t, e.doTrackLastTimeReached(st, 30.2))
		if err != nil {
			t.Fatalf("doTrackLastTimeReached() error = %v", err)
		}
		if rec.LastTimeReached != 30 {
			t.Errorf("record = %+v", rec)
		}
		if n := len(statuses(client)); n != 0 {
			t.Errorf("writes = %d, want 0", n)
		}
	})
}

func TestEngine_OnEnded(t *testing.T) {
	client := th.NewFakeRecordClient()
	client.Seed(models.Record{EntryID: "entry", ExtendedStatus: models.StatusPlaybackStarted, LastTimeReached: 60})
	player := th.NewFakePlayer("entry", 120.4)
	e := newTestEngine(t, client, player, DefaultOptions())

	rec, err := await(t, e.OnEnded())
	if err != nil {
		t.Fatalf("OnEnded() error = %v", err)
	}
	if rec.Status() != models.StatusPlaybackComplete || rec.LastTimeReached != 120.4 {
		t.Errorf("record = %+v, want complete at 120.4", rec)
	}
	release(t, e, "entry")

	if got := client.Record("entry").LastTimeReached; got != 120 {
		t.Errorf("final last time reached = %v, want the rounded duration", got)
	}

	again := NewEngine(EngineOpts{Client: client, Credentials: services.NewStaticCredentials("ks"), Player: player, Options: DefaultOptions()})
	defer again.Close()
	before := len(statuses(client))
	if _, err := await(t, again.OnEnded()); err != nil {
		t.Fatalf("second OnEnded() error = %v", err)
	}
	release(t, again, "entry")
	for _, s := range statuses(client)[before:] {
		if s != models.StatusPlaybackComplete {
			t.Errorf("write after completion carried %q", s)
		}
	}
}

func TestEngine_Bind(t *testing.T) {
	client := th.NewFakeRecordClient()
	player := th.NewFakePlayer("entry", 100)
	src := th.NewFakeEventSource()
	opts := DefaultOptions()
	opts.TrackViewed = true
	e := newTestEngine(t, client, player, opts)
	e.Bind(src)

	for _, event := range []string{EventPlayerReady, EventFirstPlay} {
		if !src.Emit(event) {
			t.Fatalf("no handler bound for %s", event)
		}
	}
	player.SetPosition(100)
	src.Emit(EventMonitor)
	player.SetState(PlayerStateEnd)
	src.Emit(EventEnded)
	release(t, e, "entry")

	want := []models.Status{models.StatusViewed, models.StatusPlaybackStarted}
	got := statuses(client)
	if len(got) < len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("statuses = %v, want prefix %v", got, want)
	}
	if rec := client.Record("entry"); rec.Status() != models.StatusPlaybackComplete || rec.LastTimeReached != 100 {
		t.Errorf("record = %+v, want complete at 100", rec)
	}
}

func TestEngine_NoPlayer(t *testing.T) {
	e := newTestEngine(t, th.NewFakeRecordClient(), nil, DefaultOptions())
	if _, err := await(t, e.OnReady()); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("OnReady() error = %v, want ErrInvalidInput", err)
	}
}
