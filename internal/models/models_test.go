package models

import "testing"

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		rank   int
		short  string
	}{
		{StatusNone, 0, "UNSEEN"},
		{StatusViewed, 1, "VIEWED"},
		{StatusPlaybackStarted, 2, "PLAYBACK_STARTED"},
		{StatusPlaybackComplete, 3, "PLAYBACK_COMPLETE"},
		{Status("viewHistory.CUSTOM"), 0, "CUSTOM"},
	}

	for _, tt := range tests {
		t.Run(tt.short, func(t *testing.T) {
			if got := tt.status.Rank(); got != tt.rank {
				t.Errorf("Rank() = %d, want %d", got, tt.rank)
			}
			if got := tt.status.Short(); got != tt.short {
				t.Errorf("Short() = %q, want %q", got, tt.short)
			}
		})
	}

	if StatusNone.AtLeast(StatusNone) {
		t.Error("unseen must not count as at least unseen")
	}
	if !StatusPlaybackComplete.AtLeast(StatusPlaybackStarted) {
		t.Error("complete must count as started")
	}
	if StatusViewed.AtLeast(StatusPlaybackStarted) {
		t.Error("viewed must not count as started")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{in: "complete", want: StatusPlaybackComplete},
		{in: "PLAYBACK_STARTED", want: StatusPlaybackStarted},
		{in: "viewHistory.VIEWED", want: StatusViewed},
		{in: "", want: StatusNone},
		{in: "paused", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecord_Merge(t *testing.T) {
	t.Run("nil record", func(t *testing.T) {
		var r *Record
		got := r.Merge("entry", CompleteUpdate(42))
		if got.EntryID != "entry" || got.ExtendedStatus != StatusPlaybackComplete || got.LastTimeReached != 42 {
			t.Errorf("Merge() = %+v", got)
		}
		if got.HasID() {
			t.Error("merged record must not invent an id")
		}
	})

	t.Run("keeps unset fields", func(t *testing.T) {
		r := &Record{ID: "1", EntryID: "entry", ExtendedStatus: StatusPlaybackStarted, LastTimeReached: 10}
		got := r.Merge("entry", PositionUpdate(20))
		if got.ExtendedStatus != StatusPlaybackStarted || got.LastTimeReached != 20 || got.ID != "1" {
			t.Errorf("Merge() = %+v", got)
		}
		if r.LastTimeReached != 10 {
			t.Error("Merge() must not modify the receiver")
		}
	})

	t.Run("complete is kept", func(t *testing.T) {
		r := &Record{ID: "1", EntryID: "entry", ExtendedStatus: StatusPlaybackComplete}
		if got := r.Merge("entry", StatusUpdate(StatusViewed)); got.ExtendedStatus != StatusPlaybackComplete {
			t.Errorf("Merge() status = %q, want complete", got.ExtendedStatus)
		}
	})
}

func TestUpdate(t *testing.T) {
	if !(Update{}).IsEmpty() {
		t.Error("zero update must be empty")
	}
	if err := PositionUpdate(-3).Validate(); err == nil {
		t.Error("negative position must not validate")
	}
	if err := CompleteUpdate(12).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if got := CompleteUpdate(12).String(); got != "PLAYBACK_COMPLETE@12" {
		t.Errorf("String() = %q", got)
	}
	if got := StatusUpdate(StatusViewed).Clamp(StatusPlaybackComplete).ExtendedStatus; got != StatusPlaybackComplete {
		t.Errorf("Clamp() = %q, want complete", got)
	}
	if got := StatusUpdate(StatusPlaybackComplete).Clamp(StatusViewed).ExtendedStatus; got != StatusPlaybackComplete {
		t.Errorf("Clamp() = %q, want complete", got)
	}
}

func TestTraits_Trackable(t *testing.T) {
	tests := []struct {
		name   string
		traits Traits
		want   bool
	}{
		{"vod", Traits{}, true},
		{"live", Traits{Live: true}, false},
		{"image", Traits{Image: true}, false},
		{"sequence", Traits{InSequence: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.traits.Trackable(); got != tt.want {
				t.Errorf("Trackable() = %v, want %v", got, tt.want)
			}
		})
	}
}
