package models

import (
	"fmt"
	"math"
	"strings"
)

// Status is the extended status of a view-history record.
//
// The status space is open: the service may return values this package does not know about.
type Status string

const (
	StatusNone             Status = ""
	StatusViewed           Status = "viewHistory.VIEWED"
	StatusPlaybackStarted  Status = "viewHistory.PLAYBACK_STARTED"
	StatusPlaybackComplete Status = "viewHistory.PLAYBACK_COMPLETE"
)

// Rank orders known statuses. Unknown values rank with [StatusNone].
func (s Status) Rank() int {
	switch s {
	case StatusViewed:
		return 1
	case StatusPlaybackStarted:
		return 2
	case StatusPlaybackComplete:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is o or a later status.
func (s Status) AtLeast(o Status) bool {
	return s.Rank() >= o.Rank() && s.Rank() > 0
}

// Short returns the status without the service namespace (e.g. "VIEWED").
func (s Status) Short() string {
	if s == StatusNone {
		return "UNSEEN"
	}
	return strings.TrimPrefix(string(s), "viewHistory.")
}

// ParseStatus accepts either the namespaced value or its short form ("complete", "PLAYBACK_COMPLETE").
func ParseStatus(v string) (Status, error) {
	switch v {
	case "", "none", "unseen", "UNSEEN":
		return StatusNone, nil
	case "viewed", "VIEWED", string(StatusViewed):
		return StatusViewed, nil
	case "started", "PLAYBACK_STARTED", string(StatusPlaybackStarted):
		return StatusPlaybackStarted, nil
	case "complete", "PLAYBACK_COMPLETE", string(StatusPlaybackComplete):
		return StatusPlaybackComplete, nil
	default:
		return StatusNone, fmt.Errorf("unknown status %q", v)
	}
}

// Record is a user's view-history record for one entry.
//
// ID is empty until the first write for the entry succeeds.
type Record struct {
	ID              string  `json:"id,omitempty"`
	EntryID         string  `json:"entryId"`
	UserID          string  `json:"userId,omitempty"`
	ObjectType      string  `json:"objectType,omitempty"`
	ExtendedStatus  Status  `json:"extendedStatus,omitempty"`
	LastTimeReached float64 `json:"lastTimeReached"`
	PlaybackContext string  `json:"playbackContext,omitempty"`
	CreatedAt       int64   `json:"createdAt,omitempty"` // unix seconds
	UpdatedAt       int64   `json:"updatedAt,omitempty"` // unix seconds
}

// Status returns the record's extended status; a nil record is unseen.
func (r *Record) Status() Status {
	if r == nil {
		return StatusNone
	}
	return r.ExtendedStatus
}

// HasID reports whether the record exists remotely.
func (r *Record) HasID() bool {
	return r != nil && r.ID != ""
}

// Merge returns a copy of r overwritten by the fields set in u.
//
// A nil receiver yields a record built from u alone. A complete record keeps its status.
func (r *Record) Merge(entryID string, u Update) *Record {
	var next Record
	if r != nil {
		next = *r
	}
	if next.EntryID == "" {
		next.EntryID = entryID
	}
	if u.ExtendedStatus != StatusNone {
		next.ExtendedStatus = u.Clamp(next.ExtendedStatus).ExtendedStatus
	}
	if u.LastTimeReached != nil {
		next.LastTimeReached = *u.LastTimeReached
	}
	return &next
}

// Update is a partial write to a [Record]. Zero-valued fields are not written.
type Update struct {
	ExtendedStatus  Status
	LastTimeReached *float64
}

// StatusUpdate builds an [Update] that only changes the status.
func StatusUpdate(s Status) Update {
	return Update{ExtendedStatus: s}
}

// PositionUpdate builds an [Update] that only changes the last time reached.
func PositionUpdate(seconds float64) Update {
	return Update{LastTimeReached: &seconds}
}

// CompleteUpdate marks playback complete at the given position.
func CompleteUpdate(seconds float64) Update {
	return Update{ExtendedStatus: StatusPlaybackComplete, LastTimeReached: &seconds}
}

// Clamp drops a status change that would downgrade a complete record.
func (u Update) Clamp(current Status) Update {
	if current == StatusPlaybackComplete && u.ExtendedStatus != StatusNone && u.ExtendedStatus != StatusPlaybackComplete {
		u.ExtendedStatus = StatusPlaybackComplete
	}
	return u
}

// IsEmpty reports whether the update writes nothing.
func (u Update) IsEmpty() bool {
	return u.ExtendedStatus == StatusNone && u.LastTimeReached == nil
}

// Validate checks the update's values.
func (u Update) Validate() error {
	if u.LastTimeReached != nil {
		v := *u.LastTimeReached
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid last time reached: %v", v)
		}
	}
	return nil
}

func (u Update) String() string {
	switch {
	case u.LastTimeReached != nil && u.ExtendedStatus != StatusNone:
		return fmt.Sprintf("%s@%.0f", u.ExtendedStatus.Short(), *u.LastTimeReached)
	case u.LastTimeReached != nil:
		return fmt.Sprintf("position@%.0f", *u.LastTimeReached)
	default:
		return u.ExtendedStatus.Short()
	}
}

// Traits describes the media loaded in the player.
type Traits struct {
	Image      bool `json:"image"`
	Live       bool `json:"live"`
	InSequence bool `json:"inSequence"`
}

// Trackable reports whether progress tracking applies: not live, not an image, not part of a sequence.
func (t Traits) Trackable() bool {
	return !t.Live && !t.Image && !t.InSequence
}
