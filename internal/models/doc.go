// Package models defines the view-history entities shared by the engine, the record clients and the development service.
//
// The package contains three groups of types:
//
// 1. Remote state
//   - [Record] : a user's view-history record for one entry, owned by the record service
//   - [Status] : the record's extended status (viewed, playback started, playback complete)
//
// 2. Writes
//   - [Update] : a partial update; unset fields leave the record untouched
//
// 3. Playback
//   - [Traits] : media traits reported by the player (image, live, part of a sequence)
//
// Status values are ranked so callers can reason about "VIEWED or later" without string comparisons.
// A record that reached [StatusPlaybackComplete] is never downgraded by [Record.Merge].
package models
