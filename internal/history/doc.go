// Package history synchronizes local playback with remote view-history records.
//
// # Per-entry state
//
// The [Engine] keeps one tracking state per entry id:
//
//  1. A memoized fetch of the remote record ([Engine.ViewHistory])
//     - Concurrent readers share one in-flight request
//     - The settled result stays cached until [Engine.Invalidate]
//
//  2. A write queue ([Engine.Enqueue])
//     - Writes run one at a time, in submission order
//     - Each write retries up to [Options.MaxRetries] times, re-reading the record before every retry
//     - A write that exhausts its retries fails alone; the next write starts with a full budget
//
//  3. A throttled position reporter ([Throttle])
//     - At most one "last time reached" write per interval, the last value of a burst is always delivered
//
// # Lifecycle
//
// [Engine.Bind] wires the handlers to a player's events. Handlers decide the next status from the cached record
// and the media [models.Traits]:
//
//   - ready: images are complete; other media is marked viewed when [Options.TrackViewed] is set
//   - first play: images are complete, live media is started, anything not yet started becomes started
//   - monitor: inside the completion threshold playback is complete, otherwise the position is reported
//   - ended: playback is complete at the full duration
//
// Decisions for one entry are made in event order. A complete record is never downgraded.
//
// # Results
//
// Every operation returns a [Future]. Failures, including missing credentials and a failed player, settle the
// future; nothing is raised to the host. An optional channel receives a [TransitionUpdate] per write attempt.
package history
