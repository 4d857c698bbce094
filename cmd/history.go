package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/viewsync/internal/formatter"
	"github.com/desertthunder/viewsync/internal/history"
	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/shared"
)

const defaultWaitTimeout = 30 * time.Second

// HistoryGet fetches and prints the view-history record for an entry.
func (r *Runner) HistoryGet(ctx context.Context, cmd *cli.Command) error {
	entryID := cmd.StringArg("entry")
	if entryID == "" {
		return fmt.Errorf("%w: entry id is required", shared.ErrMissingArgument)
	}

	engine := r.newEngine(nil, nil)
	defer engine.Close()

	r.logger.Debug("fetching view history", "entry", entryID)

	rec, err := engine.ViewHistory(entryID).Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch view history: %w", err)
	}

	if cmd.Bool("json") {
		if rec == nil {
			return r.writeJSON(nil, cmd.Bool("pretty"))
		}
		return r.writeJSON(rec, cmd.Bool("pretty"))
	}

	if rec == nil {
		return r.writePlain("%s has no view history\n", entryID)
	}
	return r.writePlain("%s\n", formatter.RecordLine(rec))
}

// HistorySet queues one write for an entry, waits for it to settle and prints the resulting record.
func (r *Runner) HistorySet(ctx context.Context, cmd *cli.Command) error {
	entryID := cmd.StringArg("entry")
	if entryID == "" {
		return fmt.Errorf("%w: entry id is required", shared.ErrMissingArgument)
	}

	u, err := updateFromFlags(cmd.String("status"), cmd.Float("position"))
	if err != nil {
		return err
	}

	updates := make(chan history.TransitionUpdate, 16)
	engine := r.newEngine(nil, updates)
	defer engine.Close()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	logger := shared.WithLogger(r.logger, "entry", entryID)
	future := engine.Enqueue(entryID, u)
wait:
	for {
		select {
		case tu := <-updates:
			logger.Info(tu.Message, "kind", tu.Kind.String(), "attempt", tu.Attempt)
		case <-future.Done():
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	rec, err := future.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to write view history: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(rec, true)
	}
	return r.writePlain("✓ %s\n", formatter.RecordLine(rec))
}

// updateFromFlags builds the write described by --status and --position. A negative position is unset.
func updateFromFlags(status string, position float64) (models.Update, error) {
	var u models.Update
	if status != "" {
		s, err := models.ParseStatus(status)
		if err != nil {
			return u, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		u.ExtendedStatus = s
	}
	if position >= 0 {
		u.LastTimeReached = &position
	}
	if u.IsEmpty() {
		return u, fmt.Errorf("%w: --status or --position is required", shared.ErrMissingArgument)
	}
	return u, nil
}

// HistoryThreshold prints how many seconds before the end playback counts as complete.
func (r *Runner) HistoryThreshold(ctx context.Context, cmd *cli.Command) error {
	duration := cmd.Float("duration")

	percent := string(r.config.Tracking.PlaybackCompletePercent)
	if cmd.IsSet("percent") {
		percent = cmd.String("percent")
	}
	seconds := r.config.Tracking.PlaybackCompleteSeconds
	if cmd.IsSet("seconds") {
		seconds = cmd.Float("seconds")
	}

	threshold := history.PlaybackCompleteSeconds(percent, seconds, duration)

	r.writePlainHeader("Completion threshold")
	r.writePlain("Duration:       %s\n", strconv.FormatFloat(duration, 'f', -1, 64))
	r.writePlain("Percent:        %s\n", percent)
	r.writePlain("Seconds:        %s\n", strconv.FormatFloat(seconds, 'f', -1, 64))
	r.writePlain("Seconds to end: %s\n", strconv.FormatFloat(threshold, 'f', -1, 64))
	return r.writePlain("Complete after: %s\n", formatter.FormatPosition(duration-threshold))
}
