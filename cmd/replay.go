package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/viewsync/internal/formatter"
	"github.com/desertthunder/viewsync/internal/history"
	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/shared"
)

// Script is a recorded player session replayed by the replay command.
type Script struct {
	Sessions []ScriptSession `json:"sessions"`
}

// ScriptSession plays one entry from load to release.
type ScriptSession struct {
	EntryID  string        `json:"entryId"`
	Duration float64       `json:"duration"`
	Traits   models.Traits `json:"traits"`
	Steps    []ScriptStep  `json:"steps"`
}

// ScriptStep updates the player and then emits Event. Position, State and Error apply before the event;
// SleepMS pauses after it.
type ScriptStep struct {
	Event    string   `json:"event,omitempty"`
	Position *float64 `json:"position,omitempty"`
	State    string   `json:"state,omitempty"`
	Error    string   `json:"error,omitempty"`
	SleepMS  int      `json:"sleepMs,omitempty"`
}

// LoadScript reads and validates a replay script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	if len(script.Sessions) == 0 {
		return nil, fmt.Errorf("%w: script has no sessions", shared.ErrInvalidInput)
	}
	for i, s := range script.Sessions {
		if s.EntryID == "" {
			return nil, fmt.Errorf("%w: session %d has no entryId", shared.ErrInvalidInput, i)
		}
		for j, step := range s.Steps {
			if step.Event != "" && !knownEvent(step.Event) {
				return nil, fmt.Errorf("%w: session %d step %d: unknown event %q", shared.ErrInvalidInput, i, j, step.Event)
			}
		}
	}
	return &script, nil
}

func knownEvent(name string) bool {
	switch name {
	case history.EventPlayerReady, history.EventFirstPlay, history.EventMonitor, history.EventEnded:
		return true
	}
	return false
}

// scriptPlayer is the [history.Player] driven by a script.
type scriptPlayer struct {
	mu       sync.Mutex
	entryID  string
	position float64
	duration float64
	traits   models.Traits
	state    string
	err      error
}

func (p *scriptPlayer) load(s ScriptSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entryID, p.duration, p.traits = s.EntryID, s.Duration, s.Traits
	p.position, p.state, p.err = 0, "ready", nil
}

func (p *scriptPlayer) apply(step ScriptStep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if step.Position != nil {
		p.position = *step.Position
	}
	if step.State != "" {
		p.state = step.State
	}
	if step.Error != "" {
		p.err = errors.New(step.Error)
	}
}

func (p *scriptPlayer) EntryID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entryID
}

func (p *scriptPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *scriptPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *scriptPlayer) Traits() models.Traits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.traits
}

func (p *scriptPlayer) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *scriptPlayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// eventBus is the [history.EventSource] the replay emits on.
type eventBus struct {
	mu       sync.Mutex
	handlers map[string][]func()
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[string][]func())}
}

func (b *eventBus) Bind(event string, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], fn)
}

func (b *eventBus) emit(event string) {
	b.mu.Lock()
	fns := append([]func(){}, b.handlers[event]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Replay runs a script through the engine, printing transitions as they happen and the final records.
func (r *Runner) Replay(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("script")
	if path == "" {
		return fmt.Errorf("%w: script path is required", shared.ErrMissingArgument)
	}

	script, err := LoadScript(path)
	if err != nil {
		return err
	}

	records, err := r.replay(ctx, script, cmd.Duration("timeout"), !cmd.Bool("quiet"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}
	data, err := formatter.RecordsToText(records)
	if err != nil {
		return err
	}
	r.writePlainln("Final records")
	return r.writePlain("%s", data)
}

// replay plays every session in order and returns the final record of each entry, as read back from the service.
func (r *Runner) replay(ctx context.Context, script *Script, timeout time.Duration, verbose bool) ([]models.Record, error) {
	player := &scriptPlayer{}
	bus := newEventBus()
	updates := make(chan history.TransitionUpdate, 64)

	engine := r.newEngine(player, updates)
	defer engine.Close()
	engine.Bind(bus)

	stop, printed := make(chan struct{}), make(chan struct{})
	show := func(tu history.TransitionUpdate) {
		if verbose {
			r.writePlain("%s\n", formatter.Transition(tu))
		}
	}
	go func() {
		defer close(printed)
		for {
			select {
			case tu := <-updates:
				show(tu)
			case <-stop:
				for {
					select {
					case tu := <-updates:
						show(tu)
					default:
						return
					}
				}
			}
		}
	}()
	defer func() {
		close(stop)
		<-printed
	}()

	for _, session := range script.Sessions {
		if verbose {
			r.writePlainHeader(session.EntryID)
		}
		player.load(session)

		for _, step := range session.Steps {
			player.apply(step)
			if step.Event != "" {
				bus.emit(step.Event)
			}
			if step.SleepMS > 0 {
				select {
				case <-time.After(time.Duration(step.SleepMS) * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}

		releaseCtx, cancel := context.WithTimeout(ctx, timeout)
		err := engine.Release(releaseCtx, session.EntryID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to settle %s: %w", session.EntryID, err)
		}
	}

	reader := r.newEngine(nil, nil)
	defer reader.Close()

	records := make([]models.Record, 0, len(script.Sessions))
	seen := make(map[string]bool)
	for _, session := range script.Sessions {
		if seen[session.EntryID] {
			continue
		}
		seen[session.EntryID] = true

		rec, err := reader.ViewHistory(session.EntryID).Wait(ctx)
		if err != nil {
			r.logger.Warn("failed to read back record", "entry", session.EntryID, "error", err)
			continue
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	return records, nil
}
