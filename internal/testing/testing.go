// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/services"
)

// FakeRecordClient is an in-memory [services.Client] that behaves like the record service.
//
// Failures are injected per action with [FakeRecordClient.FailNext].
type FakeRecordClient struct {
	// ReturnRecord makes add and update respond with the stored record. When false they respond with an empty
	// body, as the proxy does.
	ReturnRecord bool
	// Delay is applied to every call before it is handled.
	Delay time.Duration

	mu       sync.Mutex
	records  map[string]*models.Record
	requests []services.Request
	failures map[services.Action][]error
	nextID   int
	active   int
	maxSeen  int
}

func NewFakeRecordClient() *FakeRecordClient {
	return &FakeRecordClient{
		ReturnRecord: true,
		records:      make(map[string]*models.Record),
		failures:     make(map[services.Action][]error),
	}
}

// Seed stores rec as the remote record for its entry.
func (f *FakeRecordClient) Seed(rec models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == "" {
		f.nextID++
		rec.ID = fmt.Sprintf("rec-%d", f.nextID)
	}
	f.records[rec.EntryID] = &rec
}

// FailNext makes the next n calls of action fail with err.
func (f *FakeRecordClient) FailNext(action services.Action, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.failures[action] = append(f.failures[action], err)
	}
}

// Record returns a copy of the stored record for entryID.
func (f *FakeRecordClient) Record(entryID string) *models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[entryID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Requests returns every request received, in order.
func (f *FakeRecordClient) Requests() []services.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.Request(nil), f.requests...)
}

// Count returns how many requests of action were received.
func (f *FakeRecordClient) Count(action services.Action) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Action == action {
			n++
		}
	}
	return n
}

// MaxConcurrent returns the largest number of calls that were in flight at once.
func (f *FakeRecordClient) MaxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func (f *FakeRecordClient) Do(ctx context.Context, req *services.Request) (*services.Response, error) {
	f.mu.Lock()
	cp := *req
	if req.Entry != nil {
		entry := *req.Entry
		cp.Entry = &entry
	}
	f.requests = append(f.requests, cp)
	f.active++
	f.maxSeen = max(f.maxSeen, f.active)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if errs := f.failures[req.Action]; len(errs) > 0 {
		f.failures[req.Action] = errs[1:]
		return nil, errs[0]
	}

	switch req.Action {
	case services.ActionList:
		if req.Filter == nil {
			return &services.Response{}, nil
		}
		rec, ok := f.records[req.Filter.EntryIDEqual]
		if !ok {
			return &services.Response{}, nil
		}
		cp := *rec
		return &services.Response{Objects: []models.Record{cp}, TotalCount: 1}, nil
	case services.ActionAdd:
		if req.Entry == nil || req.Entry.EntryID == "" {
			return nil, &services.RemoteError{ObjectType: services.ObjectTypeException, Code: "MISSING_MANDATORY_PARAMETER", Message: "entryId is required"}
		}
		f.nextID++
		rec := &models.Record{ID: fmt.Sprintf("rec-%d", f.nextID), EntryID: req.Entry.EntryID}
		apply(rec, req.Entry)
		f.records[rec.EntryID] = rec
		return f.respond(rec), nil
	case services.ActionUpdate:
		for _, rec := range f.records {
			if rec.ID == req.ID {
				apply(rec, req.Entry)
				return f.respond(rec), nil
			}
		}
		return nil, &services.RemoteError{ObjectType: services.ObjectTypeException, Code: "INVALID_OBJECT_ID", Message: "no record " + req.ID}
	default:
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
}

func (f *FakeRecordClient) respond(rec *models.Record) *services.Response {
	if !f.ReturnRecord {
		return &services.Response{}
	}
	cp := *rec
	return &services.Response{Record: &cp}
}

func apply(rec *models.Record, p *services.EntryParams) {
	if p == nil {
		return
	}
	rec.ObjectType = p.ObjectType
	rec.PlaybackContext = p.PlaybackContext
	if p.ExtendedStatus != models.StatusNone {
		rec.ExtendedStatus = p.ExtendedStatus
	}
	if p.LastTimeReached != nil {
		rec.LastTimeReached = *p.LastTimeReached
	}
}

// FakePlayer is a [history.Player] whose state is set by the test.
type FakePlayer struct {
	mu       sync.Mutex
	entryID  string
	position float64
	duration float64
	traits   models.Traits
	state    string
	err      error
}

func NewFakePlayer(entryID string, duration float64) *FakePlayer {
	return &FakePlayer{entryID: entryID, duration: duration, state: "playing"}
}

func (p *FakePlayer) EntryID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entryID
}

func (p *FakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *FakePlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *FakePlayer) Traits() models.Traits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.traits
}

func (p *FakePlayer) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *FakePlayer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *FakePlayer) SetPosition(v float64) {
	p.mu.Lock()
	p.position = v
	p.mu.Unlock()
}

func (p *FakePlayer) SetTraits(t models.Traits) {
	p.mu.Lock()
	p.traits = t
	p.mu.Unlock()
}

func (p *FakePlayer) SetState(s string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *FakePlayer) SetErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// FakeEventSource records bound handlers and runs them on [FakeEventSource.Emit].
type FakeEventSource struct {
	mu       sync.Mutex
	handlers map[string][]func()
}

func NewFakeEventSource() *FakeEventSource {
	return &FakeEventSource{handlers: make(map[string][]func())}
}

func (s *FakeEventSource) Bind(event string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

// Emit runs the handlers bound to event and reports whether there were any.
func (s *FakeEventSource) Emit(event string) bool {
	s.mu.Lock()
	fns := append([]func(){}, s.handlers[event]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
