package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/desertthunder/viewsync/internal/shared"
)

// BreakerClient wraps a [Client] with a circuit breaker so a failing record service is not hammered by retries.
//
// Service exceptions ([*RemoteError]) prove the service is reachable and do not count as failures.
// Rejected calls wrap [shared.ErrServiceUnavailable] and are retried like any transport failure.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[*Response]
}

// BreakerSettings tunes [BreakerClient]. Zero values use the defaults noted per field.
type BreakerSettings struct {
	Name        string        // "record-service"
	MaxRequests uint32        // 1 request allowed while half-open
	Interval    time.Duration // 1 minute window while closed
	Timeout     time.Duration // 30 seconds open before half-open
	MinRequests uint32        // 5 requests before the failure ratio is considered
	FailureRate float64       // 0.6
}

// NewBreakerClient wraps next with a circuit breaker and logs state transitions to logger.
func NewBreakerClient(next Client, settings BreakerSettings, logger *log.Logger) *BreakerClient {
	if settings.Name == "" {
		settings.Name = "record-service"
	}
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.MinRequests == 0 {
		settings.MinRequests = 5
	}
	if settings.FailureRate == 0 {
		settings.FailureRate = 0.6
	}
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			var remote *RemoteError
			return err == nil || errors.As(err, &remote) || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerClient{next: next, cb: cb}
}

// Do runs the wrapped call through the breaker.
func (b *BreakerClient) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := b.cb.Execute(func() (*Response, error) {
		return b.next.Do(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	return resp, err
}

// State reports the breaker's current state ("closed", "half-open", "open").
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
