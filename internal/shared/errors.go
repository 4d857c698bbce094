package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Session errors; writes fail without reaching the network
	ErrNoCredentials = fmt.Errorf("no credentials available")
	ErrPlayerError   = fmt.Errorf("player is in an error state")

	// Record service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrUnexpectedResponse = fmt.Errorf("unexpected response")
	ErrRecordNotFound     = fmt.Errorf("record not found")

	// Engine errors
	ErrEntryUntracked = fmt.Errorf("entry is no longer tracked")
	ErrEngineClosed   = fmt.Errorf("engine closed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// Retryable reports whether a failed write may be attempted again.
//
// Session failures are final; everything else (remote exceptions, transport errors) is retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, final := range []error{ErrNoCredentials, ErrPlayerError, ErrEntryUntracked, ErrEngineClosed, context.Canceled} {
		if errors.Is(err, final) {
			return false
		}
	}
	return true
}
