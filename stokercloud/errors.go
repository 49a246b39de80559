package stokercloud

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the fetched document reports that the
	// boiler controller is offline. The document itself is still cached.
	ErrNotConnected = errors.New("stokercloud: furnace/boiler not connected to StokerCloud")

	// errTokenInvalid is the internal signal that drives re-authentication.
	errTokenInvalid = errors.New("stokercloud: token invalid")
)

// AuthenticationError means no usable token could be obtained, or the token
// was still rejected after one refresh-and-retry cycle.
type AuthenticationError struct {
	Account string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("stokercloud: authentication failed for %q: %v", e.Account, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// TransportError wraps network failures, non-2xx responses and bodies that
// are not valid JSON.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stokercloud: %s failed with status code %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stokercloud: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MissingFieldError is returned by typed accessors whose path is absent from
// the document.
type MissingFieldError struct {
	Path string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("stokercloud: field %q missing from controller data", e.Path)
}
