package api

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers connection failures and non-2xx responses.
	ErrTransport = errors.New("transport failure")
	// ErrDecode covers bodies that are not the expected JSON.
	ErrDecode = errors.New("malformed response")
)

// RequestError describes a failed backend call. It matches ErrTransport or
// ErrDecode with errors.Is, and the underlying cause when there is one.
type RequestError struct {
	Op     string
	Status int
	Kind   error
	Err    error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("api: %s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func transportError(op string, status int, err error) error {
	return &RequestError{Op: op, Status: status, Kind: ErrTransport, Err: err}
}

func decodeError(op string, err error) error {
	return &RequestError{Op: op, Kind: ErrDecode, Err: err}
}
