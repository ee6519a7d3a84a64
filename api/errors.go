// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-pim.

package api

import (
	"errors"
	"fmt"
)

// Frame and request errors. Codec and capacity errors are returned to the
// caller before the request ever enters the shared queue.
var (
	ErrMalformedHeader  = errors.New("malformed length header")
	ErrTruncatedInput   = errors.New("truncated input")
	ErrBufferTooSmall   = errors.New("output buffer too small")
	ErrFrameTooLarge    = errors.New("frame exceeds lane capacity")
	ErrCorruptInput     = errors.New("corrupt compressed input")
	ErrDeviceFault      = errors.New("device fault")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
	ErrNoClusters       = errors.New("no clusters available")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeDeviceResult
	ErrCodeDeviceFault
	ErrCodeClosed
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped sentinel to errors.Is.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap attaches a sentinel cause to the error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
