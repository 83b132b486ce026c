// Package goerror carries a caller-facing message and an HTTP status next to
// the error that caused them.
package goerror

import (
	"fmt"
	"net/http"
)

// Code identifies the class of failure.
type Code int

const (
	CodeInternal Code = iota
	CodeUnavailable
	CodeTimeout
)

var codes = map[Code]struct {
	name   string
	status int
}{
	CodeInternal:    {"INTERNAL", http.StatusInternalServerError},
	CodeUnavailable: {"UNAVAILABLE", http.StatusServiceUnavailable},
	CodeTimeout:     {"TIMEOUT", http.StatusGatewayTimeout},
}

func (c Code) String() string {
	if v, ok := codes[c]; ok {
		return v.name
	}
	return codes[CodeInternal].name
}

// Error is returned by handlers and health checks. The router renders Msg and
// StatusCode; the cause only reaches the logs.
type Error struct {
	cause error
	msg   string
	code  Code
}

func (e *Error) Error() string {
	switch {
	case e.cause != nil:
		return e.cause.Error()
	case e.msg != "":
		return e.msg
	}
	return "Internal error"
}

// String is the verbose form used in log lines.
func (e *Error) String() string {
	return fmt.Sprintf("[%s] %s: %v", e.code, e.msg, e.cause)
}

func (e *Error) Msg() string   { return e.msg }
func (e *Error) Code() Code    { return e.code }
func (e *Error) Unwrap() error { return e.cause }

// StatusCode is the HTTP status the error maps to.
func (e *Error) StatusCode() int {
	if v, ok := codes[e.code]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}

// NewServer hides err behind a generic message.
func NewServer(err error) error {
	return &Error{cause: err, msg: "Internal server error", code: CodeInternal}
}

// NewUnavailable reports a failing dependency such as a broker or a background
// worker. msg is shown to callers.
func NewUnavailable(msg string, err error) error {
	return &Error{cause: err, msg: msg, code: CodeUnavailable}
}

func NewTimeout(msg string, err error) error {
	return &Error{cause: err, msg: msg, code: CodeTimeout}
}
