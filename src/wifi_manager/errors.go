package wifi_manager

import (
	"errors"
)

// Result is the result code of a public operation or callback.
type Result int

const (
	ResultSuccess Result = iota
	ResultFail
	ResultInvalidArgs
	ResultCallbackNotRegistered
	ResultAlreadyConnected
	ResultDeinitialized
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFail:
		return "fail"
	case ResultInvalidArgs:
		return "invalid_args"
	case ResultCallbackNotRegistered:
		return "callback_not_registered"
	case ResultAlreadyConnected:
		return "already_connected"
	case ResultDeinitialized:
		return "deinitialized"
	default:
		return "unknown"
	}
}

// Error represents a failed manager operation with its result code
type Error struct {
	Code Result
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels below by result code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrFail                  = &Error{Code: ResultFail}
	ErrInvalidArgs           = &Error{Code: ResultInvalidArgs}
	ErrCallbackNotRegistered = &Error{Code: ResultCallbackNotRegistered}
	ErrAlreadyConnected      = &Error{Code: ResultAlreadyConnected}
	ErrDeinitialized         = &Error{Code: ResultDeinitialized}
)

// Errors a Driver wraps so the manager can classify connect failures.
var (
	ErrDriverAlreadyConnected = errors.New("driver: already connected")
	ErrDriverAPNotFound       = errors.New("driver: access point not found")
)

var errInvalidEvent = errors.New("event not valid in current state")

func newError(code Result, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// ResultOf maps an error returned by the Manager to its result code.
func ResultOf(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ResultFail
}

// IsInvalidEvent reports whether err is a rejection of an event in the current state.
func IsInvalidEvent(err error) bool {
	return errors.Is(err, errInvalidEvent)
}
