// Package errors provides coded errors for scenecast services.
// Errors carry an operation, structured fields and a short stack so that
// a failure crossing the worker or HTTP boundary can be logged and mapped
// onto a status without losing its origin.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code categorizes an error.
type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeBadRequest  Code = "BAD_REQUEST"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeTimeout     Code = "TIMEOUT"
	CodeUnavailable Code = "UNAVAILABLE"

	// Render pipeline codes.
	CodeNoScript      Code = "NO_SCRIPT"
	CodeScriptInvalid Code = "SCRIPT_INVALID"
	CodeSandbox       Code = "SANDBOX_FAILED"
	CodeCapture       Code = "CAPTURE_FAILED"
	CodeEncode        Code = "ENCODE_FAILED"
	CodeStorage       Code = "STORAGE_FAILED"
)

var statusByCode = map[Code]int{
	CodeValidation:    http.StatusBadRequest,
	CodeBadRequest:    http.StatusBadRequest,
	CodeNotFound:      http.StatusNotFound,
	CodeConflict:      http.StatusConflict,
	CodeNoScript:      http.StatusUnprocessableEntity,
	CodeScriptInvalid: http.StatusUnprocessableEntity,
	CodeTimeout:       http.StatusGatewayTimeout,
	CodeUnavailable:   http.StatusServiceUnavailable,
}

// Status is the HTTP status a response carrying c should use. Pipeline
// failures other than script rejections are server errors.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a coded error with operation context.
type Error struct {
	Code    Code
	Message string
	// Op names the failing operation, e.g. "processor.render".
	Op     string
	Err    error
	Fields map[string]any
	// Stack is captured at construction, innermost call first.
	Stack []Frame
}

// Frame is one captured call site.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f Frame) String() string {
	return fmt.Sprintf("%s:%d %s", f.File, f.Line, f.Function)
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = "[" + string(e.Code) + "] " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// holds for any not found error in the chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithField sets one field and returns e.
func (e *Error) WithField(key string, value any) *Error {
	return e.WithFields(map[string]any{key: value})
}

// WithFields merges fields into e and returns it.
func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// HTTPStatus is e.Code.Status().
func (e *Error) HTTPStatus() int { return e.Code.Status() }

// StackTrace formats the captured stack, one frame per line.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		b.WriteString("  " + f.String() + "\n")
	}
	return b.String()
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: callers()}
}

// Wrap wraps err with an operation and message. The code and fields of an
// *Error already in the chain are kept; anything else becomes CodeInternal.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	code, fields := CodeInternal, map[string]any(nil)
	var inner *Error
	if errors.As(err, &inner) {
		code, fields = inner.Code, inner.Fields
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Fields: fields, Stack: callers()}
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Stack: callers()}
}

// NotFound reports a missing resource by kind and id.
func NotFound(resource string, id string) *Error {
	e := New(CodeNotFound, resource+" not found: "+id)
	e.Stack = callers()
	return e.WithFields(map[string]any{"resource": resource, "id": id})
}

// Validation creates a validation error.
func Validation(message string) *Error {
	e := New(CodeValidation, message)
	e.Stack = callers()
	return e
}

// ValidationField creates a validation error naming the offending field.
func ValidationField(field string, message string) *Error {
	e := New(CodeValidation, message)
	e.Stack = callers()
	return e.WithField("field", field)
}

// Timeout reports an operation that ran past its deadline.
func Timeout(operation string) *Error {
	e := New(CodeTimeout, "operation timed out: "+operation)
	e.Stack = callers()
	return e.WithField("operation", operation)
}

// GetCode returns the code of the first *Error in err's chain, or
// CodeInternal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus is GetCode(err).Status().
func GetHTTPStatus(err error) int {
	return GetCode(err).Status()
}

// GetFields returns the fields of the first *Error in err's chain.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

const maxFrames = 10

// callers records the stack above the exported constructor that called it,
// skipping runtime frames.
func callers() []Frame {
	var pcs [32]uintptr
	// Skip runtime.Callers, callers and the constructor.
	n := runtime.Callers(3, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	var out []Frame
	for len(out) < maxFrames {
		f, more := it.Next()
		if !strings.Contains(f.File, "runtime/") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}

// As wraps errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// Is wraps errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
