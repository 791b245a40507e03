package qop

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
)

// Kind classifies the errors returned by this package.
type Kind string

const (
	KindConnection       Kind = "ConnectionError"
	KindTimeout          Kind = "TimeoutError"
	KindRedirect         Kind = "RedirectError"
	KindServer           Kind = "ServerError"
	KindValidation       Kind = "ValidationError"
	KindSchemaMismatch   Kind = "SchemaMismatchError"
	KindUnsupportedSlice Kind = "UnsupportedSliceError"
	KindClosed           Kind = "ClosedError"
	KindExecutor         Kind = "ExecutorError"
	KindHealthCheck      Kind = "HealthCheckError"
	KindDetection        Kind = "ServerDetectionError"
	KindRequest          Kind = "RequestError"
	KindSimulation       Kind = "SimulationError"
	KindCompilation      Kind = "CompilationError"
	KindOpenQM           Kind = "OpenQmError"
	KindQueue            Kind = "QueueError"
	KindResult           Kind = "ResultError"
	KindLocationParsing  Kind = "LocationParsingError"
	KindUnsupported      Kind = "UnsupportedCapabilityError"
)

// ErrQop is a sentinel for use with errors.Is to check whether any error in a
// chain was produced by this package.
var ErrQop = &Error{}

// Sentinels for errors.Is, one per Kind.
var (
	ErrConnection       = &Error{Kind: KindConnection}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrRedirect         = &Error{Kind: KindRedirect}
	ErrServer           = &Error{Kind: KindServer}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrSchemaMismatch   = &Error{Kind: KindSchemaMismatch}
	ErrUnsupportedSlice = &Error{Kind: KindUnsupportedSlice}
	ErrClosed           = &Error{Kind: KindClosed}
	ErrExecutor         = &Error{Kind: KindExecutor}
	ErrHealthCheck      = &Error{Kind: KindHealthCheck}
	ErrDetection        = &Error{Kind: KindDetection}
	ErrRequest          = &Error{Kind: KindRequest}
	ErrSimulation       = &Error{Kind: KindSimulation}
	ErrCompilation      = &Error{Kind: KindCompilation}
	ErrOpenQM           = &Error{Kind: KindOpenQM}
	ErrQueue            = &Error{Kind: KindQueue}
	ErrResult           = &Error{Kind: KindResult}
	ErrLocationParsing  = &Error{Kind: KindLocationParsing}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
)

// Error is the general error type of this package.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel of the same Kind, or ErrQop.
func (e *Error) Is(target error) bool {
	return matchKind(target, e.Kind)
}

func matchKind(target error, kind Kind) bool {
	t, ok := target.(*Error)
	return ok && (t.Kind == "" || t.Kind == kind)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ConnectionError reports a transport failure. Headers carries whatever
// response metadata the gateway returned before failing.
type ConnectionError struct {
	Message    string
	Code       codes.Code
	HTTPStatus string
	Headers    metadata.MD
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("encountered connection error from QOP: details: %s, status: %s", e.Message, e.Code)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return matchKind(target, KindConnection) }

// TimeoutError reports a call that did not finish within its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout reached while running '%s'", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return matchKind(target, KindTimeout) }

// RedirectError tells the caller to restart the handshake against a
// different gateway endpoint.
type RedirectError struct {
	Location string
	Host     string
	Port     int
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirected to %s", e.Location)
}

func (e *RedirectError) Is(target error) bool { return matchKind(target, KindRedirect) }

// ServerError is a semantically invalid request reported by the server.
type ServerError struct {
	Code        ServerErrorCode
	Message     string
	ElementName string
	Correction  *Matrix
}

func (e *ServerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)", e.Code, int(e.Code))
	if e.ElementName != "" {
		fmt.Fprintf(&b, " element %q", e.ElementName)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is matches ErrServer, ErrQop, or another *ServerError with the same code.
func (e *ServerError) Is(target error) bool {
	if t, ok := target.(*ServerError); ok {
		return t.Code == e.Code
	}
	return matchKind(target, KindServer)
}

// KindOf returns the Kind of the first error in err's chain produced by
// this package, or "" for foreign errors.
func KindOf(err error) Kind {
	var qe *Error
	switch {
	case errors.As(err, &qe):
		return qe.Kind
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrRedirect):
		return KindRedirect
	case errors.Is(err, ErrServer):
		return KindServer
	default:
		return ""
	}
}
