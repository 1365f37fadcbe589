package errors

import (
	"errors"
	"fmt"
)

// TransportError is the base interface for all transport errors.
type TransportError interface {
	error
	IsTransportError() bool
}

// Compile-time verification that all error types implement TransportError.
var (
	_ TransportError = (*ServerNotFoundError)(nil)
	_ TransportError = (*ServerStartError)(nil)
	_ TransportError = (*FramingError)(nil)
	_ TransportError = (*WriterError)(nil)
	_ TransportError = (*WorkerPanicError)(nil)
	_ TransportError = (*ResponseError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrTransportClosed indicates the inbound stream closed without an exit notification.
	ErrTransportClosed = errors.New("transport closed")

	// ErrServerExited indicates the language server process has exited.
	ErrServerExited = errors.New("language server exited")

	// ErrInputClosed indicates the outbound channel was already closed by EndInput.
	ErrInputClosed = errors.New("input closed")

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrControllerStopped indicates the controller has stopped.
	ErrControllerStopped = errors.New("controller stopped")

	// ErrClientNotConnected indicates the client has not been started.
	ErrClientNotConnected = errors.New("client not connected")

	// ErrClientAlreadyConnected indicates Start was called on a running client.
	ErrClientAlreadyConnected = errors.New("client already connected")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed")
)

// ServerNotFoundError indicates the language server binary was not found.
type ServerNotFoundError struct {
	Command       string
	SearchedPaths []string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("language server %q not found in: %v", e.Command, e.SearchedPaths)
}

// IsTransportError implements TransportError.
func (e *ServerNotFoundError) IsTransportError() bool { return true }

// ServerStartError indicates the language server process could not be spawned.
// No transport is produced when this is returned.
type ServerStartError struct {
	Command string
	Err     error
}

func (e *ServerStartError) Error() string {
	return fmt.Sprintf("failed to start language server %q: %v", e.Command, e.Err)
}

func (e *ServerStartError) Unwrap() error {
	return e.Err
}

// IsTransportError implements TransportError.
func (e *ServerStartError) IsTransportError() bool { return true }

// FramingErrorKind classifies a failure to decode a frame.
type FramingErrorKind int

const (
	// MalformedHeader means a header line did not split into name and value on ": ".
	MalformedHeader FramingErrorKind = iota + 1
	// MissingContentLength means the header block had no Content-Length.
	MissingContentLength
	// InvalidContentLength means Content-Length was not a non-negative integer.
	InvalidContentLength
	// Truncated means the stream ended inside a header block or a body.
	Truncated
	// InvalidEncoding means the body was not valid UTF-8.
	InvalidEncoding
	// UnrecognizedMessage means the body was neither a response nor a call.
	UnrecognizedMessage
)

// String returns a human-readable kind name.
func (k FramingErrorKind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed header"
	case MissingContentLength:
		return "missing Content-Length"
	case InvalidContentLength:
		return "invalid Content-Length"
	case Truncated:
		return "truncated frame"
	case InvalidEncoding:
		return "invalid encoding"
	case UnrecognizedMessage:
		return "unrecognized message"
	default:
		return "unknown"
	}
}

// FramingError indicates the inbound byte stream could not be decoded.
// It is fatal to the reader: a length-prefixed stream is never resynchronized.
type FramingError struct {
	Kind   FramingErrorKind
	Detail string
	Err    error
}

func (e *FramingError) Error() string {
	msg := "framing error: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a FramingError of the same kind.
func (e *FramingError) Is(target error) bool {
	t, ok := target.(*FramingError)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// IsTransportError implements TransportError.
func (e *FramingError) IsTransportError() bool { return true }

// WriterError indicates the writer could not encode or deliver a message.
type WriterError struct {
	// Op is "encode" or "write".
	Op  string
	Err error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("writer %s failed: %v", e.Op, e.Err)
}

func (e *WriterError) Unwrap() error {
	return e.Err
}

// IsTransportError implements TransportError.
func (e *WriterError) IsTransportError() bool { return true }

// WorkerPanicError records a panic recovered from a transport worker.
type WorkerPanicError struct {
	Worker string
	Value  any
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("%s worker panicked: %v", e.Worker, e.Value)
}

// IsTransportError implements TransportError.
func (e *WorkerPanicError) IsTransportError() bool { return true }

// ResponseError is a JSON-RPC error object returned by the language server.
type ResponseError struct {
	Method  string
	Code    int64
	Message string
	Data    []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: server returned error %d: %s", e.Method, e.Code, e.Message)
}

// IsTransportError implements TransportError.
func (e *ResponseError) IsTransportError() bool { return true }
