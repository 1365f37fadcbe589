package lspipe

import "github.com/wagiedev/lspipe/internal/errors"

// Re-export error types from internal package

// TransportError is the base interface for all errors of this package.
type TransportError = errors.TransportError

// ServerNotFoundError indicates the language server binary was not found.
type ServerNotFoundError = errors.ServerNotFoundError

// ServerStartError indicates the language server process could not be spawned.
type ServerStartError = errors.ServerStartError

// FramingError indicates the server's output could not be decoded.
type FramingError = errors.FramingError

// FramingErrorKind classifies a FramingError.
type FramingErrorKind = errors.FramingErrorKind

// Framing error kinds.
const (
	MalformedHeader      = errors.MalformedHeader
	MissingContentLength = errors.MissingContentLength
	InvalidContentLength = errors.InvalidContentLength
	Truncated            = errors.Truncated
	InvalidEncoding      = errors.InvalidEncoding
	UnrecognizedMessage  = errors.UnrecognizedMessage
)

// WriterError indicates a message could not be encoded or written.
type WriterError = errors.WriterError

// WorkerPanicError records a panic recovered from a transport worker.
type WorkerPanicError = errors.WorkerPanicError

// ResponseError is a JSON-RPC error returned by the server for a request.
type ResponseError = errors.ResponseError

// Re-export sentinel errors from internal package.
var (
	// ErrTransportClosed indicates the server's output ended without an exit notification.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrServerExited indicates the language server has exited.
	ErrServerExited = errors.ErrServerExited

	// ErrInputClosed indicates the server's input was already ended.
	ErrInputClosed = errors.ErrInputClosed

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrControllerStopped indicates the client stopped routing messages.
	ErrControllerStopped = errors.ErrControllerStopped

	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.ErrClientNotConnected

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.ErrClientAlreadyConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed
)
