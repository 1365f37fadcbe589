package lspipe

import (
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/wagiedev/lspipe/internal/config"
	"github.com/wagiedev/lspipe/internal/message"
	"github.com/wagiedev/lspipe/internal/protocol"
	"github.com/wagiedev/lspipe/internal/settings"
	"github.com/wagiedev/lspipe/internal/transport"
)

// Re-export types from internal packages

// ===== Options and Configuration =====

// Options configures how the language server is launched and connected.
type Options = config.Options

// DefaultChannelCapacity is the default bound of each message queue.
const DefaultChannelCapacity = config.DefaultChannelCapacity

// ===== Messages =====

// ServerMessage is a message exchanged with the language server: a
// *Request (a call when its ID is valid, a notification otherwise) or a
// *Response.
type ServerMessage = message.ServerMessage

// Request is a method invocation. Without a valid ID it is a notification.
type Request = jsonrpc.Request

// Response answers a request by ID with either a result or an error.
type Response = jsonrpc.Response

// ID is a request identifier: an integer, a string, or absent.
type ID = jsonrpc.ID

// RPCError is the error object carried by a Response.
type RPCError = jsonrpc.Error

// Kind identifies the shape of a ServerMessage.
type Kind = message.Kind

const (
	// KindUnknown is returned for nil or foreign message values.
	KindUnknown = message.KindUnknown
	// KindRequest is a method invocation carrying an ID.
	KindRequest = message.KindRequest
	// KindNotification is a method invocation without an ID.
	KindNotification = message.KindNotification
	// KindResponse answers a request.
	KindResponse = message.KindResponse
)

// ExitMethod is the notification delivered after the server's output ends.
const ExitMethod = message.ExitMethod

// JSON-RPC error codes.
const (
	CodeParseError       = message.CodeParseError
	CodeInvalidRequest   = message.CodeInvalidRequest
	CodeMethodNotFound   = message.CodeMethodNotFound
	CodeInvalidParams    = message.CodeInvalidParams
	CodeInternalError    = message.CodeInternalError
	CodeRequestCancelled = protocol.CodeRequestCancelled
)

// KindOf reports the shape of msg.
func KindOf(msg ServerMessage) Kind { return message.KindOf(msg) }

// IsExit reports whether msg is the exit notification.
func IsExit(msg ServerMessage) bool { return message.IsExit(msg) }

// WireError returns the structured error of an error response, or nil for a
// success response.
func WireError(resp *Response) *RPCError { return message.WireError(resp) }

// IntID returns an integer request identifier.
func IntID(n int64) ID { return message.IntID(n) }

// StringID returns a string request identifier.
func StringID(s string) ID { return message.StringID(s) }

// NewRequest builds a request with the given ID. params is marshalled to
// JSON unless it already is a json.RawMessage.
func NewRequest(id ID, method string, params any) (*Request, error) {
	return message.NewRequest(id, method, params)
}

// NewNotification builds a notification.
func NewNotification(method string, params any) (*Request, error) {
	return message.NewNotification(method, params)
}

// NewResponse builds a success response.
func NewResponse(id ID, result any) (*Response, error) {
	return message.NewResponse(id, result)
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, code int64, msg string) *Response {
	return message.NewErrorResponse(id, code, msg)
}

// ===== Transport =====

// Outcome reports how one transport worker ended.
type Outcome = transport.Outcome

// Transport worker names.
const (
	WorkerStderrMonitor = transport.WorkerStderrMonitor
	WorkerReader        = transport.WorkerReader
	WorkerWriter        = transport.WorkerWriter
)

// ===== Protocol =====

// RequestHandler answers a request sent by the server. Returning a
// *ResponseError controls the error code of the reply.
type RequestHandler = protocol.RequestHandler

// ===== Settings =====

// SettingKeyError describes a setting that was skipped.
type SettingKeyError = settings.KeyError

// ParseSettingsTOML reads flat settings from the [settings] table of a TOML
// document.
func ParseSettingsTOML(data []byte) (map[string]any, error) {
	return settings.ParseTOML(data)
}
