// Package message provides the JSON-RPC message model exchanged with a language server.
package message

import (
	stderrors "errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/sjson"
)

// ExitMethod is the method of the notification the transport synthesizes
// once the language server process has been reaped.
const ExitMethod = "exit"

// JSON-RPC 2.0 error codes, typed to match jsonrpc.Error.Code.
const (
	CodeParseError     int64 = jsonrpc.CodeParseError
	CodeInvalidRequest int64 = jsonrpc.CodeInvalidRequest
	CodeMethodNotFound int64 = jsonrpc.CodeMethodNotFound
	CodeInvalidParams  int64 = jsonrpc.CodeInvalidParams
	CodeInternalError  int64 = jsonrpc.CodeInternalError
)

// MaxIntID is the largest integer identifier magnitude that survives the
// float64 representation jsonrpc.ID uses for numbers.
const MaxIntID int64 = 1 << 53

// ServerMessage is a message exchanged with the language server.
//
// It is the closed set of *jsonrpc.Request (a call when its ID is valid, a
// notification otherwise) and *jsonrpc.Response.
type ServerMessage = jsonrpc.Message

// Kind identifies the shape of a ServerMessage.
type Kind int

const (
	// KindUnknown is returned for nil or foreign message values.
	KindUnknown Kind = iota
	// KindRequest is a method invocation carrying an identifier.
	KindRequest
	// KindNotification is a method invocation without an identifier.
	KindNotification
	// KindResponse answers a request by identifier.
	KindResponse
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// KindOf reports the shape of msg.
func KindOf(msg ServerMessage) Kind {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		if m == nil {
			return KindUnknown
		}

		if m.ID.IsValid() {
			return KindRequest
		}

		return KindNotification
	case *jsonrpc.Response:
		if m == nil {
			return KindUnknown
		}

		return KindResponse
	default:
		return KindUnknown
	}
}

// IntID returns an integer request identifier. Values beyond ±MaxIntID lose
// precision.
func IntID(n int64) jsonrpc.ID {
	id, _ := jsonrpc.MakeID(float64(n))

	return id
}

// StringID returns a string request identifier.
func StringID(s string) jsonrpc.ID {
	id, _ := jsonrpc.MakeID(s)

	return id
}

// NewRequest builds a call with the given identifier.
func NewRequest(id jsonrpc.ID, method string, params any) (*jsonrpc.Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}

	return &jsonrpc.Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification.
func NewNotification(method string, params any) (*jsonrpc.Request, error) {
	return NewRequest(jsonrpc.ID{}, method, params)
}

// NewResponse builds a success response. A nil result is sent as JSON null.
func NewResponse(id jsonrpc.ID, result any) (*jsonrpc.Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	return &jsonrpc.Response{ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id jsonrpc.ID, code int64, msg string) *jsonrpc.Response {
	return &jsonrpc.Response{
		ID:    id,
		Error: &jsonrpc.Error{Code: code, Message: msg},
	}
}

// WireError returns the structured error carried by resp, or nil for a
// success response. An error that is not a *jsonrpc.Error is reported as an
// internal error with its text as the message.
func WireError(resp *jsonrpc.Response) *jsonrpc.Error {
	if resp == nil || resp.Error == nil {
		return nil
	}

	if wire, ok := stderrors.AsType[*jsonrpc.Error](resp.Error); ok {
		return wire
	}

	return &jsonrpc.Error{Code: CodeInternalError, Message: resp.Error.Error()}
}

// NewExitNotification builds the synthetic exit notification.
func NewExitNotification() *jsonrpc.Request {
	return &jsonrpc.Request{Method: ExitMethod}
}

// IsExit reports whether msg is an exit notification.
func IsExit(msg ServerMessage) bool {
	req, ok := msg.(*jsonrpc.Request)

	return ok && req != nil && !req.ID.IsValid() && req.Method == ExitMethod
}

// Encode serializes msg to its JSON-RPC 2.0 wire representation.
//
// A response with neither result nor error is encoded with a null result so
// that the peer still sees a response shape. An error response without a
// valid identifier is encoded with "id": null.
func Encode(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		if m == nil {
			return nil, fmt.Errorf("nil request")
		}

		if m.Method == "" {
			return nil, fmt.Errorf("request has no method")
		}
	case *jsonrpc.Response:
		if m == nil {
			return nil, fmt.Errorf("nil response")
		}

		if !m.ID.IsValid() && m.Error == nil {
			return nil, fmt.Errorf("success response has no id")
		}

		if m.Result == nil && m.Error == nil {
			filled := *m
			filled.Result = json.RawMessage("null")
			msg = &filled
		}
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}

	// jsonrpc omits a zero id entirely.
	if resp, ok := msg.(*jsonrpc.Response); ok && !resp.ID.IsValid() {
		data, err = sjson.SetRawBytes(data, "id", []byte("null"))
		if err != nil {
			return nil, fmt.Errorf("encode null id: %w", err)
		}
	}

	return data, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}

	return json.Marshal(params)
}
