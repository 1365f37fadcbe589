package protocol

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

const (
	// CancelRequestMethod is the notification either side sends to abandon
	// an outstanding request.
	//
	// Wire format:
	//
	//	{"jsonrpc": "2.0", "method": "$/cancelRequest", "params": {"id": 42}}
	CancelRequestMethod = "$/cancelRequest"

	// CodeRequestCancelled is the error code of a response to a request that
	// was cancelled before it completed.
	CodeRequestCancelled int64 = -32800
)

// RequestHandler handles a request the language server sends to the client,
// such as workspace/configuration.
//
// The returned result is marshalled into the response. Returning a
// *errors.ResponseError sends its code and message; any other error is sent
// as an internal error.
type RequestHandler func(ctx context.Context, req *jsonrpc.Request) (any, error)

// pendingRequest tracks an outgoing request awaiting its response.
type pendingRequest struct {
	method   string
	response chan *jsonrpc.Response
	sent     time.Time
}

// inFlightOperation tracks a server request being handled.
type inFlightOperation struct {
	id        jsonrpc.ID
	method    string
	cancel    context.CancelFunc
	startTime time.Time
	completed bool
}
