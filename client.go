package lspipe

import (
	"context"
	"encoding/json"
	"iter"
	"time"
)

// Client runs a conversation with one language server on top of a
// Transport: request IDs and response routing, the initialize and shutdown
// handshakes, server notifications, and settings.
//
// Lifecycle: Clients are single-use. After Close(), create a new client with NewClient().
//
// Example usage:
//
//	client := NewClient()
//	defer client.Close()
//
//	err := client.Start(ctx, "gopls", nil,
//	    WithLogger(slog.Default()),
//	    WithSettings(map[string]any{"gopls.staticcheck": true}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := client.Initialize(ctx, initializeParams); err != nil {
//	    log.Fatal(err)
//	}
//
//	symbols, err := client.Call(ctx, "workspace/symbol", map[string]any{"query": "Client"}, 10*time.Second)
//
//	err = client.Shutdown(ctx)
type Client interface {
	// Start launches the language server and begins routing its messages.
	// Must be called before any other methods. ctx bounds the server's lifetime.
	// Returns ServerNotFoundError if the command is not found, ServerStartError on failure.
	Start(ctx context.Context, command string, args []string, opts ...Option) error

	// Initialize sends the initialize request with params, then the
	// initialized notification, then any configured settings. It returns
	// the server's result.
	Initialize(ctx context.Context, params any) (json.RawMessage, error)

	// InitializeResult returns the server's initialize result, or nil.
	InitializeResult() json.RawMessage

	// Call sends a request and waits for its result. A non-positive timeout
	// never expires. An error response is returned as *ResponseError.
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)

	// Notify sends a notification.
	Notify(ctx context.Context, method string, params any) error

	// RegisterHandler answers server requests for method with handler.
	// Requests without a handler get a method-not-found error.
	RegisterHandler(method string, handler RequestHandler) error

	// ApplySettings sends flat, dotted settings. Settings that could not be
	// placed are returned as *SettingKeyError values alongside a nil error.
	ApplySettings(ctx context.Context, settings map[string]any) ([]error, error)

	// ReceiveNotifications returns an iterator over server notifications.
	// It ends without error once the server exits, and with
	// ErrTransportClosed if the server's output broke.
	ReceiveNotifications(ctx context.Context) iter.Seq2[*Request, error]

	// Shutdown sends the shutdown request and exit notification, then ends
	// the server's input.
	Shutdown(ctx context.Context) error

	// Outcomes waits for the transport to stop and reports how each worker ended.
	Outcomes() []Outcome

	// Close ends the server's input, waits for it to exit (killing it if it
	// does not), and releases resources. It returns the transport's failures.
	Close() error
}

// NewClient creates a new Client.
func NewClient() Client {
	return newClientImpl()
}
