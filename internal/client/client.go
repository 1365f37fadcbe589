package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/segmentio/encoding/json"

	"github.com/wagiedev/lspipe/internal/config"
	"github.com/wagiedev/lspipe/internal/errors"
	"github.com/wagiedev/lspipe/internal/protocol"
	"github.com/wagiedev/lspipe/internal/transport"
)

const (
	// shutdownTimeout is the timeout for the shutdown request.
	shutdownTimeout = 5 * time.Second

	// defaultCloseTimeout is how long Close waits for the server to exit
	// after its input ends before killing it.
	defaultCloseTimeout = 5 * time.Second
)

// Client runs one language server conversation: the transport, the
// controller on top of it, and the session lifecycle.
type Client struct {
	log        *slog.Logger
	transport  *transport.Transport
	controller *protocol.Controller
	session    *protocol.Session

	closeTimeout time.Duration

	// Lifecycle management
	mu        sync.Mutex
	connected bool
	closed    bool      // Tracks if Close() has been called
	closeOnce sync.Once // Ensures Close() only runs once
}

// New creates a new client.
//
// The client is not connected after creation. Call Start() to launch a server.
func New() *Client {
	return &Client{closeTimeout: defaultCloseTimeout}
}

// isConnected returns true if the client is connected.
// This method is safe to call from any goroutine.
func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Start launches the language server and begins routing its messages.
//
// ctx bounds the server's lifetime: cancelling it kills the server.
// Returns *errors.ServerNotFoundError if the command cannot be located,
// or *errors.ServerStartError if the process fails to start.
func (c *Client) Start(ctx context.Context, command string, args []string, options *config.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}

	if c.connected {
		return errors.ErrClientAlreadyConnected
	}

	if options == nil {
		options = &config.Options{}
	}

	log := options.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c.log = log.With("component", "client")

	tr, err := transport.Start(ctx, log, command, args, options)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	controller := protocol.NewController(log, tr)
	if err := controller.Start(ctx); err != nil {
		_ = tr.Kill()
		<-tr.Done()

		return fmt.Errorf("start protocol controller: %w", err)
	}

	session := protocol.NewSession(log, controller, options)
	session.RegisterHandlers()

	c.transport = tr
	c.controller = controller
	c.session = session
	c.connected = true

	c.log.Info("Client started", "command", command, "pid", tr.Pid())

	return nil
}

// Initialize performs the initialize handshake with params and applies any
// configured settings. It returns the server's initialize result.
func (c *Client) Initialize(ctx context.Context, params any) (json.RawMessage, error) {
	if !c.isConnected() {
		return nil, errors.ErrClientNotConnected
	}

	return c.session.Initialize(ctx, params)
}

// InitializeResult returns the server's initialize result, or nil before
// Initialize succeeds.
func (c *Client) InitializeResult() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	return c.session.InitializeResult()
}

// Call sends a request and waits for its result.
func (c *Client) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !c.isConnected() {
		return nil, errors.ErrClientNotConnected
	}

	return c.controller.Call(ctx, method, params, timeout)
}

// Notify sends a notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if !c.isConnected() {
		return errors.ErrClientNotConnected
	}

	return c.controller.Notify(ctx, method, params)
}

// ApplySettings sends flat, dotted settings to the server. Settings that
// could not be placed are returned alongside a nil error.
func (c *Client) ApplySettings(ctx context.Context, flat map[string]any) ([]error, error) {
	if !c.isConnected() {
		return nil, errors.ErrClientNotConnected
	}

	return c.session.ApplySettings(ctx, flat)
}

// RegisterHandler answers server requests for method with handler.
func (c *Client) RegisterHandler(method string, handler protocol.RequestHandler) error {
	if !c.isConnected() {
		return errors.ErrClientNotConnected
	}

	c.controller.RegisterHandler(method, handler)

	return nil
}

// ReceiveNotifications returns an iterator over server notifications.
//
// It ends without error once the server has exited. If the stream from the
// server broke instead, the final element carries errors.ErrTransportClosed.
func (c *Client) ReceiveNotifications(ctx context.Context) iter.Seq2[*jsonrpc.Request, error] {
	return func(yield func(*jsonrpc.Request, error) bool) {
		if !c.isConnected() {
			yield(nil, errors.ErrClientNotConnected)

			return
		}

		notifications := c.controller.Notifications()

		for {
			select {
			case note, ok := <-notifications:
				if !ok {
					err := c.controller.FatalError()
					if err != nil && !stderrors.Is(err, errors.ErrServerExited) {
						yield(nil, err)
					}

					return
				}

				if !yield(note, nil) {
					return
				}

			case <-ctx.Done():
				yield(nil, ctx.Err())

				return
			}
		}
	}
}

// Shutdown asks the server to shut down and exit, then ends its input.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.isConnected() {
		return errors.ErrClientNotConnected
	}

	c.log.Info("Shutting down language server")

	return c.session.Shutdown(ctx, shutdownTimeout)
}

// Outcomes waits for the transport to stop and reports how each worker
// ended. Returns nil if the client never started.
func (c *Client) Outcomes() []transport.Outcome {
	c.mu.Lock()
	tr := c.transport
	c.mu.Unlock()

	if tr == nil {
		return nil
	}

	return tr.Outcomes()
}

// Close ends the server's input, waits for it to exit, and stops the
// controller. A server that does not exit in time is killed.
//
// The returned error joins the transport worker failures. After Close(),
// the client cannot be reused - create a new client with New(). This method
// is safe to call multiple times.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		wasConnected := c.connected
		c.connected = false
		c.mu.Unlock()

		if !wasConnected {
			return
		}

		c.log.Info("Closing client")

		c.controller.EndInput()

		select {
		case <-c.transport.Done():
		case <-time.After(c.closeTimeout):
			c.log.Warn("Language server did not exit in time, killing it", "timeout", c.closeTimeout)

			if err := c.transport.Kill(); err != nil {
				c.log.Debug("Kill failed", "error", err)
			}

			<-c.transport.Done()
		}

		c.controller.Stop()

		closeErr = c.transport.Wait()

		c.log.Info("Client closed")
	})

	return closeErr
}
