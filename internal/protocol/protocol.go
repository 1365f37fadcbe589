package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"

	"github.com/wagiedev/lspipe/internal/errors"
	"github.com/wagiedev/lspipe/internal/message"
)

// Transport defines the channels the controller needs from a transport.
//
// This interface is satisfied by *transport.Transport but allows for testing
// with mock transports.
type Transport interface {
	Outbound() chan<- message.ServerMessage
	Inbound() <-chan message.ServerMessage
	Done() <-chan struct{}
}

// Controller drives the client side of a JSON-RPC conversation with a
// language server over a Transport.
//
// The Controller handles:
//   - Sending requests with unique IDs and correlating their responses
//   - Request timeout enforcement and $/cancelRequest on abandon
//   - Handler registration for requests from the server
//   - Forwarding server notifications via the Notifications channel
//   - Failing pending requests when the server exits or the transport closes
//
// The Controller must be started with Start() before use and owns the
// transport's inbound channel from then on.
type Controller struct {
	log       *slog.Logger
	transport Transport

	// Request tracking
	pendingMu sync.RWMutex
	pending   map[jsonrpc.ID]*pendingRequest

	// In-flight server requests, for $/cancelRequest
	inFlightMu sync.RWMutex
	inFlight   map[jsonrpc.ID]*inFlightOperation

	// Handler registry for incoming requests
	handlersMu sync.RWMutex
	handlers   map[string]RequestHandler

	// Server notifications forwarded to consumers
	notifications chan *jsonrpc.Request

	// Outbound channel ownership; closed by EndInput
	inputMu     sync.RWMutex
	inputClosed bool

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewController creates a new protocol controller.
func NewController(log *slog.Logger, transport Transport) *Controller {
	return &Controller{
		log:           log.With("component", "protocol"),
		transport:     transport,
		pending:       make(map[jsonrpc.ID]*pendingRequest, 10),
		inFlight:      make(map[jsonrpc.ID]*inFlightOperation, 10),
		handlers:      make(map[string]RequestHandler, 10),
		notifications: make(chan *jsonrpc.Request, 100),
		done:          make(chan struct{}),
	}
}

// closeDone safely closes the done channel exactly once.
func (c *Controller) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SetFatalError stores a fatal error and broadcasts to all waiters by closing done.
func (c *Controller) SetFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the fatal error if one occurred. It is
// errors.ErrServerExited after the exit notification and
// errors.ErrTransportClosed when the inbound channel closed without one.
func (c *Controller) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// Done returns a channel that is closed when the controller stops.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start begins reading messages from the transport and routing them.
//
// The read loop stops when ctx is cancelled, Stop is called, or the inbound
// channel closes.
func (c *Controller) Start(ctx context.Context) error {
	c.log.Debug("Starting protocol controller")

	c.wg.Go(func() { c.readLoop(ctx) })

	c.log.Info("Protocol controller started")

	return nil
}

// Stop shuts the controller down.
//
// Pending calls fail with errors.ErrControllerStopped and in-flight handlers
// are cancelled. Stop does not close the outbound channel; use EndInput for
// that. It's safe to call Stop multiple times.
func (c *Controller) Stop() {
	c.log.Debug("Stopping protocol controller")

	c.closeDone()

	c.CancelAllInFlight()
	c.wg.Wait()
	c.log.Info("Protocol controller stopped")
}

// Notifications returns the notifications received from the server, except
// exit and $/cancelRequest which the controller consumes itself.
//
// The channel is closed when the read loop stops.
func (c *Controller) Notifications() <-chan *jsonrpc.Request {
	return c.notifications
}

// Call sends a request and waits for its response.
//
// A fresh ULID string is used as the request ID. The wait ends when the
// response arrives, timeout expires (a non-positive timeout never expires),
// ctx is cancelled, or the controller stops. An abandoned request is
// announced to the server with $/cancelRequest. An error response is
// returned as *errors.ResponseError.
func (c *Controller) Call(
	ctx context.Context,
	method string,
	params any,
	timeout time.Duration,
) (json.RawMessage, error) {
	id := message.StringID(c.generateRequestID())

	req, err := message.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	responseChan := make(chan *jsonrpc.Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = &pendingRequest{method: method, response: responseChan, sent: time.Now()}
	c.pendingMu.Unlock()

	// Clean up pending request on every exit path
	defer c.forget(id)

	c.log.Debug("Sending request", "id", id.Raw(), "method", method)

	if err := c.send(ctx, req); err != nil {
		c.log.Warn("Failed to send request", "method", method, "error", err)

		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	var expired <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.C
	}

	select {
	case resp := <-responseChan:
		return c.result(method, resp)

	case <-c.done:
		// A response routed just before the server exited still counts
		select {
		case resp := <-responseChan:
			return c.result(method, resp)
		default:
		}

		err := c.stoppedError()
		c.log.Debug("Controller stopped during request", "id", id.Raw(), "method", method, "error", err)

		return nil, fmt.Errorf("%s: %w", method, err)

	case <-expired:
		c.log.Warn("Request timed out", "id", id.Raw(), "method", method, "timeout", timeout)
		c.cancelRemote(id)

		return nil, fmt.Errorf("%s: %w after %s", method, errors.ErrRequestTimeout, timeout)

	case <-ctx.Done():
		c.log.Debug("Request cancelled", "id", id.Raw(), "method", method)
		c.cancelRemote(id)

		return nil, ctx.Err()
	}
}

func (c *Controller) result(method string, resp *jsonrpc.Response) (json.RawMessage, error) {
	if wire := message.WireError(resp); wire != nil {
		c.log.Warn("Request returned error", "method", method, "code", wire.Code, "error", wire.Message)

		return nil, &errors.ResponseError{
			Method:  method,
			Code:    wire.Code,
			Message: wire.Message,
			Data:    wire.Data,
		}
	}

	return resp.Result, nil
}

func (c *Controller) forget(id jsonrpc.ID) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Notify sends a notification.
func (c *Controller) Notify(ctx context.Context, method string, params any) error {
	note, err := message.NewNotification(method, params)
	if err != nil {
		return err
	}

	c.log.Debug("Sending notification", "method", method)

	if err := c.send(ctx, note); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	return nil
}

// EndInput closes the outbound channel, which closes the server's stdin.
// Later sends fail with errors.ErrInputClosed. Calling it again is a no-op.
func (c *Controller) EndInput() {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	if c.inputClosed {
		return
	}

	c.inputClosed = true
	close(c.transport.Outbound())

	c.log.Debug("Outbound channel closed")
}

// send queues msg on the outbound channel.
func (c *Controller) send(ctx context.Context, msg message.ServerMessage) error {
	c.inputMu.RLock()
	defer c.inputMu.RUnlock()

	if c.inputClosed {
		return errors.ErrInputClosed
	}

	select {
	case c.transport.Outbound() <- msg:
		return nil
	case <-c.transport.Done():
		return errors.ErrTransportClosed
	case <-c.done:
		return c.stoppedError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Controller) stoppedError() error {
	if err := c.FatalError(); err != nil {
		return err
	}

	return errors.ErrControllerStopped
}

// cancelRemote tells the server an outstanding request was abandoned. It
// never blocks: a full outbound channel drops the notification.
func (c *Controller) cancelRemote(id jsonrpc.ID) {
	note, err := message.NewNotification(CancelRequestMethod, map[string]any{"id": id.Raw()})
	if err != nil {
		return
	}

	c.inputMu.RLock()
	defer c.inputMu.RUnlock()

	if c.inputClosed {
		return
	}

	select {
	case c.transport.Outbound() <- note:
	default:
		c.log.Debug("Outbound channel full, cancel notification dropped", "id", id.Raw())
	}
}

// RegisterHandler registers a handler for requests from the server.
//
// Only one handler can be registered per method. Registering a handler for
// the same method twice will override the previous handler.
func (c *Controller) RegisterHandler(method string, handler RequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.log.Debug("Registering request handler", "method", method)
	c.handlers[method] = handler
}

// readLoop routes inbound messages until the inbound channel closes or the
// controller stops.
func (c *Controller) readLoop(ctx context.Context) {
	inbound := c.transport.Inbound()
	closed := false

	defer func() {
		close(c.notifications)

		// The transport cannot finish while its reader is blocked on a full
		// inbound channel.
		if !closed {
			go discard(inbound)
		}

		c.log.Debug("Protocol read loop stopped")
	}()

	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				closed = true

				c.log.Debug("Inbound channel closed")
				c.SetFatalError(errors.ErrTransportClosed)

				return
			}

			c.handleMessage(ctx, msg)

		case <-c.done:
			c.log.Debug("Protocol controller stop signal received")

			return

		case <-ctx.Done():
			c.log.Debug("Context cancelled in protocol read loop")

			return
		}
	}
}

func discard(inbound <-chan message.ServerMessage) {
	for range inbound { //nolint:revive // draining
	}
}

// handleMessage routes a message based on its kind.
func (c *Controller) handleMessage(ctx context.Context, msg message.ServerMessage) {
	switch m := msg.(type) {
	case *jsonrpc.Response:
		c.handleResponse(m)

	case *jsonrpc.Request:
		if m.ID.IsValid() {
			c.handleRequest(ctx, m)

			return
		}

		c.handleNotification(ctx, m)
	}
}

// handleResponse routes a response to the waiting call.
func (c *Controller) handleResponse(resp *jsonrpc.Response) {
	// Find and claim pending request atomically
	c.pendingMu.Lock()

	pending, exists := c.pending[resp.ID]
	if exists {
		delete(c.pending, resp.ID)
	}

	c.pendingMu.Unlock()

	if !exists {
		c.log.Warn("No pending request for response", "id", resp.ID.Raw())

		return
	}

	c.log.Debug("Received response",
		"id", resp.ID.Raw(),
		"method", pending.method,
		"elapsed", time.Since(pending.sent),
	)

	// Send to waiting goroutine (we own it now, blocking is safe since channel is buffered)
	pending.response <- resp
}

func (c *Controller) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch note.Method {
	case message.ExitMethod:
		c.log.Info("Language server exited")
		c.SetFatalError(errors.ErrServerExited)

	case CancelRequestMethod:
		c.handleCancelRequest(ctx, note)

	default:
		select {
		case c.notifications <- note:
		case <-c.done:
		case <-ctx.Done():
		}
	}
}

// handleRequest invokes the registered handler for a server request.
func (c *Controller) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	c.log.Debug("Received request from server", "id", req.ID.Raw(), "method", req.Method)

	c.handlersMu.RLock()
	handler, exists := c.handlers[req.Method]
	c.handlersMu.RUnlock()

	if !exists {
		c.log.Warn("No handler registered for server request", "method", req.Method)
		c.sendErrorResponse(ctx, req.ID, message.CodeMethodNotFound, "method not found: "+req.Method)

		return
	}

	opCtx, cancel := context.WithCancel(ctx)

	op := &inFlightOperation{
		id:        req.ID,
		method:    req.Method,
		cancel:    cancel,
		startTime: time.Now(),
	}

	c.inFlightMu.Lock()
	c.inFlight[req.ID] = op
	c.inFlightMu.Unlock()

	// Run handler in goroutine so the read loop can process cancel requests
	c.wg.Go(func() {
		defer func() {
			c.inFlightMu.Lock()
			defer c.inFlightMu.Unlock()

			op.completed = true

			delete(c.inFlight, req.ID)

			cancel()
		}()

		result, err := handler(opCtx, req)

		if stderrors.Is(opCtx.Err(), context.Canceled) {
			c.log.Debug("Handler was cancelled", "id", req.ID.Raw(), "method", req.Method)
			c.sendErrorResponse(ctx, req.ID, CodeRequestCancelled, "request cancelled")

			return
		}

		if err != nil {
			c.log.Warn("Handler returned error", "id", req.ID.Raw(), "method", req.Method, "error", err)

			if respErr, ok := stderrors.AsType[*errors.ResponseError](err); ok {
				c.sendErrorResponse(ctx, req.ID, respErr.Code, respErr.Message)
			} else {
				c.sendErrorResponse(ctx, req.ID, message.CodeInternalError, err.Error())
			}

			return
		}

		c.sendSuccessResponse(ctx, req.ID, result)
	})
}

func (c *Controller) sendSuccessResponse(ctx context.Context, id jsonrpc.ID, result any) {
	resp, err := message.NewResponse(id, result)
	if err != nil {
		c.log.Error("Failed to marshal response", "id", id.Raw(), "error", err)
		c.sendErrorResponse(ctx, id, message.CodeInternalError, err.Error())

		return
	}

	if err := c.send(ctx, resp); err != nil {
		c.log.Error("Failed to send response", "id", id.Raw(), "error", err)
	}
}

func (c *Controller) sendErrorResponse(ctx context.Context, id jsonrpc.ID, code int64, msg string) {
	if err := c.send(ctx, message.NewErrorResponse(id, code, msg)); err != nil {
		// Don't log error if the conversation is over (expected during shutdown)
		if ctx.Err() != nil || c.stopped() {
			c.log.Debug("Could not send error response during shutdown", "error", err)

			return
		}

		c.log.Error("Failed to send error response", "error", err)
	}
}

// generateRequestID creates a unique request ID using ULID.
func (c *Controller) generateRequestID() string {
	return ulid.Make().String()
}

// handleCancelRequest cancels the in-flight handler named by a
// $/cancelRequest notification. The handler's response reports the
// cancellation.
func (c *Controller) handleCancelRequest(_ context.Context, note *jsonrpc.Request) {
	idField := gjson.GetBytes(note.Params, "id")

	var id jsonrpc.ID

	switch idField.Type {
	case gjson.String:
		id = message.StringID(idField.Str)
	case gjson.Number:
		id = message.IntID(idField.Int())
	default:
		c.log.Warn("Cancel request without a valid id", "params", string(note.Params))

		return
	}

	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	op, exists := c.inFlight[id]
	if !exists {
		c.log.Debug("Cancel request for unknown operation", "id", id.Raw())

		return
	}

	if !op.completed {
		op.cancel()
	}

	c.log.Debug("Cancel request processed",
		"id", id.Raw(),
		"method", op.method,
		"already_completed", op.completed,
		"running_for", time.Since(op.startTime),
	)
}

// CancelAllInFlight cancels all in-flight handlers.
// This is called during Stop() to ensure clean shutdown.
func (c *Controller) CancelAllInFlight() {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	for _, op := range c.inFlight {
		if !op.completed {
			op.cancel()
		}
	}
}
