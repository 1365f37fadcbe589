package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/lspipe/internal/errors"
	"github.com/wagiedev/lspipe/internal/message"
)

// mockTransport implements Transport for testing. The test plays the
// server: it reads what the controller sent from outbound and injects
// server messages into inbound.
type mockTransport struct {
	outbound chan message.ServerMessage
	inbound  chan message.ServerMessage
	done     chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		outbound: make(chan message.ServerMessage, 16),
		inbound:  make(chan message.ServerMessage, 16),
		done:     make(chan struct{}),
	}
}

func (m *mockTransport) Outbound() chan<- message.ServerMessage { return m.outbound }

func (m *mockTransport) Inbound() <-chan message.ServerMessage { return m.inbound }

func (m *mockTransport) Done() <-chan struct{} { return m.done }

func (m *mockTransport) sendToController(msg message.ServerMessage) {
	m.inbound <- msg
}

// next returns the next message the controller sent.
func (m *mockTransport) next(t *testing.T) message.ServerMessage {
	t.Helper()

	select {
	case msg := <-m.outbound:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("controller sent nothing")

		return nil
	}
}

func (m *mockTransport) nextRequest(t *testing.T) *jsonrpc.Request {
	t.Helper()

	req, ok := m.next(t).(*jsonrpc.Request)
	require.True(t, ok)

	return req
}

func (m *mockTransport) nextResponse(t *testing.T) *jsonrpc.Response {
	t.Helper()

	resp, ok := m.next(t).(*jsonrpc.Response)
	require.True(t, ok)

	return resp
}

// requireErrorCode asserts that resp is an error response with the given code.
func requireErrorCode(t *testing.T, resp *jsonrpc.Response, code int64) {
	t.Helper()

	wire := message.WireError(resp)
	require.NotNil(t, wire, "expected an error response")
	require.Equal(t, code, wire.Code)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startController(t *testing.T) (*Controller, *mockTransport) {
	t.Helper()

	transport := newMockTransport()
	controller := NewController(discardLogger(), transport)

	require.NoError(t, controller.Start(context.Background()))
	t.Cleanup(controller.Stop)

	return controller, transport
}

type callResult struct {
	result json.RawMessage
	err    error
}

func callAsync(c *Controller, method string, params any, timeout time.Duration) <-chan callResult {
	ch := make(chan callResult, 1)

	go func() {
		result, err := c.Call(context.Background(), method, params, timeout)
		ch <- callResult{result: result, err: err}
	}()

	return ch
}

func awaitCall(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()

	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("call never returned")

		return callResult{}
	}
}

func TestController_CallRoutesResponse(t *testing.T) {
	controller, transport := startController(t)

	pending := callAsync(controller, "textDocument/hover", map[string]int{"line": 3}, time.Second)

	req := transport.nextRequest(t)
	require.Equal(t, "textDocument/hover", req.Method)
	require.True(t, req.ID.IsValid())
	require.JSONEq(t, `{"line":3}`, string(req.Params))

	_, isString := req.ID.Raw().(string)
	require.True(t, isString, "request ids are ULID strings")

	resp, err := message.NewResponse(req.ID, map[string]string{"contents": "doc"})
	require.NoError(t, err)

	transport.sendToController(resp)

	res := awaitCall(t, pending)
	require.NoError(t, res.err)
	require.JSONEq(t, `{"contents":"doc"}`, string(res.result))
}

func TestController_CallUniqueIDs(t *testing.T) {
	controller, transport := startController(t)

	first := callAsync(controller, "a", nil, time.Second)
	second := callAsync(controller, "b", nil, time.Second)

	reqA := transport.nextRequest(t)
	reqB := transport.nextRequest(t)
	require.NotEqual(t, reqA.ID, reqB.ID)

	// Answer out of order.
	for _, req := range []*jsonrpc.Request{reqB, reqA} {
		resp, err := message.NewResponse(req.ID, req.Method)
		require.NoError(t, err)

		transport.sendToController(resp)
	}

	resA := awaitCall(t, first)
	resB := awaitCall(t, second)

	require.NoError(t, resA.err)
	require.NoError(t, resB.err)

	// Each call got the response to its own request, whatever the order.
	var methodA, methodB string
	require.NoError(t, json.Unmarshal(resA.result, &methodA))
	require.NoError(t, json.Unmarshal(resB.result, &methodB))
	require.Equal(t, "a", methodA)
	require.Equal(t, "b", methodB)
}

func TestController_CallErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int64
		wantMsg  string
		wantData string
	}{
		{
			name:     "wire error",
			err:      &jsonrpc.Error{Code: message.CodeInvalidParams, Message: "bad params", Data: json.RawMessage(`{"arg":0}`)},
			wantCode: message.CodeInvalidParams,
			wantMsg:  "bad params",
			wantData: `{"arg":0}`,
		},
		{
			name:     "plain error",
			err:      stderrors.New("handler blew up"),
			wantCode: message.CodeInternalError,
			wantMsg:  "handler blew up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller, transport := startController(t)

			pending := callAsync(controller, "fail", nil, time.Second)
			req := transport.nextRequest(t)

			transport.sendToController(&jsonrpc.Response{ID: req.ID, Error: tt.err})

			res := awaitCall(t, pending)

			respErr, ok := stderrors.AsType[*errors.ResponseError](res.err)
			require.True(t, ok, "got %v", res.err)
			require.Equal(t, "fail", respErr.Method)
			require.Equal(t, tt.wantCode, respErr.Code)
			require.Equal(t, tt.wantMsg, respErr.Message)

			if tt.wantData != "" {
				require.JSONEq(t, tt.wantData, string(respErr.Data))
			} else {
				require.Empty(t, respErr.Data)
			}
		})
	}
}

func TestController_CallTimeoutSendsCancel(t *testing.T) {
	controller, transport := startController(t)

	pending := callAsync(controller, "slow", nil, 20*time.Millisecond)
	req := transport.nextRequest(t)

	res := awaitCall(t, pending)
	require.ErrorIs(t, res.err, errors.ErrRequestTimeout)

	cancel := transport.nextRequest(t)
	require.Equal(t, CancelRequestMethod, cancel.Method)
	require.False(t, cancel.ID.IsValid())

	raw, err := json.Marshal(req.ID.Raw())
	require.NoError(t, err)
	require.JSONEq(t, `{"id":`+string(raw)+`}`, string(cancel.Params))

	// A late response is dropped without disturbing the controller.
	late, err := message.NewResponse(req.ID, nil)
	require.NoError(t, err)

	transport.sendToController(late)

	controller.pendingMu.RLock()
	require.Empty(t, controller.pending)
	controller.pendingMu.RUnlock()
}

func TestController_CallContextCancel(t *testing.T) {
	controller, transport := startController(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		_, err := controller.Call(ctx, "slow", nil, 0)
		errCh <- err
	}()

	transport.nextRequest(t)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("call ignored context cancellation")
	}

	require.Equal(t, CancelRequestMethod, transport.nextRequest(t).Method)
}

func TestController_ExitFailsPendingCalls(t *testing.T) {
	controller, transport := startController(t)

	pending := callAsync(controller, "hover", nil, 0)
	transport.nextRequest(t)

	transport.sendToController(message.NewExitNotification())
	close(transport.inbound)

	res := awaitCall(t, pending)
	require.ErrorIs(t, res.err, errors.ErrServerExited)
	require.ErrorIs(t, controller.FatalError(), errors.ErrServerExited)

	select {
	case <-controller.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop after exit")
	}

	// Exit is consumed, not forwarded.
	for note := range controller.Notifications() {
		t.Fatalf("unexpected notification %q", note.Method)
	}
}

func TestController_ResponseBeforeExitStillDelivered(t *testing.T) {
	controller, transport := startController(t)

	pending := callAsync(controller, "shutdown", nil, 0)
	req := transport.nextRequest(t)

	resp, err := message.NewResponse(req.ID, nil)
	require.NoError(t, err)

	transport.sendToController(resp)
	transport.sendToController(message.NewExitNotification())

	res := awaitCall(t, pending)
	require.NoError(t, res.err)
	require.JSONEq(t, `null`, string(res.result))
}

func TestController_InboundClosedWithoutExit(t *testing.T) {
	controller, transport := startController(t)

	pending := callAsync(controller, "hover", nil, 0)
	transport.nextRequest(t)

	close(transport.inbound)

	res := awaitCall(t, pending)
	require.ErrorIs(t, res.err, errors.ErrTransportClosed)
	require.ErrorIs(t, controller.FatalError(), errors.ErrTransportClosed)
}

func TestController_ForwardsNotifications(t *testing.T) {
	controller, transport := startController(t)

	for _, method := range []string{"window/logMessage", "textDocument/publishDiagnostics"} {
		note, err := message.NewNotification(method, map[string]string{"k": "v"})
		require.NoError(t, err)

		transport.sendToController(note)
	}

	for _, method := range []string{"window/logMessage", "textDocument/publishDiagnostics"} {
		select {
		case note := <-controller.Notifications():
			require.Equal(t, method, note.Method)
			require.JSONEq(t, `{"k":"v"}`, string(note.Params))
		case <-time.After(5 * time.Second):
			t.Fatalf("notification %s not forwarded", method)
		}
	}
}

func TestController_Notify(t *testing.T) {
	controller, transport := startController(t)

	require.NoError(t, controller.Notify(context.Background(), "textDocument/didOpen", map[string]string{"uri": "file:///a.go"}))

	note := transport.nextRequest(t)
	require.Equal(t, "textDocument/didOpen", note.Method)
	require.False(t, note.ID.IsValid())
	require.JSONEq(t, `{"uri":"file:///a.go"}`, string(note.Params))
}

func TestController_EndInput(t *testing.T) {
	controller, transport := startController(t)

	controller.EndInput()
	controller.EndInput()

	_, open := <-transport.outbound
	require.False(t, open, "outbound not closed")

	err := controller.Notify(context.Background(), "late", nil)
	require.ErrorIs(t, err, errors.ErrInputClosed)

	_, err = controller.Call(context.Background(), "late", nil, time.Second)
	require.ErrorIs(t, err, errors.ErrInputClosed)
}

func TestController_SendFailsWhenTransportDone(t *testing.T) {
	transport := &mockTransport{
		outbound: make(chan message.ServerMessage), // never drained
		inbound:  make(chan message.ServerMessage),
		done:     make(chan struct{}),
	}

	controller := NewController(discardLogger(), transport)
	require.NoError(t, controller.Start(context.Background()))

	defer controller.Stop()

	close(transport.done)

	err := controller.Notify(context.Background(), "anything", nil)
	require.ErrorIs(t, err, errors.ErrTransportClosed)
}

func TestController_UnregisteredMethodGetsMethodNotFound(t *testing.T) {
	_, transport := startController(t)

	req, err := message.NewRequest(message.IntID(9), "window/showDocument", nil)
	require.NoError(t, err)

	transport.sendToController(req)

	resp := transport.nextResponse(t)
	require.Equal(t, message.IntID(9), resp.ID)
	requireErrorCode(t, resp, message.CodeMethodNotFound)
}

func TestController_HandlerResults(t *testing.T) {
	controller, transport := startController(t)

	controller.RegisterHandler("client/registerCapability", func(_ context.Context, _ *jsonrpc.Request) (any, error) {
		return nil, nil
	})
	controller.RegisterHandler("workspace/applyEdit", func(_ context.Context, _ *jsonrpc.Request) (any, error) {
		return map[string]bool{"applied": true}, nil
	})
	controller.RegisterHandler("window/showMessageRequest", func(_ context.Context, _ *jsonrpc.Request) (any, error) {
		return nil, &errors.ResponseError{Code: message.CodeInvalidParams, Message: "no actions"}
	})
	controller.RegisterHandler("window/workDoneProgress/create", func(_ context.Context, _ *jsonrpc.Request) (any, error) {
		return nil, stderrors.New("boom")
	})

	tests := []struct {
		method string
		result string
		code   int64
	}{
		{method: "client/registerCapability", result: `null`},
		{method: "workspace/applyEdit", result: `{"applied":true}`},
		{method: "window/showMessageRequest", code: message.CodeInvalidParams},
		{method: "window/workDoneProgress/create", code: message.CodeInternalError},
	}

	for i, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req, err := message.NewRequest(message.IntID(int64(i)), tt.method, nil)
			require.NoError(t, err)

			transport.sendToController(req)

			resp := transport.nextResponse(t)
			require.Equal(t, req.ID, resp.ID)

			if tt.code != 0 {
				requireErrorCode(t, resp, tt.code)

				return
			}

			require.Nil(t, resp.Error)
			require.JSONEq(t, tt.result, string(resp.Result))
		})
	}
}

func TestController_SetFatalError_ConcurrentWithStop(t *testing.T) {
	// This test verifies no panic occurs when SetFatalError and Stop race.
	// Run with: go test -race -count=100
	for range 100 {
		transport := newMockTransport()
		controller := NewController(discardLogger(), transport)

		require.NoError(t, controller.Start(context.Background()))

		var wg sync.WaitGroup

		wg.Go(func() { controller.SetFatalError(stderrors.New("transport error")) })
		wg.Go(controller.Stop)

		wg.Wait()

		select {
		case <-controller.Done():
		default:
			t.Fatal("done channel should be closed")
		}
	}
}

func TestController_SetFatalError_MultipleCalls(t *testing.T) {
	controller, _ := startController(t)

	// First error should be stored
	controller.SetFatalError(stderrors.New("first error"))
	require.EqualError(t, controller.FatalError(), "first error")

	// Second call should not panic, and first error is preserved
	controller.SetFatalError(stderrors.New("second error"))
	require.EqualError(t, controller.FatalError(), "first error")
}

func TestController_StopFailsPendingCalls(t *testing.T) {
	transport := newMockTransport()
	controller := NewController(discardLogger(), transport)
	require.NoError(t, controller.Start(context.Background()))

	pending := callAsync(controller, "hover", nil, 0)
	transport.nextRequest(t)

	controller.Stop()
	controller.Stop()

	res := awaitCall(t, pending)
	require.ErrorIs(t, res.err, errors.ErrControllerStopped)
}

// findPendingRequestID extracts a pending request ID from the controller.
func findPendingRequestID(c *Controller) (jsonrpc.ID, bool) {
	c.pendingMu.RLock()
	defer c.pendingMu.RUnlock()

	for id := range c.pending {
		return id, true
	}

	return jsonrpc.ID{}, false
}

func TestController_Call_ResponseAfterTimeout_Race(t *testing.T) {
	// Races a call timing out against its response being routed.
	// Run with: go test -race -count=100 -run TestController_Call_ResponseAfterTimeout_Race
	for range 100 {
		transport := newMockTransport()
		controller := NewController(discardLogger(), transport)

		require.NoError(t, controller.Start(context.Background()))

		var wg sync.WaitGroup

		wg.Go(func() {
			_, _ = controller.Call(context.Background(), "test", nil, time.Millisecond)
		})

		wg.Go(func() {
			time.Sleep(500 * time.Microsecond)

			if id, ok := findPendingRequestID(controller); ok {
				resp, _ := message.NewResponse(id, nil)
				transport.sendToController(resp)
			}
		})

		wg.Wait()
		controller.Stop()
	}
}
