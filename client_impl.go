package lspipe

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/wagiedev/lspipe/internal/client"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

func (c *clientWrapper) Start(ctx context.Context, command string, args []string, opts ...Option) error {
	return c.impl.Start(ctx, command, args, applyOptions(opts))
}

func (c *clientWrapper) Initialize(ctx context.Context, params any) (json.RawMessage, error) {
	return c.impl.Initialize(ctx, params)
}

func (c *clientWrapper) InitializeResult() json.RawMessage {
	return c.impl.InitializeResult()
}

func (c *clientWrapper) Call(
	ctx context.Context,
	method string,
	params any,
	timeout time.Duration,
) (json.RawMessage, error) {
	return c.impl.Call(ctx, method, params, timeout)
}

func (c *clientWrapper) Notify(ctx context.Context, method string, params any) error {
	return c.impl.Notify(ctx, method, params)
}

func (c *clientWrapper) RegisterHandler(method string, handler RequestHandler) error {
	return c.impl.RegisterHandler(method, handler)
}

func (c *clientWrapper) ApplySettings(ctx context.Context, settings map[string]any) ([]error, error) {
	return c.impl.ApplySettings(ctx, settings)
}

func (c *clientWrapper) ReceiveNotifications(ctx context.Context) iter.Seq2[*Request, error] {
	return c.impl.ReceiveNotifications(ctx)
}

func (c *clientWrapper) Shutdown(ctx context.Context) error {
	return c.impl.Shutdown(ctx)
}

func (c *clientWrapper) Outcomes() []Outcome {
	return c.impl.Outcomes()
}

func (c *clientWrapper) Close() error {
	return c.impl.Close()
}
