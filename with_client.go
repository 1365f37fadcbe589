package lspipe

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper starts a client for command, runs the initialize handshake
// with params, executes the callback, and then shuts the server down and
// closes the client.
//
// If the callback returns an error, it is returned to the caller.
// If shutdown or Close() fails, a warning is logged but does not override
// the callback's error.
//
// Example usage:
//
//	err := lspipe.WithClient(ctx, "gopls", nil, initializeParams, func(c lspipe.Client) error {
//	    _, err := c.Call(ctx, "workspace/symbol", map[string]any{"query": "main"}, 10*time.Second)
//	    return err
//	},
//	    lspipe.WithLogger(log),
//	)
func WithClient(
	ctx context.Context,
	command string,
	args []string,
	params any,
	fn func(Client) error,
	opts ...Option,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client := NewClient()
	if err := client.Start(ctx, command, args, opts...); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	if _, err := client.Initialize(ctx, params); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	if err := fn(client); err != nil {
		return err
	}

	if err := client.Shutdown(ctx); err != nil {
		log.Warn("failed to shut down language server", "error", err)
	}

	return nil
}
