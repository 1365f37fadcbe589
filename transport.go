package lspipe

import (
	"context"

	"github.com/wagiedev/lspipe/internal/transport"
)

// Transport connects to one running language server.
//
// Send messages on Outbound and receive them from Inbound. Closing Outbound
// closes the server's stdin, which asks it to exit. When the server's output
// ends normally, Inbound yields a final exit notification and is closed.
// Done is closed once the reader, writer and error monitor have all stopped;
// Wait and Outcomes then report how each of them ended.
type Transport = transport.Transport

// Start launches command with args and starts the transport workers.
//
// ctx bounds the server's lifetime: cancelling it kills the server. A launch
// failure is returned as *ServerNotFoundError or *ServerStartError and no
// transport is produced.
//
// Example usage:
//
//	t, err := lspipe.Start(ctx, "gopls", []string{"serve"},
//	    lspipe.WithCwd(root),
//	    lspipe.WithStderr(func(s string) { log.Print(s) }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	t.Outbound() <- request
//	for msg := range t.Inbound() {
//	    if lspipe.IsExit(msg) {
//	        break
//	    }
//	    // handle msg...
//	}
//
//	close(t.Outbound())
//	err = t.Wait()
func Start(ctx context.Context, command string, args []string, opts ...Option) (*Transport, error) {
	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	return transport.Start(ctx, log, command, args, options)
}
