// Package lspipe runs a language server as a subprocess and exchanges
// JSON-RPC messages with it over the Language Server Protocol base
// protocol: Content-Length framed messages on the server's stdin and stdout.
//
// The package has two layers. Start returns a Transport, a pair of bounded
// channels connected to the server by three goroutines: a reader that
// decodes the server's output, a writer that encodes outbound messages, and
// an error monitor that drains the server's stderr. NewClient builds on a
// Transport and adds request IDs, response routing, the initialize and
// shutdown handshakes, and settings.
//
// # Transport
//
//	t, err := lspipe.Start(ctx, "gopls", nil, lspipe.WithCwd(root))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	req, _ := lspipe.NewRequest(lspipe.IntID(1), "initialize", params)
//	t.Outbound() <- req
//
//	for msg := range t.Inbound() {
//	    switch m := msg.(type) {
//	    case *lspipe.Response:
//	        // correlate m.ID with the request...
//	    case *lspipe.Request:
//	        if lspipe.IsExit(m) {
//	            // the server's output ended and the process was reaped
//	        }
//	    }
//	}
//
// Closing Outbound closes the server's stdin. When the server's output ends,
// the process is reaped, a final exit notification is delivered on Inbound,
// and Inbound is closed. If the output cannot be decoded, the server is
// killed and Inbound is closed without an exit notification; Wait reports
// the *FramingError.
//
// # Client
//
//	err := lspipe.WithClient(ctx, "gopls", nil, params, func(c lspipe.Client) error {
//	    result, err := c.Call(ctx, "workspace/symbol", map[string]any{"query": "main"}, 10*time.Second)
//	    if err != nil {
//	        return err
//	    }
//	    // use result...
//	    return nil
//	},
//	    lspipe.WithSettings(map[string]any{"gopls.staticcheck": true}),
//	)
//
// # Logging
//
// For detailed operation tracking, use WithLogger. Message bodies are logged
// at debug level:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	t, err := lspipe.Start(ctx, "gopls", nil, lspipe.WithLogger(logger))
//
// # Error Handling
//
// Failures are typed:
//
//	t, err := lspipe.Start(ctx, "gopls", nil)
//	if notFound, ok := errors.AsType[*lspipe.ServerNotFoundError](err); ok {
//	    log.Fatalf("gopls not installed, searched: %v", notFound.SearchedPaths)
//	}
//
//	if err := t.Wait(); errors.Is(err, &lspipe.FramingError{Kind: lspipe.MalformedHeader}) {
//	    // the server wrote something that is not a frame
//	}
package lspipe
