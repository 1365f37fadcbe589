// Package protocol implements the client side of a JSON-RPC conversation
// with a language server.
//
// The protocol package provides a Controller that sits on the transport's
// channels. It allocates request IDs, correlates responses with pending
// calls, answers server requests through registered handlers, and forwards
// server notifications. A Session adds the initialize/shutdown lifecycle
// and serves workspace/configuration from applied settings.
//
// Example usage:
//
//	tr, _ := transport.Start(ctx, log, "gopls", nil, options)
//
//	controller := protocol.NewController(log, tr)
//	controller.Start(ctx)
//
//	session := protocol.NewSession(log, controller, options)
//	session.RegisterHandlers()
//	session.Initialize(ctx, initializeParams)
//
//	// Send a request with timeout
//	result, err := controller.Call(ctx, "workspace/symbol", params, 5*time.Second)
//
//	session.Shutdown(ctx, 5*time.Second)
package protocol
