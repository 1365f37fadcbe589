// Package client implements the Client that runs a conversation with one
// language server.
//
// A Client owns the transport to the server process, the protocol controller
// that correlates requests with responses, and the session that performs the
// initialize and shutdown handshakes. Close always leaves the server reaped:
// it ends the server's input and kills the process if it does not exit.
package client
