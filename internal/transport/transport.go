// Package transport connects a language server process to a pair of bounded
// message channels.
//
// Start launches the server and runs three workers over its pipes: an error
// monitor draining stderr, a reader pump decoding frames from stdout onto the
// inbound channel, and a writer pump framing messages from the outbound
// channel onto stdin. A supervisor waits on all three and records how each
// one ended.
//
// Closing the outbound channel asks the server to shut down by closing its
// stdin. When the server closes stdout the reader reaps the process and
// delivers a final exit notification before closing the inbound channel.
package transport

import (
	"context"
	"io"
	"log/slog"

	"github.com/wagiedev/lspipe/internal/config"
	"github.com/wagiedev/lspipe/internal/message"
	"github.com/wagiedev/lspipe/internal/subprocess"
)

// Transport is a running language server connection.
type Transport struct {
	log  *slog.Logger
	proc *subprocess.Process
	sup  *supervisor

	outbound chan message.ServerMessage
	inbound  chan message.ServerMessage
}

// Start launches the language server and starts the transport workers.
//
// A launch failure is returned and no transport is produced; every later
// failure is confined to the worker that hit it and reported through
// Outcomes and Wait.
func Start(
	ctx context.Context,
	log *slog.Logger,
	command string,
	args []string,
	options *config.Options,
) (*Transport, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	proc, err := subprocess.Launch(ctx, log, command, args, options)
	if err != nil {
		return nil, err
	}

	capacity := options.Capacity()

	t := &Transport{
		log:      log.With("component", "transport"),
		proc:     proc,
		outbound: make(chan message.ServerMessage, capacity),
		inbound:  make(chan message.ServerMessage, capacity),
	}

	var onStderr func(string)
	if options != nil {
		onStderr = options.Stderr
	}

	readerDone := make(chan struct{})

	t.sup = supervise(log,
		worker{name: WorkerStderrMonitor, run: func() error {
			defer proc.Stderr.Close()

			return subprocess.MonitorStderr(log, proc.Stderr, onStderr)
		}},
		worker{name: WorkerReader, run: func() error {
			defer close(readerDone)

			return runReader(log, proc.Stdout, proc, t.inbound)
		}},
		worker{name: WorkerWriter, run: func() error {
			return runWriter(log, proc.Stdin, t.outbound, readerDone)
		}},
	)

	t.log.Info("Transport started", "pid", proc.Pid(), "capacity", capacity)

	return t, nil
}

// Outbound returns the channel of messages to send to the server. Sends
// block while the channel is full. Closing it closes the server's stdin,
// which is the shutdown request.
func (t *Transport) Outbound() chan<- message.ServerMessage {
	return t.outbound
}

// Inbound returns the channel of messages received from the server. After a
// clean end of stream the last message is an exit notification; the channel
// is closed once the reader stops.
func (t *Transport) Inbound() <-chan message.ServerMessage {
	return t.inbound
}

// Done is closed once every worker has stopped.
func (t *Transport) Done() <-chan struct{} {
	return t.sup.Done()
}

// Outcomes waits for the workers to stop and reports how each one ended.
func (t *Transport) Outcomes() []Outcome {
	return t.sup.Outcomes()
}

// Wait waits for the workers to stop and returns their failures joined, or
// nil when all of them stopped normally.
func (t *Transport) Wait() error {
	return t.sup.Err()
}

// Pid returns the language server's process identifier.
func (t *Transport) Pid() int {
	return t.proc.Pid()
}

// Kill forcefully terminates the language server. The reader observes the
// end of stream, reaps the process and delivers the exit notification.
func (t *Transport) Kill() error {
	t.log.Debug("Killing language server on request")

	return t.proc.Kill()
}
