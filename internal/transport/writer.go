package transport

import (
	"bufio"
	"io"
	"log/slog"

	"github.com/wagiedev/lspipe/internal/errors"
	"github.com/wagiedev/lspipe/internal/framing"
	"github.com/wagiedev/lspipe/internal/message"
)

// runWriter frames every message received on outbound onto stdin, one
// complete frame at a time.
//
// It returns nil when outbound is closed and drained, or when stop is closed
// because the server is gone. Encoding and write failures end the writer with
// a *errors.WriterError and are not retried, unless stop has closed by then. Once the server exits, writes
// fail with EPIPE: the runtime ignores SIGPIPE for pipes other than the
// process's own stdout and stderr. stdin is closed on every path.
func runWriter(
	log *slog.Logger,
	stdin io.WriteCloser,
	outbound <-chan message.ServerMessage,
	stop <-chan struct{},
) error {
	log = log.With("component", "writer")

	defer func() {
		if err := stdin.Close(); err != nil {
			log.Debug("Closing server stdin failed", "error", err)
		}
	}()

	w := bufio.NewWriter(stdin)
	sent := 0

	for {
		// A finished reader means the process is reaped; nothing queued can
		// be delivered anymore.
		if closed(stop) {
			log.Debug("Language server gone, stopping writer", "sent", sent, "undelivered", len(outbound))

			return nil
		}

		var (
			msg message.ServerMessage
			ok  bool
		)

		select {
		case msg, ok = <-outbound:
		case <-stop:
			log.Debug("Language server gone, stopping writer", "sent", sent, "undelivered", len(outbound))

			return nil
		}

		if !ok {
			log.Debug("Outbound channel closed, closing server stdin", "sent", sent)

			return nil
		}

		// select picks at random when a message and stop are both ready.
		if closed(stop) {
			log.Debug("Language server gone, stopping writer", "sent", sent, "undelivered", len(outbound)+1)

			return nil
		}

		data, err := message.Encode(msg)
		if err != nil {
			return &errors.WriterError{Op: "encode", Err: err}
		}

		log.Debug("To server", "kind", message.KindOf(msg), "body", string(data))

		if err := framing.WriteFrame(w, data); err != nil {
			if closed(stop) {
				log.Debug("Language server exited during write", "sent", sent, "error", err)

				return nil
			}

			return &errors.WriterError{Op: "write", Err: err}
		}

		sent++
	}
}

// closed reports whether stop has been closed. A nil stop never is.
func closed(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
