package transport

import (
	"io"
	"log/slog"

	"github.com/wagiedev/lspipe/internal/framing"
	"github.com/wagiedev/lspipe/internal/message"
)

// reaper is the part of the server process the reader is responsible for.
type reaper interface {
	Wait() error
	Kill() error
}

// runReader decodes frames from stdout and delivers them on inbound until
// the server closes its output or the stream stops making sense.
//
// At a clean end of stream the process is reaped and a single exit
// notification is delivered. A framing or classification failure kills and
// reaps the process and closes inbound without the exit notification; the
// failure is returned. inbound is closed on every path.
func runReader(
	log *slog.Logger,
	stdout io.ReadCloser,
	proc reaper,
	inbound chan<- message.ServerMessage,
) error {
	log = log.With("component", "reader")

	defer close(inbound)
	defer stdout.Close()

	frames := framing.NewReader(stdout)
	received := 0

	for {
		frame, err := frames.ReadFrame()
		if err == io.EOF {
			log.Debug("Language server closed stdout", "received", received)

			if err := proc.Wait(); err != nil {
				log.Warn("Failed to reap language server", "error", err)
			}

			inbound <- message.NewExitNotification()

			return nil
		}

		if err != nil {
			return abortReader(log, proc, err)
		}

		msg, err := message.Classify(frame.Body)
		if err != nil {
			return abortReader(log, proc, err)
		}

		received++
		log.Debug("From server", "kind", message.KindOf(msg), "body", string(frame.Body))

		inbound <- msg
	}
}

// abortReader stops a server whose output can no longer be trusted. The
// stream is not resynchronized.
func abortReader(log *slog.Logger, proc reaper, cause error) error {
	log.Error("Unreadable message from language server, stopping it", "error", cause)

	if err := proc.Kill(); err != nil {
		log.Warn("Failed to kill language server", "error", err)
	}

	if err := proc.Wait(); err != nil {
		log.Warn("Failed to reap language server", "error", err)
	}

	return cause
}
