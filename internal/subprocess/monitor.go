package subprocess

import (
	"fmt"
	"io"
	"log/slog"
)

// stderrChunkSize is the largest chunk reported per read.
const stderrChunkSize = 4096

// MonitorStderr drains r until end of stream, reporting every non-empty read
// as a language server error and passing it to callback when set.
//
// It returns nil at EOF. A read failure is logged once and returned; the
// monitor never touches the other streams.
func MonitorStderr(log *slog.Logger, r io.Reader, callback func(string)) error {
	log = log.With("component", "stderr_monitor")
	buf := make([]byte, stderrChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			log.Error("Language server error", "stderr", chunk)

			if callback != nil {
				callback(chunk)
			}
		}

		if err == io.EOF {
			log.Debug("Language server closed stderr")

			return nil
		}

		if err != nil {
			log.Error("Failed to read from language server stderr", "error", err)

			return fmt.Errorf("read stderr: %w", err)
		}
	}
}
