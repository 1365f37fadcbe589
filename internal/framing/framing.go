// Package framing implements the LSP base protocol framing.
//
// Each message is sent in the format:
//
//	Content-Length: <nbytes>\r\n
//	\r\n
//	<payload>
//
// The length is the byte length of the UTF-8 payload, encoded as decimal
// digits. Other header lines may precede the blank line; they are stored in
// Frame.Headers and otherwise ignored.
package framing

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wagiedev/lspipe/internal/errors"
)

const (
	// ContentLength is the only header the protocol interprets.
	ContentLength = "Content-Length"

	headerSeparator = ": "
)

// Frame is a decoded header block and its payload.
type Frame struct {
	Headers map[string]string
	Body    []byte
}

// Reader decodes frames from a byte stream.
//
// A Reader is not safe for concurrent use; the transport gives each stream a
// single reader goroutine.
type Reader struct {
	rd      *bufio.Reader
	headers map[string]string
}

// NewReader returns a Reader decoding frames from r.
func NewReader(r io.Reader) *Reader {
	rd, ok := r.(*bufio.Reader)
	if !ok {
		rd = bufio.NewReaderSize(r, 64*1024)
	}

	return &Reader{rd: rd, headers: make(map[string]string, 2)}
}

// ReadFrame reads the next frame.
//
// It returns io.EOF only when the stream ends exactly at a frame boundary,
// which is the normal shutdown signal. Any other failure is a *FramingError
// after which the stream cannot be trusted.
func (r *Reader) ReadFrame() (*Frame, error) {
	clear(r.headers)

	first := true

	for {
		raw, err := r.rd.ReadString('\n')
		if err == io.EOF && raw == "" && first {
			return nil, io.EOF
		}

		if err != nil {
			if err == io.EOF {
				return nil, &errors.FramingError{
					Kind:   errors.Truncated,
					Detail: "stream ended inside header block",
					Err:    io.ErrUnexpectedEOF,
				}
			}

			return nil, fmt.Errorf("read header: %w", err)
		}

		first = false

		line := strings.TrimSpace(raw)
		if line == "" {
			break
		}

		parts := strings.Split(line, headerSeparator)
		if len(parts) != 2 {
			return nil, &errors.FramingError{
				Kind:   errors.MalformedHeader,
				Detail: strconv.Quote(line),
			}
		}

		r.headers[parts[0]] = parts[1]
	}

	size, err := r.contentLength()
	if err != nil {
		return nil, err
	}

	body, err := r.readBody(size)
	if err != nil {
		return nil, err
	}

	return &Frame{Headers: maps.Clone(r.headers), Body: body}, nil
}

func (r *Reader) contentLength() (int64, error) {
	value, ok := r.headers[ContentLength]
	if !ok {
		return 0, &errors.FramingError{Kind: errors.MissingContentLength}
	}

	size, err := strconv.ParseUint(value, 10, 63)
	if err != nil {
		return 0, &errors.FramingError{
			Kind:   errors.InvalidContentLength,
			Detail: strconv.Quote(value),
			Err:    err,
		}
	}

	return int64(size), nil
}

// readBody reads exactly size bytes. The buffer grows with the data actually
// received, so a bogus length cannot force a large up-front allocation.
func (r *Reader) readBody(size int64) ([]byte, error) {
	var buf bytes.Buffer

	n, err := io.CopyN(&buf, r.rd, size)
	if err != nil {
		if err == io.EOF {
			return nil, &errors.FramingError{
				Kind:   errors.Truncated,
				Detail: fmt.Sprintf("body has %d of %d bytes", n, size),
				Err:    io.ErrUnexpectedEOF,
			}
		}

		return nil, fmt.Errorf("read body: %w", err)
	}

	body := buf.Bytes()
	if !utf8.Valid(body) {
		return nil, &errors.FramingError{Kind: errors.InvalidEncoding, Detail: "body is not valid UTF-8"}
	}

	return body, nil
}

// WriteFrame writes payload as a single frame and flushes w.
//
// Header and payload are buffered together so the peer never observes a
// partial frame between two messages.
func WriteFrame(w *bufio.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "%s: %d\r\n\r\n", ContentLength, len(payload)); err != nil {
		return err
	}

	if _, err := w.Write(payload); err != nil {
		return err
	}

	return w.Flush()
}
