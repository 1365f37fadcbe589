// Package testutil defines internal support code for writing tests.
//
// The fake language server is the test binary itself: a package's TestMain
// calls RunFakeServerIfRequested, and tests launch os.Executable() with the
// FakeServerEnv variable naming the behaviour to run.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/wagiedev/lspipe/internal/framing"
	"github.com/wagiedev/lspipe/internal/message"
)

// FakeServerEnv selects the fake server mode in a re-executed test binary.
const FakeServerEnv = "LSPIPE_FAKE_SERVER"

// Fake server modes.
const (
	// ModeEcho answers every request: "ping" with "pong", "fail" with an
	// error, anything else with its params. An "exit" notification stops it.
	ModeEcho = "echo"
	// ModeMirror writes every received frame back unchanged.
	ModeMirror = "mirror"
	// ModeSilent exits immediately without writing anything.
	ModeSilent = "silent"
	// ModeNotify writes three notifications, then waits for end of input.
	ModeNotify = "notify"
	// ModeCallback sends a workspace/configuration request for
	// CallbackSection and reports the answer in an "answered" notification.
	ModeCallback = "callback"
	// ModeStderr writes a diagnostic to stderr, then waits for end of input.
	ModeStderr = "stderr"
	// ModeGarbage writes a malformed frame and then hangs.
	ModeGarbage = "garbage"
	// ModeStall never reads its input and never exits on its own.
	ModeStall = "stall"
	// ModeCat copies stdin to stdout byte for byte.
	ModeCat = "cat"
	// ModeEnv prints LSPIPE_PROBE and the working directory.
	ModeEnv = "env"
	// ModeExitCode exits with status 3.
	ModeExitCode = "exit-code"
)

// CallbackSection is the configuration section ModeCallback asks for.
const CallbackSection = "fake"

// StderrDiagnostic is what ModeStderr writes to its error stream.
const StderrDiagnostic = "fake server: something went wrong"

// RunFakeServerIfRequested runs the fake server and exits when the process
// was started in a fake server mode. Otherwise it returns immediately.
func RunFakeServerIfRequested() {
	mode, ok := os.LookupEnv(FakeServerEnv)
	if !ok {
		return
	}

	if err := runFakeServer(mode); err != nil {
		fmt.Fprintf(os.Stderr, "fake server %s: %v\n", mode, err)
		os.Exit(1)
	}

	os.Exit(0)
}

// FakeServer returns the executable to launch and the environment that puts
// it in the given mode.
func FakeServer(t testing.TB, mode string) (string, map[string]string) {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("Locating test binary failed: %v", err)
	}

	return exe, map[string]string{FakeServerEnv: mode}
}

func runFakeServer(mode string) error {
	in := framing.NewReader(os.Stdin)
	out := bufio.NewWriter(os.Stdout)

	switch mode {
	case ModeEcho:
		return serveEcho(in, out)
	case ModeMirror:
		for {
			frame, err := in.ReadFrame()
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}

			if err := framing.WriteFrame(out, frame.Body); err != nil {
				return err
			}
		}
	case ModeSilent:
		return nil
	case ModeNotify:
		for i := 1; i <= 3; i++ {
			note, err := message.NewNotification("progress", map[string]int{"step": i})
			if err != nil {
				return err
			}

			if err := writeMessage(out, note); err != nil {
				return err
			}
		}

		_, err := io.Copy(io.Discard, os.Stdin)

		return err
	case ModeCallback:
		req, err := message.NewRequest(message.IntID(7), "workspace/configuration",
			map[string]any{"items": []map[string]string{{"section": CallbackSection}}})
		if err != nil {
			return err
		}

		if err := writeMessage(out, req); err != nil {
			return err
		}

		// Notifications from the client are skipped until the answer arrives.
		for {
			frame, err := in.ReadFrame()
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}

			msg, err := message.Classify(frame.Body)
			if err != nil {
				return err
			}

			if message.KindOf(msg) != message.KindResponse {
				continue
			}

			// Echo the client's answer back as a notification for inspection.
			if err := framing.WriteFrame(out, fmt.Appendf(nil,
				`{"jsonrpc":"2.0","method":"answered","params":%s}`, frame.Body)); err != nil {
				return err
			}
		}
	case ModeStderr:
		fmt.Fprint(os.Stderr, StderrDiagnostic)

		_, err := io.Copy(io.Discard, os.Stdin)

		return err
	case ModeGarbage:
		if _, err := out.WriteString("Content-Length 12\r\n\r\n"); err != nil {
			return err
		}

		if err := out.Flush(); err != nil {
			return err
		}

		time.Sleep(time.Hour)

		return nil
	case ModeStall:
		time.Sleep(time.Hour)

		return nil
	case ModeCat:
		_, err := io.Copy(os.Stdout, os.Stdin)

		return err
	case ModeEnv:
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		fmt.Printf("%s\n%s\n", os.Getenv("LSPIPE_PROBE"), wd)

		return nil
	case ModeExitCode:
		os.Exit(3)
	}

	return fmt.Errorf("unknown mode %q", mode)
}

func serveEcho(in *framing.Reader, out *bufio.Writer) error {
	for {
		frame, err := in.ReadFrame()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		msg, err := message.Classify(frame.Body)
		if err != nil {
			return err
		}

		req, ok := msg.(*jsonrpc.Request)
		if !ok {
			continue
		}

		if !req.ID.IsValid() {
			if req.Method == message.ExitMethod {
				return nil
			}

			continue
		}

		var reply message.ServerMessage

		switch req.Method {
		case "ping":
			reply, err = message.NewResponse(req.ID, "pong")
		case "fail":
			reply = message.NewErrorResponse(req.ID, message.CodeInvalidParams, "fail was called")
		case "shutdown":
			reply, err = message.NewResponse(req.ID, nil)
		default:
			reply = &jsonrpc.Response{ID: req.ID, Result: req.Params}
		}

		if err != nil {
			return err
		}

		if err := writeMessage(out, reply); err != nil {
			return err
		}
	}
}

func writeMessage(out *bufio.Writer, msg message.ServerMessage) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}

	return framing.WriteFrame(out, data)
}
