package subprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/wagiedev/lspipe/internal/cli"
	"github.com/wagiedev/lspipe/internal/config"
	"github.com/wagiedev/lspipe/internal/errors"
)

// Process is a running language server with all three standard streams
// redirected to pipes owned by the parent.
//
// Each pipe end is meant to be handed to exactly one goroutine: Stdin to the
// writer, Stdout to the reader, Stderr to the error monitor. Wait must be
// called exactly once, by the goroutine that owns reaping.
type Process struct {
	log *slog.Logger
	cmd *exec.Cmd

	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Launch resolves command, spawns it with args, and returns the running
// process.
//
// The child's streams are backed by os.Pipe rather than exec's StdinPipe and
// friends, so Wait never closes the parent's ends underneath a goroutine that
// is still reading them.
//
// ctx bounds the lifetime of the process: when it is cancelled the process is
// killed. Launch returns *errors.ServerNotFoundError if the binary cannot be
// located and *errors.ServerStartError if it cannot be spawned.
func Launch(
	ctx context.Context,
	log *slog.Logger,
	command string,
	args []string,
	options *config.Options,
) (*Process, error) {
	if options == nil {
		options = &config.Options{}
	}

	log = log.With("component", "subprocess")
	log.Info("Starting language server", "command", command, "args", strings.Join(args, " "))

	path, err := cli.NewDiscoverer(&cli.Config{
		Command:     command,
		ServerPath:  options.ServerPath,
		SearchPaths: options.SearchPaths,
		Logger:      log,
	}).Discover()
	if err != nil {
		return nil, err
	}

	var pipes pipeSet
	if err := pipes.open(); err != nil {
		log.Error("Failed to create pipes", "error", err)

		return nil, &errors.ServerStartError{Command: command, Err: err}
	}

	//nolint:gosec // G204: launching a configured language server is the purpose of this package
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = options.Cwd
	cmd.Env = cli.BuildEnvironment(options.Env)
	cmd.Stdin = pipes.stdinR
	cmd.Stdout = pipes.stdoutW
	cmd.Stderr = pipes.stderrW

	startErr := cmd.Start()

	// The child holds its own copies now; the parent must drop them so that
	// EOF is observed once the child exits.
	pipes.closeChildEnds()

	if startErr != nil {
		pipes.closeParentEnds()
		log.Error("Failed to start language server", "error", startErr)

		return nil, &errors.ServerStartError{Command: command, Err: startErr}
	}

	log.Info("Language server started", "pid", cmd.Process.Pid, "path", path)

	return &Process{
		log:    log,
		cmd:    cmd,
		Stdin:  pipes.stdinW,
		Stdout: pipes.stdoutR,
		Stderr: pipes.stderrR,
	}, nil
}

// Pid returns the process identifier.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and releases its OS resources.
//
// A non-zero exit status is logged and not returned: by the time the
// transport reaps, the server stopping is expected. Any other failure (for
// example a second Wait) is returned.
func (p *Process) Wait() error {
	p.log.Debug("Waiting for language server process end", "pid", p.Pid())

	err := p.cmd.Wait()
	if err == nil {
		p.log.Info("Language server exited", "pid", p.Pid())

		return nil
	}

	if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
		p.log.Info("Language server exited",
			"pid", p.Pid(),
			"exit_code", exitErr.ExitCode(),
			"state", exitErr.String(),
		)

		return nil
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		p.log.Info("Language server stopped by context", "pid", p.Pid(), "reason", err)

		return nil
	}

	return fmt.Errorf("wait for language server (pid %d): %w", p.Pid(), err)
}

// Kill forcefully terminates the process. Killing a process that already
// exited is not an error.
func (p *Process) Kill() error {
	p.log.Debug("Killing language server process", "pid", p.Pid())

	if err := p.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill language server (pid %d): %w", p.Pid(), err)
	}

	return nil
}

// pipeSet holds both ends of the three standard stream pipes.
type pipeSet struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func (s *pipeSet) open() error {
	var err error

	if s.stdinR, s.stdinW, err = os.Pipe(); err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	if s.stdoutR, s.stdoutW, err = os.Pipe(); err != nil {
		s.closeAll()

		return fmt.Errorf("stdout pipe: %w", err)
	}

	if s.stderrR, s.stderrW, err = os.Pipe(); err != nil {
		s.closeAll()

		return fmt.Errorf("stderr pipe: %w", err)
	}

	return nil
}

func (s *pipeSet) closeChildEnds() {
	closeFiles(s.stdinR, s.stdoutW, s.stderrW)
}

func (s *pipeSet) closeParentEnds() {
	closeFiles(s.stdinW, s.stdoutR, s.stderrR)
}

func (s *pipeSet) closeAll() {
	s.closeChildEnds()
	s.closeParentEnds()
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
