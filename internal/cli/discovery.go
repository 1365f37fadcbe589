package cli

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wagiedev/lspipe/internal/errors"
)

// Config holds configuration for server discovery.
type Config struct {
	// Command is the server command name, e.g. "gopls".
	Command string

	// ServerPath is an explicit binary path that skips the search.
	ServerPath string

	// SearchPaths are extra directories checked after PATH.
	SearchPaths []string

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates a language server binary.
type Discoverer interface {
	// Discover returns the path of the server binary or a
	// *errors.ServerNotFoundError.
	Discover() (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new server discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &discoverer{
		cfg: cfg,
		log: log.With("component", "discovery"),
	}
}

// Discover locates the server binary.
//
// Search order:
//  1. Config.ServerPath, if set (and only it)
//  2. Config.Command itself when it contains a path separator
//  3. The system PATH
//  4. Config.SearchPaths, then common install directories
//     (/usr/local/bin, ~/.local/bin, ~/go/bin)
func (d *discoverer) Discover() (string, error) {
	if d.cfg.ServerPath != "" {
		d.log.Debug("Using explicit server path", "server_path", d.cfg.ServerPath)

		if isExecutableFile(d.cfg.ServerPath) {
			return d.cfg.ServerPath, nil
		}

		return "", &errors.ServerNotFoundError{
			Command:       d.cfg.Command,
			SearchedPaths: []string{d.cfg.ServerPath},
		}
	}

	name := d.cfg.Command
	if name == "" {
		return "", &errors.ServerNotFoundError{}
	}

	if strings.ContainsRune(name, filepath.Separator) {
		if isExecutableFile(name) {
			return name, nil
		}

		return "", &errors.ServerNotFoundError{Command: name, SearchedPaths: []string{name}}
	}

	searchedPaths := make([]string, 0, len(d.cfg.SearchPaths)+4)

	if path, err := exec.LookPath(name); err == nil {
		d.log.Debug("Found server in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	for _, dir := range d.candidateDirs() {
		path := filepath.Join(dir, name)
		searchedPaths = append(searchedPaths, path)

		if isExecutableFile(path) {
			d.log.Debug("Found server in search directory", "path", path)

			return path, nil
		}
	}

	d.log.Warn("Language server not found", "command", name, "searched_paths", searchedPaths)

	return "", &errors.ServerNotFoundError{Command: name, SearchedPaths: searchedPaths}
}

func (d *discoverer) candidateDirs() []string {
	dirs := append([]string{}, d.cfg.SearchPaths...)
	dirs = append(dirs, "/usr/local/bin")

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".local", "bin"),
			filepath.Join(homeDir, "go", "bin"),
		)
	}

	return dirs
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode().Perm()&0o111 != 0
}
