package cli

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/lspipe/internal/errors"
)

func writeFakeServer(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode))

	return path
}

// TestDiscoverer_NotFound tests that an invalid explicit path returns ServerNotFoundError.
func TestDiscoverer_NotFound(t *testing.T) {
	discoverer := NewDiscoverer(&Config{
		Command:    "fake-ls",
		ServerPath: "/nonexistent/path/to/fake-ls",
		Logger:     slog.Default(),
	})

	_, err := discoverer.Discover()

	notFound, ok := stderrors.AsType[*errors.ServerNotFoundError](err)
	require.True(t, ok)
	require.Equal(t, []string{"/nonexistent/path/to/fake-ls"}, notFound.SearchedPaths)
}

// TestDiscoverer_ExplicitPath tests discovery with an explicit path.
func TestDiscoverer_ExplicitPath(t *testing.T) {
	fake := writeFakeServer(t, t.TempDir(), "fake-ls", 0o755)

	path, err := NewDiscoverer(&Config{Command: "fake-ls", ServerPath: fake}).Discover()

	require.NoError(t, err)
	require.Equal(t, fake, path)
}

func TestDiscoverer_ExplicitPathNotExecutable(t *testing.T) {
	fake := writeFakeServer(t, t.TempDir(), "fake-ls", 0o644)

	_, err := NewDiscoverer(&Config{ServerPath: fake}).Discover()

	require.Error(t, err)
	require.IsType(t, &errors.ServerNotFoundError{}, err)
}

func TestDiscoverer_CommandWithPathSeparator(t *testing.T) {
	fake := writeFakeServer(t, t.TempDir(), "fake-ls", 0o755)

	path, err := NewDiscoverer(&Config{Command: fake}).Discover()

	require.NoError(t, err)
	require.Equal(t, fake, path)
}

func TestDiscoverer_SearchesPATH(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeServer(t, dir, "lspipe-fake-ls", 0o755)

	t.Setenv("PATH", dir)

	path, err := NewDiscoverer(&Config{Command: "lspipe-fake-ls"}).Discover()

	require.NoError(t, err)
	require.Equal(t, fake, path)
}

func TestDiscoverer_SearchPaths(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeServer(t, dir, "lspipe-fake-ls", 0o755)

	t.Setenv("PATH", t.TempDir())

	path, err := NewDiscoverer(&Config{
		Command:     "lspipe-fake-ls",
		SearchPaths: []string{dir},
	}).Discover()

	require.NoError(t, err)
	require.Equal(t, fake, path)
}

func TestDiscoverer_ReportsSearchedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PATH", t.TempDir())

	_, err := NewDiscoverer(&Config{
		Command:     "lspipe-missing-ls",
		SearchPaths: []string{dir},
	}).Discover()

	notFound, ok := stderrors.AsType[*errors.ServerNotFoundError](err)
	require.True(t, ok)
	require.Equal(t, "lspipe-missing-ls", notFound.Command)
	require.Equal(t, "$PATH", notFound.SearchedPaths[0])
	require.Contains(t, notFound.SearchedPaths, filepath.Join(dir, "lspipe-missing-ls"))
}

func TestDiscoverer_EmptyCommand(t *testing.T) {
	_, err := NewDiscoverer(nil).Discover()

	require.IsType(t, &errors.ServerNotFoundError{}, err)
}

// TestBuildEnvironment_EnvVarsPassedToSubprocess tests environment variable handling.
func TestBuildEnvironment_EnvVarsPassedToSubprocess(t *testing.T) {
	t.Setenv("LSPIPE_OVERRIDDEN", "old")

	env := BuildEnvironment(map[string]string{
		"CUSTOM_VAR":        "custom_value",
		"LSPIPE_OVERRIDDEN": "new",
	})
	require.NotNil(t, env)

	require.True(t, slices.Contains(env, "CUSTOM_VAR=custom_value"),
		"Expected CUSTOM_VAR=custom_value in environment")
	require.True(t, slices.Contains(env, "LSPIPE_OVERRIDDEN=new"))
	require.False(t, slices.Contains(env, "LSPIPE_OVERRIDDEN=old"))
}

func TestBuildEnvironment_NoExtra(t *testing.T) {
	require.Equal(t, os.Environ(), BuildEnvironment(nil))
}
