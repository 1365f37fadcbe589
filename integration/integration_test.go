//go:build integration

package integration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/lspipe"
)

// serverCommand is the language server the integration tests drive.
const serverCommand = "gopls"

// skipIfServerNotInstalled skips the test if the error indicates gopls is not found.
func skipIfServerNotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*lspipe.ServerNotFoundError](err); ok {
		t.Skip("gopls not installed")
	}
}

// newWorkspace writes a one-file Go module and returns its directory.
func newWorkspace(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/w\n\ngo 1.22\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(`package main

func Answer() int { return 42 }

func main() { _ = Answer() }
`), 0o600))

	return dir
}

// initializeParams returns minimal initialize params rooted at dir.
func initializeParams(dir string) map[string]any {
	return map[string]any{
		"processId":    os.Getpid(),
		"rootUri":      "file://" + filepath.ToSlash(dir),
		"capabilities": map[string]any{"workspace": map[string]any{"configuration": true}},
	}
}
