// Package cli locates language server binaries and builds their process
// environment.
//
// The Discoverer interface resolves a command name to an executable path:
//
//	discoverer := cli.NewDiscoverer(&cli.Config{
//	    Command: "gopls",
//	    Logger:  slog.Default(),
//	})
//	path, err := discoverer.Discover()
//
// Discovery searches in the following order:
//  1. Explicit path in Config.ServerPath (if provided)
//  2. The command itself when it is a path
//  3. System PATH
//  4. Config.SearchPaths and common installation directories
//     (/usr/local/bin, ~/.local/bin, ~/go/bin)
package cli
