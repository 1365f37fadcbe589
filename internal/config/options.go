// Package config provides configuration types for the language server transport.
package config

import (
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// DefaultChannelCapacity is the number of messages each direction buffers
// before the producer blocks.
const DefaultChannelCapacity = 1024

// Options configures how the language server is launched and connected.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Cwd sets the working directory for the server process.
	// If empty, the server inherits the caller's working directory.
	Cwd string

	// Env adds or overrides environment variables for the server process.
	Env map[string]string

	// ServerPath is an explicit path to the server binary that skips discovery.
	ServerPath string

	// SearchPaths are extra directories searched after PATH.
	SearchPaths []string

	// ChannelCapacity bounds the inbound and outbound queues.
	// Default: 1024
	ChannelCapacity int

	// Stderr receives every chunk the server writes to its error stream.
	Stderr func(string)

	// InitializeTimeout bounds the initialize request.
	// If nil, LSPIPE_INITIALIZE_TIMEOUT (seconds) or 60s is used.
	InitializeTimeout *time.Duration

	// Settings are flat, dotted server settings sent with
	// workspace/didChangeConfiguration after initialization.
	Settings map[string]any

	// SettingsSchema, when set, must accept the nested settings before they
	// are sent to the server.
	SettingsSchema *jsonschema.Schema
}

// Capacity returns the configured channel capacity or the default.
func (o *Options) Capacity() int {
	if o == nil || o.ChannelCapacity <= 0 {
		return DefaultChannelCapacity
	}

	return o.ChannelCapacity
}
