package lspipe

import (
	"log/slog"
	"maps"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCwd sets the working directory for the server process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithEnv adds environment variables for the server process. Variables
// already present in the caller's environment are overridden.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		maps.Copy(o.Env, env)
	}
}

// ===== Server Discovery =====

// WithServerPath sets the explicit path to the server binary.
// If not set, the command is searched in PATH and then in the search paths.
func WithServerPath(path string) Option {
	return func(o *Options) {
		o.ServerPath = path
	}
}

// WithSearchPaths adds directories searched for the command after PATH.
func WithSearchPaths(paths ...string) Option {
	return func(o *Options) {
		o.SearchPaths = append(o.SearchPaths, paths...)
	}
}

// ===== Transport =====

// WithChannelCapacity bounds the inbound and outbound message queues.
// Non-positive values select the default of 1024.
func WithChannelCapacity(capacity int) Option {
	return func(o *Options) {
		o.ChannelCapacity = capacity
	}
}

// WithStderr sets a callback that receives everything the server writes to
// its error stream, chunk by chunk.
func WithStderr(callback func(string)) Option {
	return func(o *Options) {
		o.Stderr = callback
	}
}

// ===== Session =====

// WithInitializeTimeout bounds the initialize request.
// If not set, LSPIPE_INITIALIZE_TIMEOUT (seconds) or 60s is used.
func WithInitializeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.InitializeTimeout = &timeout
	}
}

// WithSettings sets flat, dotted server settings such as
// "gopls.ui.completion.usePlaceholders". They are sent after initialization
// and served to workspace/configuration requests.
func WithSettings(settings map[string]any) Option {
	return func(o *Options) {
		o.Settings = settings
	}
}

// WithSettingsSchema sets a JSON schema the nested settings must satisfy
// before they are sent.
func WithSettingsSchema(schema *jsonschema.Schema) Option {
	return func(o *Options) {
		o.SettingsSchema = schema
	}
}
