package protocol

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"

	"github.com/wagiedev/lspipe/internal/config"
	"github.com/wagiedev/lspipe/internal/errors"
	"github.com/wagiedev/lspipe/internal/message"
	"github.com/wagiedev/lspipe/internal/settings"
)

// Lifecycle methods.
const (
	InitializeMethod    = "initialize"
	InitializedMethod   = "initialized"
	ShutdownMethod      = "shutdown"
	ConfigurationMethod = "workspace/configuration"
)

const (
	// defaultInitializeTimeout is the default timeout for the initialize request.
	defaultInitializeTimeout = 60 * time.Second

	// initializeTimeoutEnv overrides the default initialize timeout, in seconds.
	initializeTimeoutEnv = "LSPIPE_INITIALIZE_TIMEOUT"
)

// Session runs the lifecycle of a language server conversation on top of a
// Controller: the initialize handshake, configuration, and shutdown.
type Session struct {
	log        *slog.Logger
	controller *Controller
	options    *config.Options

	// Nested settings last sent to the server (protected by settingsMu)
	settingsMu sync.RWMutex
	settings   json.RawMessage

	// Server initialize result (protected by initMu)
	initMu           sync.RWMutex
	initializeResult json.RawMessage
}

// NewSession creates a new Session for protocol handling.
func NewSession(
	log *slog.Logger,
	controller *Controller,
	options *config.Options,
) *Session {
	return &Session{
		log:        log.With("component", "session"),
		controller: controller,
		options:    options,
		settings:   json.RawMessage(`{}`),
	}
}

// RegisterHandlers registers handlers for server requests the session
// answers. This must be called before Initialize().
func (s *Session) RegisterHandlers() {
	s.controller.RegisterHandler(ConfigurationMethod, s.HandleConfiguration)
}

// Initialize performs the initialize handshake: it sends the initialize
// request, records the result, and sends the initialized notification.
// Settings from the options are then applied.
func (s *Session) Initialize(ctx context.Context, params any) (json.RawMessage, error) {
	s.log.Debug("Sending initialize request")

	timeout := s.getInitializeTimeout()

	result, err := s.controller.Call(ctx, InitializeMethod, params, timeout)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	s.initMu.Lock()
	s.initializeResult = result
	s.initMu.Unlock()

	if err := s.controller.Notify(ctx, InitializedMethod, json.RawMessage(`{}`)); err != nil {
		return nil, fmt.Errorf("initialized: %w", err)
	}

	if s.options != nil && len(s.options.Settings) > 0 {
		if _, err := s.ApplySettings(ctx, s.options.Settings); err != nil {
			return nil, err
		}
	}

	s.log.Info("Language server initialized",
		"server", gjson.GetBytes(result, "serverInfo.name").String(),
		"version", gjson.GetBytes(result, "serverInfo.version").String(),
	)

	return result, nil
}

// getInitializeTimeout returns the initialize timeout from options, env var, or default.
func (s *Session) getInitializeTimeout() time.Duration {
	if s.options != nil && s.options.InitializeTimeout != nil {
		return *s.options.InitializeTimeout
	}

	if timeoutStr := os.Getenv(initializeTimeoutEnv); timeoutStr != "" {
		if timeoutSec, err := strconv.Atoi(timeoutStr); err == nil && timeoutSec > 0 {
			return time.Duration(timeoutSec) * time.Second
		}
	}

	return defaultInitializeTimeout
}

// InitializeResult returns a copy of the server's initialize result.
// Returns nil if not initialized.
func (s *Session) InitializeResult() json.RawMessage {
	s.initMu.RLock()
	defer s.initMu.RUnlock()

	return bytes.Clone(s.initializeResult)
}

// ApplySettings nests flat settings, remembers them for
// workspace/configuration, and sends them with
// workspace/didChangeConfiguration. Settings that could not be placed are
// returned; they do not prevent the rest from being sent. When the options
// carry a schema, nested settings it rejects are neither kept nor sent.
func (s *Session) ApplySettings(ctx context.Context, flat map[string]any) ([]error, error) {
	nested, problems := settings.Nest(s.log, flat)

	if s.options != nil && s.options.SettingsSchema != nil {
		if err := settings.Validate(s.options.SettingsSchema, nested); err != nil {
			s.log.Warn("Settings rejected by schema", "error", err)

			return problems, err
		}
	}

	note, err := settings.DidChangeConfiguration(nested)
	if err != nil {
		return problems, fmt.Errorf("apply settings: %w", err)
	}

	s.settingsMu.Lock()
	s.settings = nested
	s.settingsMu.Unlock()

	if err := s.controller.Notify(ctx, note.Method, note.Params); err != nil {
		return problems, fmt.Errorf("apply settings: %w", err)
	}

	s.log.Debug("Settings applied", "skipped", len(problems))

	return problems, nil
}

// Settings returns the nested settings last applied.
func (s *Session) Settings() json.RawMessage {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()

	return bytes.Clone(s.settings)
}

// HandleConfiguration answers workspace/configuration with one value per
// requested item, looked up by section in the applied settings.
func (s *Session) HandleConfiguration(_ context.Context, req *jsonrpc.Request) (any, error) {
	items := gjson.GetBytes(req.Params, "items")
	if !items.IsArray() {
		return nil, &errors.ResponseError{
			Method:  ConfigurationMethod,
			Code:    message.CodeInvalidParams,
			Message: "params.items must be an array",
		}
	}

	nested := s.Settings()

	var values []json.RawMessage

	for _, item := range items.Array() {
		values = append(values, settings.Section(nested, item.Get("section").String()))
	}

	s.log.Debug("Answered configuration request", "items", len(values))

	if values == nil {
		values = []json.RawMessage{}
	}

	return values, nil
}

// Shutdown asks the server to stop: a shutdown request, then the exit
// notification, then end of input. Input is ended even when the shutdown
// request fails, so the server always sees its stdin close.
func (s *Session) Shutdown(ctx context.Context, timeout time.Duration) error {
	defer s.controller.EndInput()

	s.log.Debug("Sending shutdown request")

	if _, err := s.controller.Call(ctx, ShutdownMethod, nil, timeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := s.controller.Notify(ctx, message.ExitMethod, nil); err != nil {
		return fmt.Errorf("exit: %w", err)
	}

	return nil
}
