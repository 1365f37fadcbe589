// Package settings turns flat, dotted editor settings into the nested JSON
// object a language server expects in workspace/didChangeConfiguration.
//
// A setting named "gopls.ui.completion.usePlaceholders" becomes
//
//	{"gopls": {"ui": {"completion": {"usePlaceholders": ...}}}}
//
// Settings that cannot be placed are reported and skipped; the rest are
// still applied.
package settings

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DidChangeConfigurationMethod is the notification that carries settings to
// the server.
const DidChangeConfigurationMethod = "workspace/didChangeConfiguration"

// Table is the TOML table that holds the settings.
const Table = "settings"

// reservedPathChars have a meaning in gjson/sjson paths and cannot appear in
// a setting name.
const reservedPathChars = `*?|#@\:`

// KeyError describes a setting that was skipped.
type KeyError struct {
	Key    string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("setting %q skipped: %s", e.Key, e.Reason)
}

// Nest builds a nested JSON object from flat settings.
//
// Keys are applied in sorted order. Each key is split on '.', the last part
// being the local name and the others the path of objects leading to it.
// A key is skipped with a *KeyError when its local name is empty, a path
// segment is empty or holds a reserved character, a prefix already holds a
// non-object value, the key itself is already set, or the value cannot be
// represented in JSON.
func Nest(log *slog.Logger, flat map[string]any) (json.RawMessage, []error) {
	log = log.With("component", "settings")

	doc := []byte(`{}`)

	var problems []error

	for _, key := range slices.Sorted(maps.Keys(flat)) {
		next, err := insert(doc, key, flat[key])
		if err != nil {
			log.Warn("Could not apply setting", "key", key, "error", err)
			problems = append(problems, err)

			continue
		}

		doc = next
	}

	return json.RawMessage(doc), problems
}

func insert(doc []byte, key string, value any) ([]byte, error) {
	parts := strings.Split(key, ".")

	local := parts[len(parts)-1]
	if local == "" {
		return nil, &KeyError{Key: key, Reason: "empty local name"}
	}

	path := make([]string, 0, len(parts))

	for i, part := range parts {
		if part == "" {
			return nil, &KeyError{Key: key, Reason: "empty path segment"}
		}

		if strings.ContainsAny(part, reservedPathChars) {
			return nil, &KeyError{Key: key, Reason: fmt.Sprintf("segment %q holds a reserved character", part)}
		}

		path = append(path, part)

		current := gjson.GetBytes(doc, strings.Join(path, "."))
		if !current.Exists() {
			continue
		}

		if i == len(parts)-1 {
			return nil, &KeyError{Key: key, Reason: "would replace existing value " + current.Raw}
		}

		if !current.IsObject() {
			return nil, &KeyError{
				Key:    key,
				Reason: fmt.Sprintf("expected %q to be an object, found %s", strings.Join(parts[:i+1], "."), current.Raw),
			}
		}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &KeyError{Key: key, Reason: "value is not representable as JSON: " + err.Error()}
	}

	setPath := make([]string, len(parts))
	for i, part := range parts {
		setPath[i] = forceKey(part)
	}

	next, err := sjson.SetRawBytes(doc, strings.Join(setPath, "."), raw)
	if err != nil {
		return nil, &KeyError{Key: key, Reason: err.Error()}
	}

	return next, nil
}

// forceKey makes sjson create an object member even for numeric names,
// which it would otherwise treat as array indexes.
func forceKey(part string) string {
	if strings.Trim(part, "0123456789") == "" {
		return ":" + part
	}

	return part
}

// ParseTOML reads the flat settings from the [settings] table of a TOML
// document. A document without that table has no settings.
func ParseTOML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	raw, ok := doc[Table]
	if !ok {
		return map[string]any{}, nil
	}

	table, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse settings: %q is a %T, not a table", Table, raw)
	}

	return table, nil
}

// Validate checks nested settings against schema.
func Validate(schema *jsonschema.Schema, nested json.RawMessage) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve settings schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(nested, &instance); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	return nil
}

// DidChangeConfiguration builds the notification carrying nested settings.
// It fails when nested is not a JSON document.
func DidChangeConfiguration(nested json.RawMessage) (*jsonrpc.Request, error) {
	if len(nested) == 0 {
		nested = json.RawMessage(`{}`)
	}

	params, err := json.Marshal(map[string]json.RawMessage{"settings": nested})
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", DidChangeConfigurationMethod, err)
	}

	return &jsonrpc.Request{Method: DidChangeConfigurationMethod, Params: params}, nil
}

// Section returns the part of nested settings addressed by a dotted
// configuration section, as used by workspace/configuration. An empty
// section addresses the whole object. Missing sections yield JSON null.
func Section(nested json.RawMessage, section string) json.RawMessage {
	if section == "" {
		if len(nested) == 0 {
			return json.RawMessage(`null`)
		}

		return nested
	}

	if strings.ContainsAny(section, reservedPathChars) {
		return json.RawMessage(`null`)
	}

	value := gjson.GetBytes(nested, section)
	if !value.Exists() {
		return json.RawMessage(`null`)
	}

	return json.RawMessage(value.Raw)
}
