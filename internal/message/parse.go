package message

import (
	"fmt"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"

	"github.com/wagiedev/lspipe/internal/errors"
)

// Classify decodes a frame body into a ServerMessage.
//
// Classification is a single inspection of the JSON shape. Response markers
// (a "result" or "error" member) are checked before call markers (a "method"
// member); a payload carrying both is a response if it has a valid response
// shape, and falls back to a call otherwise.
//
// Returns a FramingError of kind UnrecognizedMessage when the body is neither.
func Classify(body []byte) (ServerMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, unrecognized("body is not valid JSON")
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, unrecognized("body is not a JSON object")
	}

	if v := doc.Get("jsonrpc"); v.Exists() && (v.Type != gjson.String || v.Str != "2.0") {
		return nil, unrecognized(fmt.Sprintf("unsupported jsonrpc version %s", v.Raw))
	}

	var responseErr error

	result, rpcErr := doc.Get("result"), doc.Get("error")
	if result.Exists() || rpcErr.Exists() {
		resp, err := parseResponse(doc.Get("id"), result, rpcErr)
		if err == nil {
			return resp, nil
		}

		responseErr = err
	}

	if method := doc.Get("method"); method.Exists() {
		req, err := parseCall(doc.Get("id"), method, doc.Get("params"))
		if err != nil {
			return nil, unrecognized(err.Error())
		}

		return req, nil
	}

	if responseErr != nil {
		return nil, unrecognized(responseErr.Error())
	}

	return nil, unrecognized("no result, error, or method member")
}

// parseResponse validates the Output shape: an identifier and exactly one of
// result and error.
func parseResponse(idField, result, rpcErr gjson.Result) (*jsonrpc.Response, error) {
	if result.Exists() && rpcErr.Exists() {
		return nil, fmt.Errorf("response carries both result and error")
	}

	if !idField.Exists() {
		return nil, fmt.Errorf("response has no id")
	}

	if idField.Type == gjson.Null && !rpcErr.Exists() {
		return nil, fmt.Errorf("success response has null id")
	}

	id, err := parseID(idField)
	if err != nil {
		return nil, err
	}

	resp := &jsonrpc.Response{ID: id}

	if result.Exists() {
		resp.Result = json.RawMessage(result.Raw)

		return resp, nil
	}

	if !rpcErr.IsObject() {
		return nil, fmt.Errorf("error member is not an object")
	}

	if rpcErr.Get("code").Type != gjson.Number || rpcErr.Get("message").Type != gjson.String {
		return nil, fmt.Errorf("error object needs a numeric code and a string message")
	}

	var wire jsonrpc.Error
	if err := json.Unmarshal([]byte(rpcErr.Raw), &wire); err != nil {
		return nil, fmt.Errorf("decode error object: %w", err)
	}

	resp.Error = &wire

	return resp, nil
}

// parseCall validates the Call shape: a method name, optional structured
// params, and an optional identifier.
func parseCall(idField, method, params gjson.Result) (*jsonrpc.Request, error) {
	if method.Type != gjson.String || method.Str == "" {
		return nil, fmt.Errorf("method is not a non-empty string")
	}

	req := &jsonrpc.Request{Method: method.Str}

	if params.Exists() {
		if !params.IsObject() && !params.IsArray() && params.Type != gjson.Null {
			return nil, fmt.Errorf("params of %s must be an object, array or null", method.Str)
		}

		req.Params = json.RawMessage(params.Raw)
	}

	id, err := parseID(idField)
	if err != nil {
		return nil, err
	}

	req.ID = id

	return req, nil
}

// parseID accepts string identifiers and integers within ±MaxIntID. An
// absent or null member yields the zero ID.
func parseID(v gjson.Result) (jsonrpc.ID, error) {
	switch v.Type {
	case gjson.Null:
		return jsonrpc.ID{}, nil
	case gjson.String:
		return StringID(v.Str), nil
	case gjson.Number:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return jsonrpc.ID{}, fmt.Errorf("id %s is not an integer", v.Raw)
		}

		if n > MaxIntID || n < -MaxIntID {
			return jsonrpc.ID{}, fmt.Errorf("id %s is out of range", v.Raw)
		}

		return IntID(n), nil
	default:
		return jsonrpc.ID{}, fmt.Errorf("id %s is neither a number nor a string", v.Raw)
	}
}

func unrecognized(detail string) error {
	return &errors.FramingError{Kind: errors.UnrecognizedMessage, Detail: detail}
}
