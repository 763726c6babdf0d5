// Package handlers defines the handler calling convention, the handler
// registry, and parameter helpers shared by the built-in handler
// collections.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/url"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
)

const logPrefix = "handlers:handlers"

// Segment requirements shared by the built-in route registrations.
const (
	NameRequirement    = `[a-zA-Z0-9\-\_]+`
	HostRequirement    = `[a-zA-Z0-9\-\_\.]+`
	AddressRequirement = `[a-zA-Z0-9\-\_\.]+`
)

// Handler is one unit of domain logic: it accepts a call envelope and a
// remote-call client and produces a response. Handlers never write HTTP;
// status mapping belongs to the dispatcher.
type Handler func(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response

// ParseQueryString parses a raw query string into a flat parameter
// mapping. Single values collapse to strings, repeated keys become string
// lists; values are HTML-escaped.
func ParseQueryString(qs string) map[string]interface{} {
	params := make(map[string]interface{})
	if qs == "" {
		return params
	}

	// A malformed pair invalidates only itself; url.ParseQuery still
	// returns everything it could parse.
	values, err := url.ParseQuery(qs)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - partial query string parse: %v", logPrefix, err))
	}
	for key, value := range values {
		if len(value) == 1 {
			params[key] = html.EscapeString(value[0])
			continue
		}
		escaped := make([]string, len(value))
		for i, item := range value {
			escaped[i] = html.EscapeString(item)
		}
		params[key] = escaped
	}
	return params
}

// ReturnError logs the failing envelope and builds an error response for
// it. A *bus.RemoteProcedureCallError contributes its data payload.
func ReturnError(msg *jsonrpc.Message, err error, code int) *jsonrpc.Response {
	slog.Error(fmt.Sprintf("%s - error dealing with id=%s method=%s: %v",
		logPrefix, msg.ID, msg.Method, err))

	resp := jsonrpc.NewErrorResponse(msg.ID, code, err.Error())
	if rpcErr, ok := err.(*bus.RemoteProcedureCallError); ok {
		resp.Error.Data = rpcErr.Data
	}
	return resp
}

// DecodeParams re-marshals the envelope parameters into a typed value.
func DecodeParams(msg *jsonrpc.Message, out interface{}) error {
	data, err := json.Marshal(msg.Params)
	if err != nil {
		return fmt.Errorf("%s - encode params: %w", logPrefix, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s - decode params: %w", logPrefix, err)
	}
	return nil
}

// StringParam fetches a string parameter from the envelope, or "" when it
// is absent or not a string.
func StringParam(msg *jsonrpc.Message, key string) string {
	if v, ok := msg.Params[key].(string); ok {
		return v
	}
	return ""
}

// StringSliceParam fetches a list-of-strings parameter from the envelope.
// The second return is false when the key is absent or any element is not
// a string.
func StringSliceParam(msg *jsonrpc.Message, key string) ([]string, bool) {
	raw, ok := msg.Params[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
