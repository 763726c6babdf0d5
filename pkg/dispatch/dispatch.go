// Package dispatch translates HTTP requests into call envelopes, invokes
// the matched handler, and translates the result back into an HTTP
// response.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/handlers"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
	"github.com/morezero/cluster-gateway/pkg/routing"
)

const logPrefix = "dispatch:dispatcher"

// statusForCode is the fixed error-code to HTTP-status policy. Codes not
// listed here escalate to 500, never to 200.
var statusForCode = map[int]int{
	jsonrpc.InvalidRequest:    http.StatusBadRequest,
	jsonrpc.InvalidParameters: http.StatusBadRequest,
	jsonrpc.NotFound:          http.StatusNotFound,
	jsonrpc.Conflict:          http.StatusConflict,
}

// Dispatcher executes one HTTP request end to end: route match, parameter
// extraction, envelope construction, handler invocation, and result
// translation. Safe for concurrent use once a client is attached.
type Dispatcher struct {
	table    *routing.Table
	registry *handlers.Registry
	client   bus.Caller
}

// NewDispatcher creates a Dispatcher over a route table and a handler
// registry. AttachClient must be called before the first dispatch.
func NewDispatcher(table *routing.Table, registry *handlers.Registry) *Dispatcher {
	return &Dispatcher{table: table, registry: registry}
}

// AttachClient installs the remote-call client handlers are invoked with.
// Call once after construction; the handle is never reassigned afterwards.
func (d *Dispatcher) AttachClient(client bus.Caller) {
	d.client = client
}

// Reload rebuilds the handler registry snapshot.
func (d *Dispatcher) Reload() {
	d.registry.Reload()
}

// ServeHTTP implements http.Handler. Dispatching before AttachClient is a
// programming error and panics.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.client == nil {
		panic("dispatch: client can not be nil when dispatching; call AttachClient first")
	}

	match := d.table.Match(r.URL.Path, r.Method)
	if match == nil {
		respondText(w, http.StatusNotFound, "Not Found")
		return
	}

	params, err := extractParams(r, match)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - parameter extraction failed for %s %s: %v",
			logPrefix, r.Method, r.URL.Path, err))
		respondText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	msg := &jsonrpc.Message{
		ID:     jsonrpc.NewID(),
		Method: r.Method,
		Params: params,
	}
	slog.Debug(fmt.Sprintf("%s - request transformed to id=%s method=%s params=%v",
		logPrefix, msg.ID, msg.Method, msg.Params))

	handler := match.Route.Handler
	if handler == nil {
		handler = d.registry.Resolve(match.Route.Controller)
		if handler == nil {
			slog.Debug(fmt.Sprintf("%s - no handler registered as %q",
				logPrefix, match.Route.Controller))
			respondText(w, http.StatusNotFound, "Not Found")
			return
		}
	}

	resp, ok := d.invoke(r.Context(), handler, msg, match.Route)
	if !ok {
		respondText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	d.translate(w, r.Method, match.Route, msg, resp)
}

// invoke runs the handler, containing any panic it raises. A contained
// panic is logged with full context and reported as not-ok.
func (d *Dispatcher) invoke(ctx context.Context, handler handlers.Handler, msg *jsonrpc.Message, route *routing.Route) (resp *jsonrpc.Response, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error(fmt.Sprintf(
				"%s - panic while %s handled id=%s method=%s params=%v: %v\n%s",
				logPrefix, routeIdentity(route), msg.ID, msg.Method, msg.Params,
				rec, debug.Stack()))
			resp, ok = nil, false
		}
	}()
	return handler(ctx, msg, d.client), true
}

// translate maps a handler response onto the HTTP boundary.
func (d *Dispatcher) translate(w http.ResponseWriter, method string, route *routing.Route, msg *jsonrpc.Message, resp *jsonrpc.Response) {
	if resp != nil && resp.Error != nil {
		slog.Error(fmt.Sprintf("%s - %s answered id=%s with error %d: %s",
			logPrefix, routeIdentity(route), msg.ID, resp.Error.Code, resp.Error.Message))

		status, known := statusForCode[resp.Error.Code]
		if !known {
			// A code outside the fixed table is a defect in the
			// handler, not a client outcome.
			slog.Error(fmt.Sprintf("%s - unmapped error code %d from %s for id=%s",
				logPrefix, resp.Error.Code, routeIdentity(route), msg.ID))
			respondText(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		respondJSON(w, status, resp.Error, route, msg)
		return
	}

	if resp != nil && resp.Result != nil {
		status := http.StatusOK
		if method == http.MethodPut && route.Action != routing.ActionAdd {
			// action=add endpoints add a member to a set; nothing
			// is created, so they stay 200 OK.
			status = http.StatusCreated
		}
		respondJSON(w, status, resp.Result, route, msg)
		return
	}

	// Malformed handler output: neither result nor error.
	respondText(w, http.StatusNotFound, "Not Found")
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func respondJSON(w http.ResponseWriter, status int, body interface{}, route *routing.Route, msg *jsonrpc.Message) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode response from %s for id=%s: %v",
			logPrefix, routeIdentity(route), msg.ID, err))
		respondText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func routeIdentity(route *routing.Route) string {
	if route.Controller != "" {
		return fmt.Sprintf("route %q controller %q", route.Pattern, route.Controller)
	}
	return fmt.Sprintf("route %q", route.Pattern)
}
