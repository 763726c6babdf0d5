package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
)

const serviceLogPrefix = "storage:service"

// ServiceVersion is the storage service's semantic version, answered on
// the version call and checked by the gateway at startup.
const ServiceVersion = "0.1.0"

// handleTimeout bounds the store work for one inbound call.
const handleTimeout = 15 * time.Second

// Service answers storage calls on a COMMS request/reply subject. Calls
// carry positional parameters: list(kind), get(kind, key), save(kind,
// record), delete(kind, key), version().
type Service struct {
	nc       *comms.Conn
	store    Store
	notifier Notifier
	sub      *comms.Subscription
}

// NewService creates a Service over the given store. A nil notifier
// disables change events.
func NewService(nc *comms.Conn, store Store, notifier Notifier) *Service {
	if notifier == nil {
		notifier = &NoOpNotifier{}
	}
	return &Service{nc: nc, store: store, notifier: notifier}
}

// Start subscribes the service on subject as part of queue group queue,
// so multiple instances share the load.
func (s *Service) Start(subject, queue string) error {
	sub, err := s.nc.QueueSubscribe(subject, queue, s.handle)
	if err != nil {
		return fmt.Errorf("%s - subscribe %s: %w", serviceLogPrefix, subject, err)
	}
	s.sub = sub
	slog.Info(fmt.Sprintf("%s - Listening on %s (queue %s)", serviceLogPrefix, subject, queue))
	return nil
}

// Stop drains the subscription so in-flight calls finish.
func (s *Service) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Service) handle(msg *comms.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var req jsonrpc.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		slog.Debug(fmt.Sprintf("%s - undecodable request: %v", serviceLogPrefix, err))
		s.reply(msg, jsonrpc.NewErrorResponse("", jsonrpc.ParseError, err.Error()))
		return
	}

	slog.Debug(fmt.Sprintf("%s - call method=%s id=%s", serviceLogPrefix, req.Method, req.ID))

	var resp *jsonrpc.Response
	switch req.Method {
	case "version":
		resp = jsonrpc.NewResponse(req.ID, map[string]string{"version": ServiceVersion})
	case "list":
		resp = s.list(ctx, &req)
	case "get":
		resp = s.get(ctx, &req)
	case "save":
		resp = s.save(ctx, &req)
	case "delete":
		resp = s.delete(ctx, &req)
	default:
		resp = jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.MethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
	s.reply(msg, resp)
}

func (s *Service) reply(msg *comms.Msg, resp *jsonrpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", serviceLogPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - respond: %v", serviceLogPrefix, err))
	}
}

func (s *Service) list(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	kind, _, resp := s.address(req, false)
	if resp != nil {
		return resp
	}
	records, err := s.store.List(ctx, kind)
	if err != nil {
		return s.storeError(req, err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return jsonrpc.NewResponse(req.ID, records)
}

func (s *Service) get(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	kind, key, resp := s.address(req, true)
	if resp != nil {
		return resp
	}
	record, err := s.store.Get(ctx, kind, key)
	if err != nil {
		return s.storeError(req, err)
	}
	return jsonrpc.NewResponse(req.ID, record)
}

func (s *Service) save(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if len(req.Params) < 2 {
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "save expects kind and record")
	}
	kind, ok := req.Params[0].(string)
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "kind must be a string")
	}
	raw, err := json.Marshal(req.Params[1])
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "record is not encodable")
	}

	key, clean, err := normalizeRecord(kind, raw)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidRequest, err.Error())
	}

	event := EventUpdated
	if _, err := s.store.Get(ctx, kind, key); errors.Is(err, ErrNotFound) {
		event = EventCreated
	}

	if err := s.store.Save(ctx, kind, key, clean); err != nil {
		return s.storeError(req, err)
	}
	s.notify(ctx, kind, key, event, clean)
	return jsonrpc.NewResponse(req.ID, json.RawMessage(clean))
}

func (s *Service) delete(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	kind, key, resp := s.address(req, true)
	if resp != nil {
		return resp
	}
	if err := s.store.Delete(ctx, kind, key); err != nil {
		return s.storeError(req, err)
	}
	s.notify(ctx, kind, key, EventDeleted, nil)
	return jsonrpc.NewResponse(req.ID, map[string]interface{}{})
}

// address extracts kind (and, when withKey, the record key) from the
// positional params of a list, get, or delete call.
func (s *Service) address(req *jsonrpc.Request, withKey bool) (string, string, *jsonrpc.Response) {
	if len(req.Params) < 1 {
		return "", "", jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "missing record kind")
	}
	kind, ok := req.Params[0].(string)
	if !ok {
		return "", "", jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "kind must be a string")
	}
	field, err := keyField(kind)
	if err != nil {
		return "", "", jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, err.Error())
	}
	if !withKey {
		return kind, "", nil
	}

	if len(req.Params) < 2 {
		return "", "", jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "missing record key")
	}
	keyDoc, ok := req.Params[1].(map[string]interface{})
	if !ok {
		return "", "", jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, "key must be a document")
	}
	key, ok := keyDoc[field].(string)
	if !ok || key == "" {
		return "", "", jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.InvalidParameters, fmt.Sprintf("key document missing %q", field))
	}
	return kind, key, nil
}

func (s *Service) storeError(req *jsonrpc.Request, err error) *jsonrpc.Response {
	if errors.Is(err, ErrNotFound) {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NotFound, "record not found")
	}
	slog.Error(fmt.Sprintf("%s - store failure for %s: %v", serviceLogPrefix, req.Method, err))
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InternalError, "storage failure")
}

func (s *Service) notify(ctx context.Context, kind, key, event string, record json.RawMessage) {
	change := &ChangeEvent{
		Kind:      kind,
		Key:       key,
		Event:     event,
		Record:    record,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.notifier.PublishChange(ctx, change); err != nil {
		slog.Error(fmt.Sprintf("%s - publish %s event for %s/%s: %v",
			serviceLogPrefix, event, kind, key, err))
	}
}
