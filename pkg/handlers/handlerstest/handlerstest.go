// Package handlerstest provides an in-memory stand-in for the storage
// service so handler packages can be tested without a bus.
package handlerstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
	"github.com/morezero/cluster-gateway/pkg/models"
)

// FakeStore answers the storage service calling convention from in-memory
// maps. It implements bus.Caller.
type FakeStore struct {
	records map[string]map[string]interface{}
}

// NewFakeStore returns an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{records: map[string]map[string]interface{}{}}
}

// Put seeds a record directly, bypassing validation.
func (f *FakeStore) Put(kind string, record interface{}) {
	doc := asDoc(record)
	if f.records[kind] == nil {
		f.records[kind] = map[string]interface{}{}
	}
	f.records[kind][docKey(kind, doc)] = doc
}

// Request implements bus.Caller over the in-memory maps. Missing records
// answer with the same structured not-found error the real service uses.
func (f *FakeStore) Request(_ context.Context, method string, params []interface{}) (interface{}, error) {
	switch method {
	case "list":
		kind, _ := params[0].(string)
		keys := make([]string, 0, len(f.records[kind]))
		for key := range f.records[kind] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := make([]interface{}, 0, len(keys))
		for _, key := range keys {
			out = append(out, f.records[kind][key])
		}
		return out, nil
	case "get":
		kind, _ := params[0].(string)
		record, ok := f.records[kind][docKey(kind, asDoc(params[1]))]
		if !ok {
			return nil, &bus.RemoteProcedureCallError{Code: jsonrpc.NotFound, Message: "record not found"}
		}
		return record, nil
	case "save":
		kind, _ := params[0].(string)
		doc := asDoc(params[1])
		if f.records[kind] == nil {
			f.records[kind] = map[string]interface{}{}
		}
		f.records[kind][docKey(kind, doc)] = doc
		return doc, nil
	case "delete":
		kind, _ := params[0].(string)
		key := docKey(kind, asDoc(params[1]))
		if _, ok := f.records[kind][key]; !ok {
			return nil, &bus.RemoteProcedureCallError{Code: jsonrpc.NotFound, Message: "record not found"}
		}
		delete(f.records[kind], key)
		return map[string]interface{}{}, nil
	}
	return nil, fmt.Errorf("unexpected storage method %q", method)
}

func asDoc(record interface{}) map[string]interface{} {
	data, _ := json.Marshal(record)
	var doc map[string]interface{}
	_ = json.Unmarshal(data, &doc)
	return doc
}

func docKey(kind string, doc map[string]interface{}) string {
	field := "name"
	if kind == models.KindHost {
		field = "address"
	}
	key, _ := doc[field].(string)
	return key
}

// Message builds a handler envelope with a fresh id.
func Message(method string, params map[string]interface{}) *jsonrpc.Message {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &jsonrpc.Message{ID: jsonrpc.NewID(), Method: method, Params: params}
}

// DecodeResult fails the test on an error response, otherwise decodes the
// result into out.
func DecodeResult(t *testing.T, resp *jsonrpc.Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("handlerstest - unexpected error response: %v", resp.Error)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("handlerstest - could not re-encode result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("handlerstest - could not decode result: %v", err)
	}
}

// ErrorCode fails the test on a success response, otherwise returns the
// error code.
func ErrorCode(t *testing.T, resp *jsonrpc.Response) int {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("handlerstest - expected an error response, got result %v", resp.Result)
	}
	return resp.Error.Code
}
