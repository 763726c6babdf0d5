package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
)

func stub(_ context.Context, msg *jsonrpc.Message, _ bus.Caller) *jsonrpc.Response {
	return jsonrpc.NewResponse(msg.ID, "stub")
}

func TestRegistry_ResolveQualifiedNames(t *testing.T) {
	r := NewRegistry(Collection{
		Name:     "clusters",
		Handlers: map[string]Handler{"list": stub, "get": stub},
	})

	if r.Len() != 2 {
		t.Errorf("handlers:registry_test - Len = %d, want 2", r.Len())
	}
	if r.Resolve("clusters.list") == nil {
		t.Error("handlers:registry_test - clusters.list should resolve")
	}
	if r.Resolve("clusters.missing") != nil {
		t.Error("handlers:registry_test - clusters.missing should not resolve")
	}
	if r.Resolve("list") != nil {
		t.Error("handlers:registry_test - unqualified name should not resolve")
	}
}

func TestRegistry_SkipsUnusableCollections(t *testing.T) {
	r := NewRegistry(
		Collection{Name: "", Handlers: map[string]Handler{"x": stub}},
		Collection{Name: "empty"},
		Collection{Name: "mixed", Handlers: map[string]Handler{"ok": stub, "broken": nil}},
	)

	if r.Len() != 1 {
		t.Errorf("handlers:registry_test - Len = %d, want 1", r.Len())
	}
	if r.Resolve("mixed.ok") == nil {
		t.Error("handlers:registry_test - mixed.ok should resolve")
	}
	if r.Resolve("mixed.broken") != nil {
		t.Error("handlers:registry_test - nil handler should be skipped")
	}
}

func TestRegistry_ReloadIsAtomicUnderReaders(t *testing.T) {
	r := NewRegistry(Collection{
		Name:     "clusters",
		Handlers: map[string]Handler{"list": stub},
	})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers must always observe a complete snapshot.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if r.Resolve("clusters.list") == nil {
					t.Error("handlers:registry_test - reader observed missing handler")
					return
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		r.Reload()
	}
	close(stop)
	wg.Wait()
}
