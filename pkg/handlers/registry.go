package handlers

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

const registryLogPrefix = "handlers:registry"

// Collection is a statically declared set of handlers registered under a
// shared name. Entries resolve as "<collection>.<handler>".
type Collection struct {
	Name     string
	Handlers map[string]Handler
}

// Registry maps fully-qualified names to handlers. Reload rebuilds the
// whole mapping and publishes it atomically, so concurrent Resolve calls
// always observe a complete snapshot.
type Registry struct {
	collections []Collection
	snapshot    atomic.Pointer[map[string]Handler]
}

// NewRegistry builds a registry from the given collections and performs
// the initial load.
func NewRegistry(collections ...Collection) *Registry {
	r := &Registry{collections: collections}
	r.Reload()
	return r
}

// Reload rebuilds the handler mapping from the configured collections.
// Collections without a name or without handlers are skipped with a log
// entry; a reload never aborts.
func (r *Registry) Reload() {
	m := make(map[string]Handler)
	for _, col := range r.collections {
		if col.Name == "" || len(col.Handlers) == 0 {
			slog.Error(fmt.Sprintf("%s - skipping unusable handler collection %q",
				registryLogPrefix, col.Name))
			continue
		}
		for name, h := range col.Handlers {
			if h == nil {
				slog.Debug(fmt.Sprintf("%s - %s.%s can not be used as a handler",
					registryLogPrefix, col.Name, name))
				continue
			}
			key := col.Name + "." + name
			m[key] = h
			slog.Info(fmt.Sprintf("%s - loaded handler %s", registryLogPrefix, key))
		}
	}
	r.snapshot.Store(&m)
}

// Resolve looks up a handler by fully-qualified name, or nil when absent.
func (r *Registry) Resolve(name string) Handler {
	snapshot := r.snapshot.Load()
	if snapshot == nil {
		return nil
	}
	return (*snapshot)[name]
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	snapshot := r.snapshot.Load()
	if snapshot == nil {
		return 0
	}
	return len(*snapshot)
}
