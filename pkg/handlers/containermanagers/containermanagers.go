// Package containermanagers implements the container manager handlers.
package containermanagers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/handlers"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
	"github.com/morezero/cluster-gateway/pkg/models"
	"github.com/morezero/cluster-gateway/pkg/routing"
)

const logPrefix = "handlers:containermanagers"

// Collection returns the statically declared handler table for this
// package.
func Collection() handlers.Collection {
	return handlers.Collection{
		Name: "containermanagers",
		Handlers: map[string]handlers.Handler{
			"list":   List,
			"get":    Get,
			"create": Create,
			"delete": Delete,
		},
	}
}

// Register attaches the container manager routes to a route table.
func Register(t *routing.Table) error {
	nameReq := map[string]string{"name": handlers.NameRequirement}

	routes := []routing.Route{
		{Pattern: "/api/v0/containermanagers/", Methods: []string{"GET"}, Handler: List},
		{Pattern: "/api/v0/containermanager/{name}/", Methods: []string{"GET"}, Requirements: nameReq, Handler: Get},
		{Pattern: "/api/v0/containermanager/{name}/", Methods: []string{"PUT"}, Requirements: nameReq, Handler: Create},
		{Pattern: "/api/v0/containermanager/{name}/", Methods: []string{"DELETE"}, Requirements: nameReq, Handler: Delete},
	}
	for _, r := range routes {
		if err := t.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// List answers with the names of all container managers.
func List(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	managers, err := bus.NewStorageClient(client).ListContainerManagers(ctx)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	names := make([]string, len(managers))
	for i, manager := range managers {
		names[i] = manager.Name
	}
	return jsonrpc.NewResponse(msg.ID, names)
}

// Get answers with one container manager.
func Get(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	manager, err := bus.NewStorageClient(client).GetContainerManager(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, manager)
}

// Create stores a new container manager. Re-PUTting an identical manager
// answers with the stored copy; a different definition under the same
// name is a conflict.
func Create(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)

	var manager models.ContainerManager
	if err := handlers.DecodeParams(msg, &manager); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}

	existing, err := store.GetContainerManager(ctx, manager.Name)
	if err == nil {
		slog.Debug(fmt.Sprintf("%s - creation of already existing container manager %q requested",
			logPrefix, manager.Name))
		if reflect.DeepEqual(existing, &manager) {
			return jsonrpc.NewResponse(msg.ID, existing)
		}
		return handlers.ReturnError(msg,
			errors.New("a container manager with that name already exists"),
			jsonrpc.Conflict)
	}
	slog.Debug(fmt.Sprintf("%s - attempting to create new container manager %q", logPrefix, manager.Name))

	if err := manager.Validate(); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}
	saved, err := store.SaveContainerManager(ctx, &manager)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, saved)
}

// Delete removes an existing container manager.
func Delete(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	name := handlers.StringParam(msg, "name")
	slog.Debug(fmt.Sprintf("%s - attempting to delete container manager %q", logPrefix, name))
	if err := bus.NewStorageClient(client).DeleteContainerManager(ctx, name); err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, []string{})
}

func errorCode(err error) int {
	var rpcErr *bus.RemoteProcedureCallError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return jsonrpc.InternalError
}
