// Package networks implements the network handlers.
package networks

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

const logPrefix = "handlers:networks"

// Collection returns the statically declared handler table for this
// package.
func Collection() handlers.Collection {
	return handlers.Collection{
		Name: "networks",
		Handlers: map[string]handlers.Handler{
			"list":   List,
			"get":    Get,
			"create": Create,
			"delete": Delete,
		},
	}
}

// Register attaches the network routes to a route table.
func Register(t *routing.Table) error {
	nameReq := map[string]string{"name": handlers.NameRequirement}

	routes := []routing.Route{
		{Pattern: "/api/v0/networks/", Methods: []string{"GET"}, Handler: List},
		{Pattern: "/api/v0/network/{name}/", Methods: []string{"GET"}, Requirements: nameReq, Handler: Get},
		{Pattern: "/api/v0/network/{name}/", Methods: []string{"PUT"}, Requirements: nameReq, Handler: Create},
		{Pattern: "/api/v0/network/{name}/", Methods: []string{"DELETE"}, Requirements: nameReq, Handler: Delete},
	}
	for _, r := range routes {
		if err := t.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// List answers with the names of all networks.
func List(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	networks, err := bus.NewStorageClient(client).ListNetworks(ctx)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	names := make([]string, len(networks))
	for i, network := range networks {
		names[i] = network.Name
	}
	return jsonrpc.NewResponse(msg.ID, names)
}

// Get answers with one network.
func Get(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	network, err := bus.NewStorageClient(client).GetNetwork(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, network)
}

// Create stores a new network. Re-PUTting an identical network answers
// with the stored copy; a different definition under the same name is a
// conflict.
func Create(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)

	var network models.Network
	if err := handlers.DecodeParams(msg, &network); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}

	existing, err := store.GetNetwork(ctx, network.Name)
	if err == nil {
		slog.Debug(fmt.Sprintf("%s - creation of already existing network %q requested",
			logPrefix, network.Name))
		if reflect.DeepEqual(existing, &network) {
			return jsonrpc.NewResponse(msg.ID, existing)
		}
		return handlers.ReturnError(msg,
			errors.New("a network with that name already exists"),
			jsonrpc.Conflict)
	}
	slog.Debug(fmt.Sprintf("%s - attempting to create new network %q", logPrefix, network.Name))

	if err := network.Validate(); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}
	saved, err := store.SaveNetwork(ctx, &network)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, saved)
}

// Delete removes an existing network.
func Delete(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	name := handlers.StringParam(msg, "name")
	slog.Debug(fmt.Sprintf("%s - attempting to delete network %q", logPrefix, name))
	if err := bus.NewStorageClient(client).DeleteNetwork(ctx, name); err != nil {
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
