// Package hosts implements the host handlers.
package hosts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/handlers"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
	"github.com/morezero/cluster-gateway/pkg/models"
	"github.com/morezero/cluster-gateway/pkg/routing"
)

const logPrefix = "handlers:hosts"

// Collection returns the statically declared handler table for this
// package.
func Collection() handlers.Collection {
	return handlers.Collection{
		Name: "hosts",
		Handlers: map[string]handlers.Handler{
			"list":   List,
			"get":    Get,
			"create": Create,
			"delete": Delete,
			"creds":  Creds,
			"status": Status,
		},
	}
}

// Register attaches the host routes to a route table.
func Register(t *routing.Table) error {
	addressReq := map[string]string{"address": handlers.AddressRequirement}

	routes := []routing.Route{
		{Pattern: "/api/v0/hosts/", Methods: []string{"GET"}, Handler: List},
		{Pattern: "/api/v0/host/{address}/", Methods: []string{"GET"}, Requirements: addressReq, Handler: Get},
		{Pattern: "/api/v0/host/{address}/", Methods: []string{"PUT"}, Requirements: addressReq, Handler: Create},
		{Pattern: "/api/v0/host/{address}/", Methods: []string{"DELETE"}, Requirements: addressReq, Handler: Delete},
		{Pattern: "/api/v0/host/{address}/creds/", Methods: []string{"GET"}, Requirements: addressReq, Handler: Creds},
		{Pattern: "/api/v0/host/{address}/status/", Methods: []string{"GET"}, Requirements: addressReq, Handler: Status},
	}
	for _, r := range routes {
		if err := t.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// List answers with every host, credentials stripped.
func List(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	hosts, err := bus.NewStorageClient(client).ListHosts(ctx)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	safe := make([]*models.Host, len(hosts))
	for i := range hosts {
		safe[i] = hosts[i].Safe()
	}
	return jsonrpc.NewResponse(msg.ID, safe)
}

// Get answers with one host, credentials stripped.
func Get(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	address := handlers.StringParam(msg, "address")
	host, err := bus.NewStorageClient(client).GetHost(ctx, address)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - client requested a non-existing host %q",
			logPrefix, address))
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, host.Safe())
}

// Create stores a new host and optionally joins it to a cluster.
// Re-creating an existing host with the same credentials answers with the
// stored copy; differing credentials are a conflict.
func Create(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)

	var host models.Host
	if err := handlers.DecodeParams(msg, &host); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}
	if host.Address == "" {
		return handlers.ReturnError(msg,
			errors.New(`"address" must be given in the url or in the PUT body`),
			jsonrpc.InvalidParameters)
	}

	clusterName := handlers.StringParam(msg, "cluster")
	existing, err := store.GetHost(ctx, host.Address)
	if err == nil {
		slog.Debug(fmt.Sprintf("%s - host %q already exists", logPrefix, host.Address))
		if existing.SSHPrivKey != host.SSHPrivKey {
			return handlers.ReturnError(msg,
				errors.New("host already exists"), jsonrpc.Conflict)
		}
		if clusterName != "" {
			cluster, err := store.GetCluster(ctx, clusterName)
			if err != nil {
				return handlers.ReturnError(msg,
					errors.New("cluster does not exist"), jsonrpc.InvalidParameters)
			}
			if !contains(cluster.HostSet, host.Address) {
				return handlers.ReturnError(msg,
					errors.New("host is not part of the requested cluster"),
					jsonrpc.Conflict)
			}
		}
		return jsonrpc.NewResponse(msg.ID, existing.Safe())
	}

	if err := host.Validate(); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}
	if clusterName != "" {
		cluster, err := store.GetCluster(ctx, clusterName)
		if err != nil {
			return handlers.ReturnError(msg,
				errors.New("cluster does not exist"), jsonrpc.InvalidParameters)
		}
		if !contains(cluster.HostSet, host.Address) {
			cluster.HostSet = append(cluster.HostSet, host.Address)
			if _, err := store.SaveCluster(ctx, cluster); err != nil {
				return handlers.ReturnError(msg, err, errorCode(err))
			}
		}
	}

	saved, err := store.SaveHost(ctx, &host)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, saved.Safe())
}

// Delete removes a host.
func Delete(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	address := handlers.StringParam(msg, "address")
	slog.Debug(fmt.Sprintf("%s - attempting to delete host %q", logPrefix, address))
	if err := bus.NewStorageClient(client).DeleteHost(ctx, address); err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, []string{})
}

// Creds answers with the access credentials of one host. This is the one
// host endpoint that must not strip the ssh key.
func Creds(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	address := handlers.StringParam(msg, "address")
	host, err := bus.NewStorageClient(client).GetHost(ctx, address)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - client requested creds for a non-existing host %q",
			logPrefix, address))
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, map[string]string{
		"ssh_priv_key": host.SSHPrivKey,
		"remote_user":  host.RemoteUser,
	})
}

// Status answers with the availability of one host.
func Status(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	host, err := bus.NewStorageClient(client).GetHost(ctx, handlers.StringParam(msg, "address"))
	if err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, map[string]string{
		"address": host.Address,
		"status":  host.Status,
	})
}

func errorCode(err error) int {
	var rpcErr *bus.RemoteProcedureCallError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return jsonrpc.InternalError
}

func contains(set []string, member string) bool {
	for _, item := range set {
		if item == member {
			return true
		}
	}
	return false
}
