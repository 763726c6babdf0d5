// Package clusters implements the cluster and cluster-membership
// handlers.
package clusters

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

const logPrefix = "handlers:clusters"

// Collection returns the statically declared handler table for this
// package.
func Collection() handlers.Collection {
	return handlers.Collection{
		Name: "clusters",
		Handlers: map[string]handlers.Handler{
			"list":          List,
			"get":           Get,
			"create":        Create,
			"delete":        Delete,
			"listMembers":   ListMembers,
			"updateMembers": UpdateMembers,
			"checkMember":   CheckMember,
			"addMember":     AddMember,
			"deleteMember":  DeleteMember,
		},
	}
}

// Register attaches the cluster routes to a route table.
func Register(t *routing.Table) error {
	nameReq := map[string]string{"name": handlers.NameRequirement}
	memberReq := map[string]string{
		"name": handlers.NameRequirement,
		"host": handlers.HostRequirement,
	}

	routes := []routing.Route{
		{Pattern: "/api/v0/clusters/", Methods: []string{"GET"}, Handler: List},
		{Pattern: "/api/v0/cluster/{name}/", Methods: []string{"GET"}, Requirements: nameReq, Handler: Get},
		{Pattern: "/api/v0/cluster/{name}/", Methods: []string{"PUT"}, Requirements: nameReq, Handler: Create},
		{Pattern: "/api/v0/cluster/{name}/", Methods: []string{"DELETE"}, Requirements: nameReq, Handler: Delete},
		{Pattern: "/api/v0/cluster/{name}/hosts/", Methods: []string{"GET"}, Requirements: nameReq, Handler: ListMembers},
		{Pattern: "/api/v0/cluster/{name}/hosts/", Methods: []string{"PUT"}, Requirements: nameReq, Handler: UpdateMembers, Action: routing.ActionAdd},
		{Pattern: "/api/v0/cluster/{name}/hosts/{host}/", Methods: []string{"GET"}, Requirements: memberReq, Handler: CheckMember},
		{Pattern: "/api/v0/cluster/{name}/hosts/{host}/", Methods: []string{"PUT"}, Requirements: memberReq, Handler: AddMember, Action: routing.ActionAdd},
		{Pattern: "/api/v0/cluster/{name}/hosts/{host}/", Methods: []string{"DELETE"}, Requirements: memberReq, Handler: DeleteMember},
	}
	for _, r := range routes {
		if err := t.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// List answers with the names of all clusters.
func List(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	clusters, err := bus.NewStorageClient(client).ListClusters(ctx)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	names := make([]string, len(clusters))
	for i, cluster := range clusters {
		names[i] = cluster.Name
	}
	return jsonrpc.NewResponse(msg.ID, names)
}

// Get answers with one cluster expanded with its host availability
// rollup.
func Get(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)
	cluster, err := store.GetCluster(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}

	details := models.ClusterDetails{Cluster: *cluster}
	details.Status = models.ClusterStatusOK
	for _, address := range cluster.HostSet {
		host, err := store.GetHost(ctx, address)
		details.Hosts.Total++
		if err == nil && host.Status == models.HostStatusActive {
			details.Hosts.Available++
		} else {
			details.Hosts.Unavailable++
			details.Status = models.ClusterStatusDegraded
		}
	}
	// One or more hosts with none active means the whole cluster is down.
	if details.Hosts.Total > 0 && details.Hosts.Total == details.Hosts.Unavailable {
		details.Status = models.ClusterStatusFailed
	}
	return jsonrpc.NewResponse(msg.ID, details)
}

// Create stores a new cluster. Creating a cluster that already exists
// answers with the stored copy; a referenced network that does not exist
// falls back to the default network.
func Create(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)

	var cluster models.Cluster
	if err := handlers.DecodeParams(msg, &cluster); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}
	if cluster.HostSet == nil {
		cluster.HostSet = []string{}
	}

	if _, err := store.GetCluster(ctx, cluster.Name); err == nil {
		slog.Debug(fmt.Sprintf("%s - creation of already existing cluster %q requested",
			logPrefix, cluster.Name))
	} else if cluster.Network != "" {
		if _, err := store.GetNetwork(ctx, cluster.Network); err != nil {
			slog.Debug(fmt.Sprintf("%s - network %q does not exist, using default",
				logPrefix, cluster.Network))
			cluster.Network = models.DefaultNetworkName
		}
	}

	if err := cluster.Validate(); err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.InvalidRequest)
	}
	saved, err := store.SaveCluster(ctx, &cluster)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, saved)
}

// Delete removes an existing cluster.
func Delete(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	name := handlers.StringParam(msg, "name")
	slog.Debug(fmt.Sprintf("%s - attempting to delete cluster %q", logPrefix, name))
	if err := bus.NewStorageClient(client).DeleteCluster(ctx, name); err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, []string{})
}

// ListMembers answers with the host addresses in a cluster.
func ListMembers(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	cluster, err := bus.NewStorageClient(client).GetCluster(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, cluster.HostSet)
}

// UpdateMembers replaces the member set of a cluster. The caller supplies
// both the expected old set and the new set; a mismatch with the stored
// set is a conflict.
func UpdateMembers(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	oldHosts, okOld := handlers.StringSliceParam(msg, "old")
	newHosts, okNew := handlers.StringSliceParam(msg, "new")
	if !okOld || !okNew {
		return handlers.ReturnError(msg,
			errors.New(`both "old" and "new" host lists must be given`),
			jsonrpc.InvalidRequest)
	}

	store := bus.NewStorageClient(client)
	name := handlers.StringParam(msg, "name")
	cluster, err := store.GetCluster(ctx, name)
	if err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}

	if !sameSet(oldHosts, cluster.HostSet) {
		return handlers.ReturnError(msg,
			fmt.Errorf("conflict setting hosts for cluster %s", name),
			jsonrpc.Conflict)
	}

	cluster.HostSet = dedupe(newHosts)
	saved, err := store.SaveCluster(ctx, cluster)
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	return jsonrpc.NewResponse(msg.ID, saved)
}

// CheckMember answers with the host when it is part of the cluster.
func CheckMember(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	host := handlers.StringParam(msg, "host")
	cluster, err := bus.NewStorageClient(client).GetCluster(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}
	if !contains(cluster.HostSet, host) {
		return handlers.ReturnError(msg,
			errors.New("the requested host is not part of the cluster"),
			jsonrpc.NotFound)
	}
	return jsonrpc.NewResponse(msg.ID, []string{host})
}

// AddMember adds a host to the cluster member set. Adding a host that is
// already a member is a no-op.
func AddMember(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)
	host := handlers.StringParam(msg, "host")
	cluster, err := store.GetCluster(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, errorCode(err))
	}

	if !contains(cluster.HostSet, host) {
		cluster.HostSet = append(cluster.HostSet, host)
		if _, err := store.SaveCluster(ctx, cluster); err != nil {
			return handlers.ReturnError(msg, err, errorCode(err))
		}
	}
	return jsonrpc.NewResponse(msg.ID, []string{host})
}

// DeleteMember removes a host from the cluster member set.
func DeleteMember(ctx context.Context, msg *jsonrpc.Message, client bus.Caller) *jsonrpc.Response {
	store := bus.NewStorageClient(client)
	host := handlers.StringParam(msg, "host")
	cluster, err := store.GetCluster(ctx, handlers.StringParam(msg, "name"))
	if err != nil {
		return handlers.ReturnError(msg, err, jsonrpc.NotFound)
	}

	if contains(cluster.HostSet, host) {
		kept := make([]string, 0, len(cluster.HostSet))
		for _, member := range cluster.HostSet {
			if member != host {
				kept = append(kept, member)
			}
		}
		cluster.HostSet = kept
		if _, err := store.SaveCluster(ctx, cluster); err != nil {
			return handlers.ReturnError(msg, err, errorCode(err))
		}
	}
	return jsonrpc.NewResponse(msg.ID, []string{})
}

// errorCode classifies a storage error: structured remote errors keep
// their code, anything else is internal.
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

func sameSet(a, b []string) bool {
	if len(dedupe(a)) != len(dedupe(b)) {
		return false
	}
	for _, item := range a {
		if !contains(b, item) {
			return false
		}
	}
	return true
}

func dedupe(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if !seen[host] {
			seen[host] = true
			out = append(out, host)
		}
	}
	return out
}
