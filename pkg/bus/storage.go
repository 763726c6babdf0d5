package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morezero/cluster-gateway/pkg/models"
)

// Storage service method names.
const (
	methodList    = "list"
	methodGet     = "get"
	methodSave    = "save"
	methodDelete  = "delete"
	methodVersion = "version"
)

// StorageClient is a typed view over the remote storage service. Records
// are addressed by kind plus a key document, mirroring the service's
// positional calling convention.
type StorageClient struct {
	caller Caller
}

// NewStorageClient wraps an arbitrary Caller; used by handlers and tests.
func NewStorageClient(caller Caller) *StorageClient {
	return &StorageClient{caller: caller}
}

// Version asks the storage service for its semantic version.
func (s *StorageClient) Version(ctx context.Context) (string, error) {
	result, err := s.caller.Request(ctx, methodVersion, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := decodeInto(result, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// ListClusters returns every stored cluster.
func (s *StorageClient) ListClusters(ctx context.Context) ([]models.Cluster, error) {
	var out []models.Cluster
	if err := s.list(ctx, models.KindCluster, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCluster fetches one cluster by name.
func (s *StorageClient) GetCluster(ctx context.Context, name string) (*models.Cluster, error) {
	var out models.Cluster
	if err := s.get(ctx, models.KindCluster, map[string]interface{}{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveCluster stores a cluster and returns the stored copy.
func (s *StorageClient) SaveCluster(ctx context.Context, cluster *models.Cluster) (*models.Cluster, error) {
	var out models.Cluster
	if err := s.save(ctx, models.KindCluster, cluster, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCluster removes a cluster by name.
func (s *StorageClient) DeleteCluster(ctx context.Context, name string) error {
	return s.delete(ctx, models.KindCluster, map[string]interface{}{"name": name})
}

// ListHosts returns every stored host.
func (s *StorageClient) ListHosts(ctx context.Context) ([]models.Host, error) {
	var out []models.Host
	if err := s.list(ctx, models.KindHost, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHost fetches one host by address.
func (s *StorageClient) GetHost(ctx context.Context, address string) (*models.Host, error) {
	var out models.Host
	if err := s.get(ctx, models.KindHost, map[string]interface{}{"address": address}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveHost stores a host and returns the stored copy.
func (s *StorageClient) SaveHost(ctx context.Context, host *models.Host) (*models.Host, error) {
	var out models.Host
	if err := s.save(ctx, models.KindHost, host, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteHost removes a host by address.
func (s *StorageClient) DeleteHost(ctx context.Context, address string) error {
	return s.delete(ctx, models.KindHost, map[string]interface{}{"address": address})
}

// ListNetworks returns every stored network.
func (s *StorageClient) ListNetworks(ctx context.Context) ([]models.Network, error) {
	var out []models.Network
	if err := s.list(ctx, models.KindNetwork, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetNetwork fetches one network by name.
func (s *StorageClient) GetNetwork(ctx context.Context, name string) (*models.Network, error) {
	var out models.Network
	if err := s.get(ctx, models.KindNetwork, map[string]interface{}{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveNetwork stores a network and returns the stored copy.
func (s *StorageClient) SaveNetwork(ctx context.Context, network *models.Network) (*models.Network, error) {
	var out models.Network
	if err := s.save(ctx, models.KindNetwork, network, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNetwork removes a network by name.
func (s *StorageClient) DeleteNetwork(ctx context.Context, name string) error {
	return s.delete(ctx, models.KindNetwork, map[string]interface{}{"name": name})
}

// ListContainerManagers returns every stored container manager.
func (s *StorageClient) ListContainerManagers(ctx context.Context) ([]models.ContainerManager, error) {
	var out []models.ContainerManager
	if err := s.list(ctx, models.KindContainerManager, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetContainerManager fetches one container manager by name.
func (s *StorageClient) GetContainerManager(ctx context.Context, name string) (*models.ContainerManager, error) {
	var out models.ContainerManager
	if err := s.get(ctx, models.KindContainerManager, map[string]interface{}{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveContainerManager stores a container manager and returns the stored copy.
func (s *StorageClient) SaveContainerManager(ctx context.Context, manager *models.ContainerManager) (*models.ContainerManager, error) {
	var out models.ContainerManager
	if err := s.save(ctx, models.KindContainerManager, manager, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteContainerManager removes a container manager by name.
func (s *StorageClient) DeleteContainerManager(ctx context.Context, name string) error {
	return s.delete(ctx, models.KindContainerManager, map[string]interface{}{"name": name})
}

func (s *StorageClient) list(ctx context.Context, kind string, out interface{}) error {
	result, err := s.caller.Request(ctx, methodList, []interface{}{kind})
	if err != nil {
		return err
	}
	return decodeInto(result, out)
}

func (s *StorageClient) get(ctx context.Context, kind string, key map[string]interface{}, out interface{}) error {
	result, err := s.caller.Request(ctx, methodGet, []interface{}{kind, key})
	if err != nil {
		return err
	}
	return decodeInto(result, out)
}

func (s *StorageClient) save(ctx context.Context, kind string, record, out interface{}) error {
	result, err := s.caller.Request(ctx, methodSave, []interface{}{kind, record})
	if err != nil {
		return err
	}
	return decodeInto(result, out)
}

func (s *StorageClient) delete(ctx context.Context, kind string, key map[string]interface{}) error {
	_, err := s.caller.Request(ctx, methodDelete, []interface{}{kind, key})
	return err
}

// decodeInto re-marshals a generic result into a typed value.
func decodeInto(result, out interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("bus:storage - encode result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bus:storage - decode result: %w", err)
	}
	return nil
}
