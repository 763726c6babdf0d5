// Package models holds the cluster-management data model shared by the
// gateway handlers and the storage service.
package models

import (
	"fmt"
	"regexp"
)

// Record kinds understood by the store and the storage service.
const (
	KindCluster          = "Cluster"
	KindHost             = "Host"
	KindNetwork          = "Network"
	KindContainerManager = "ContainerManager"
)

// Cluster status values derived from host availability.
const (
	ClusterStatusOK       = "ok"
	ClusterStatusDegraded = "degraded"
	ClusterStatusFailed   = "failed"
)

// HostStatusActive marks a host that is up and answering.
const HostStatusActive = "active"

// DefaultNetworkName is the network assigned to clusters that reference a
// network which does not exist.
const DefaultNetworkName = "default"

var (
	nameRx    = regexp.MustCompile(`^[a-zA-Z0-9\-\_]+$`)
	addressRx = regexp.MustCompile(`^[a-zA-Z0-9\-\_\.]+$`)
)

// Cluster is a named group of hosts sharing a network.
type Cluster struct {
	Name    string   `json:"name"`
	Network string   `json:"network"`
	Status  string   `json:"status,omitempty"`
	HostSet []string `json:"hostset"`
}

// Key returns the record key for the cluster.
func (c *Cluster) Key() string { return c.Name }

// Validate checks structural rules. Business rules stay with handlers.
func (c *Cluster) Validate() error {
	if !nameRx.MatchString(c.Name) {
		return fmt.Errorf("invalid cluster name %q", c.Name)
	}
	return nil
}

// HostCounts summarizes host availability inside a cluster.
type HostCounts struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Unavailable int `json:"unavailable"`
}

// ClusterDetails is a cluster expanded with its host availability rollup.
type ClusterDetails struct {
	Cluster
	Hosts HostCounts `json:"hosts"`
}

// Host is a machine managed by the service, keyed by address.
type Host struct {
	Address    string `json:"address"`
	Status     string `json:"status,omitempty"`
	OS         string `json:"os,omitempty"`
	CPUs       int    `json:"cpus,omitempty"`
	Memory     int64  `json:"memory,omitempty"`
	Space      int64  `json:"space,omitempty"`
	SSHPrivKey string `json:"ssh_priv_key,omitempty"`
	RemoteUser string `json:"remote_user,omitempty"`
}

// Key returns the record key for the host.
func (h *Host) Key() string { return h.Address }

// Validate checks structural rules.
func (h *Host) Validate() error {
	if !addressRx.MatchString(h.Address) {
		return fmt.Errorf("invalid host address %q", h.Address)
	}
	return nil
}

// Safe returns a copy with credentials stripped for client-facing output.
func (h *Host) Safe() *Host {
	safe := *h
	safe.SSHPrivKey = ""
	return &safe
}

// Network is a cluster network definition.
type Network struct {
	Name    string                 `json:"name"`
	Type    string                 `json:"type,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Key returns the record key for the network.
func (n *Network) Key() string { return n.Name }

// Validate checks structural rules.
func (n *Network) Validate() error {
	if !nameRx.MatchString(n.Name) {
		return fmt.Errorf("invalid network name %q", n.Name)
	}
	return nil
}

// ContainerManager is a container manager endpoint configuration.
type ContainerManager struct {
	Name    string                 `json:"name"`
	Type    string                 `json:"type,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Key returns the record key for the container manager.
func (c *ContainerManager) Key() string { return c.Name }

// Validate checks structural rules.
func (c *ContainerManager) Validate() error {
	if !nameRx.MatchString(c.Name) {
		return fmt.Errorf("invalid container manager name %q", c.Name)
	}
	return nil
}
