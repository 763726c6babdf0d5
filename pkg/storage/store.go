// Package storage implements the bus-facing storage service: a Store
// abstraction over JSON records addressed by kind and key, a Postgres
// implementation, and the request/reply service that answers the
// gateway's storage calls.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/morezero/cluster-gateway/pkg/models"
)

// ErrNotFound is returned when no record exists for a kind and key.
var ErrNotFound = errors.New("record not found")

// Store persists JSON records addressed by kind and key.
type Store interface {
	// Get returns the record for kind and key, or ErrNotFound.
	Get(ctx context.Context, kind, key string) (json.RawMessage, error)
	// List returns all records of a kind in key order.
	List(ctx context.Context, kind string) ([]json.RawMessage, error)
	// Save creates or replaces the record for kind and key.
	Save(ctx context.Context, kind, key string, record json.RawMessage) error
	// Delete removes the record for kind and key, or returns ErrNotFound.
	Delete(ctx context.Context, kind, key string) error
}

// keyField returns the JSON field addressing records of a kind.
func keyField(kind string) (string, error) {
	switch kind {
	case models.KindCluster, models.KindNetwork, models.KindContainerManager:
		return "name", nil
	case models.KindHost:
		return "address", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

// normalizeRecord decodes raw into the typed model for kind, validates it,
// and re-encodes it so stored records carry only known fields. It returns
// the record key alongside the clean document.
func normalizeRecord(kind string, raw json.RawMessage) (string, json.RawMessage, error) {
	switch kind {
	case models.KindCluster:
		var c models.Cluster
		if err := json.Unmarshal(raw, &c); err != nil {
			return "", nil, err
		}
		if c.HostSet == nil {
			c.HostSet = []string{}
		}
		if err := c.Validate(); err != nil {
			return "", nil, err
		}
		clean, err := json.Marshal(&c)
		return c.Key(), clean, err
	case models.KindHost:
		var h models.Host
		if err := json.Unmarshal(raw, &h); err != nil {
			return "", nil, err
		}
		if err := h.Validate(); err != nil {
			return "", nil, err
		}
		clean, err := json.Marshal(&h)
		return h.Key(), clean, err
	case models.KindNetwork:
		var n models.Network
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", nil, err
		}
		if err := n.Validate(); err != nil {
			return "", nil, err
		}
		clean, err := json.Marshal(&n)
		return n.Key(), clean, err
	case models.KindContainerManager:
		var m models.ContainerManager
		if err := json.Unmarshal(raw, &m); err != nil {
			return "", nil, err
		}
		if err := m.Validate(); err != nil {
			return "", nil, err
		}
		clean, err := json.Marshal(&m)
		return m.Key(), clean, err
	}
	return "", nil, fmt.Errorf("unknown record kind %q", kind)
}
