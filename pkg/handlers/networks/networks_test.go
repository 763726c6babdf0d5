package networks

import (
	"context"
	"testing"

	"github.com/morezero/cluster-gateway/pkg/handlers/handlerstest"
	"github.com/morezero/cluster-gateway/pkg/jsonrpc"
	"github.com/morezero/cluster-gateway/pkg/models"
)

func TestList_ReturnsNames(t *testing.T) {
	store := handlerstest.NewFakeStore()
	store.Put(models.KindNetwork, &models.Network{Name: "prod", Type: "flannel_server"})
	store.Put(models.KindNetwork, &models.Network{Name: "default"})

	resp := List(context.Background(), handlerstest.Message("GET", nil), store)

	var names []string
	handlerstest.DecodeResult(t, resp, &names)
	if len(names) != 2 || names[0] != "default" || names[1] != "prod" {
		t.Errorf("handlers:networks_test - expected [default prod], got %v", names)
	}
}

func TestGet(t *testing.T) {
	store := handlerstest.NewFakeStore()
	store.Put(models.KindNetwork, &models.Network{Name: "prod", Type: "flannel_server"})

	resp := Get(context.Background(),
		handlerstest.Message("GET", map[string]interface{}{"name": "prod"}), store)
	var network models.Network
	handlerstest.DecodeResult(t, resp, &network)
	if network.Type != "flannel_server" {
		t.Errorf("handlers:networks_test - expected type flannel_server, got %q", network.Type)
	}

	resp = Get(context.Background(),
		handlerstest.Message("GET", map[string]interface{}{"name": "ghost"}), store)
	if code := handlerstest.ErrorCode(t, resp); code != jsonrpc.NotFound {
		t.Errorf("handlers:networks_test - expected code %d, got %d", jsonrpc.NotFound, code)
	}
}

func TestCreate_NewNetwork(t *testing.T) {
	store := handlerstest.NewFakeStore()
	params := map[string]interface{}{"name": "prod", "type": "flannel_server"}

	resp := Create(context.Background(), handlerstest.Message("PUT", params), store)

	var network models.Network
	handlerstest.DecodeResult(t, resp, &network)
	if network.Name != "prod" || network.Type != "flannel_server" {
		t.Errorf("handlers:networks_test - unexpected saved network %+v", network)
	}
}

func TestCreate_IdenticalRePutAnswersStoredCopy(t *testing.T) {
	store := handlerstest.NewFakeStore()
	params := map[string]interface{}{"name": "prod", "type": "flannel_server"}

	for i := 0; i < 2; i++ {
		resp := Create(context.Background(), handlerstest.Message("PUT", params), store)
		var network models.Network
		handlerstest.DecodeResult(t, resp, &network)
		if network.Name != "prod" {
			t.Fatalf("handlers:networks_test - unexpected network %+v", network)
		}
	}
}

func TestCreate_DifferentDefinitionIsConflict(t *testing.T) {
	store := handlerstest.NewFakeStore()
	store.Put(models.KindNetwork, &models.Network{Name: "prod", Type: "flannel_server"})
	params := map[string]interface{}{"name": "prod", "type": "flannel_etcd"}

	resp := Create(context.Background(), handlerstest.Message("PUT", params), store)
	if code := handlerstest.ErrorCode(t, resp); code != jsonrpc.Conflict {
		t.Errorf("handlers:networks_test - expected code %d, got %d", jsonrpc.Conflict, code)
	}
}

func TestCreate_InvalidNameRejected(t *testing.T) {
	resp := Create(context.Background(),
		handlerstest.Message("PUT", map[string]interface{}{"name": "bad name!"}),
		handlerstest.NewFakeStore())
	if code := handlerstest.ErrorCode(t, resp); code != jsonrpc.InvalidRequest {
		t.Errorf("handlers:networks_test - expected code %d, got %d", jsonrpc.InvalidRequest, code)
	}
}

func TestDelete(t *testing.T) {
	store := handlerstest.NewFakeStore()
	store.Put(models.KindNetwork, &models.Network{Name: "prod"})
	params := map[string]interface{}{"name": "prod"}

	resp := Delete(context.Background(), handlerstest.Message("DELETE", params), store)
	var out []string
	handlerstest.DecodeResult(t, resp, &out)
	if len(out) != 0 {
		t.Errorf("handlers:networks_test - expected empty result, got %v", out)
	}

	resp = Delete(context.Background(), handlerstest.Message("DELETE", params), store)
	if code := handlerstest.ErrorCode(t, resp); code != jsonrpc.NotFound {
		t.Errorf("handlers:networks_test - expected code %d on double delete, got %d", jsonrpc.NotFound, code)
	}
}
