package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cluster-gateway/pkg/bus"
	"github.com/morezero/cluster-gateway/pkg/models"
	"github.com/morezero/cluster-gateway/pkg/storage"
)

const serverTestPrefix = "server:server_test"

const (
	testPort           = 14260
	testStorageSubject = "service.storage.e2e"
)

// testEnv holds the end-to-end environment: an embedded COMMS server,
// the storage service over a memory store, and the gateway dispatcher
// behind a test HTTP listener.
type testEnv struct {
	nc   *comms.Conn
	http *httptest.Server
}

func setupE2E(t *testing.T) *testEnv {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   testPort,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", serverTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", serverTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		t.Fatalf("%s - failed to connect: %v", serverTestPrefix, err)
	}
	t.Cleanup(nc.Close)

	service := storage.NewService(nc, storage.NewMemoryStore(), nil)
	if err := service.Start(testStorageSubject, "storage"); err != nil {
		t.Fatalf("%s - failed to start storage service: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() { service.Stop() })

	disp, err := BuildDispatcher()
	if err != nil {
		t.Fatalf("%s - BuildDispatcher failed: %v", serverTestPrefix, err)
	}
	disp.AttachClient(bus.NewClient(nc, testStorageSubject, 5*time.Second))

	httpServer := httptest.NewServer(disp)
	t.Cleanup(httpServer.Close)

	return &testEnv{nc: nc, http: httpServer}
}

// do issues one request against the gateway and returns status and body.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s - failed to marshal body: %v", serverTestPrefix, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("%s - failed to build request: %v", serverTestPrefix, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s - request failed: %v", serverTestPrefix, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("%s - failed to read body: %v", serverTestPrefix, err)
	}
	return resp.StatusCode, data
}

func TestGateway_ClusterLifecycle(t *testing.T) {
	env := setupE2E(t)

	// Create: PUT without an action maps success to 201
	status, body := env.do(t, http.MethodPut, "/api/v0/cluster/honeynut/",
		map[string]interface{}{"network": "default"})
	if status != http.StatusCreated {
		t.Fatalf("%s - create status = %d, want 201 (body %s)", serverTestPrefix, status, body)
	}

	// Get reports the availability rollup
	status, body = env.do(t, http.MethodGet, "/api/v0/cluster/honeynut/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - get status = %d, want 200", serverTestPrefix, status)
	}
	var details models.ClusterDetails
	if err := json.Unmarshal(body, &details); err != nil {
		t.Fatalf("%s - failed to unmarshal details: %v", serverTestPrefix, err)
	}
	if details.Name != "honeynut" || details.Status != models.ClusterStatusOK {
		t.Errorf("%s - details = %+v", serverTestPrefix, details)
	}

	// List returns cluster names
	status, body = env.do(t, http.MethodGet, "/api/v0/clusters/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - list status = %d, want 200", serverTestPrefix, status)
	}
	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		t.Fatalf("%s - failed to unmarshal list: %v", serverTestPrefix, err)
	}
	if len(names) != 1 || names[0] != "honeynut" {
		t.Errorf("%s - list = %v, want [honeynut]", serverTestPrefix, names)
	}

	// Delete, then the cluster is gone
	status, _ = env.do(t, http.MethodDelete, "/api/v0/cluster/honeynut/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - delete status = %d, want 200", serverTestPrefix, status)
	}
	status, _ = env.do(t, http.MethodGet, "/api/v0/cluster/honeynut/", nil)
	if status != http.StatusNotFound {
		t.Errorf("%s - get after delete status = %d, want 404", serverTestPrefix, status)
	}
}

func TestGateway_ClusterMembers(t *testing.T) {
	env := setupE2E(t)

	status, _ := env.do(t, http.MethodPut, "/api/v0/cluster/prod/", nil)
	if status != http.StatusCreated {
		t.Fatalf("%s - create status = %d, want 201", serverTestPrefix, status)
	}

	// Add a member: PUT carrying action=add maps success to 200
	status, _ = env.do(t, http.MethodPut, "/api/v0/cluster/prod/hosts/192.168.152.110/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - add member status = %d, want 200", serverTestPrefix, status)
	}

	// Membership check
	status, _ = env.do(t, http.MethodGet, "/api/v0/cluster/prod/hosts/192.168.152.110/", nil)
	if status != http.StatusOK {
		t.Errorf("%s - check member status = %d, want 200", serverTestPrefix, status)
	}
	status, _ = env.do(t, http.MethodGet, "/api/v0/cluster/prod/hosts/10.9.9.9/", nil)
	if status != http.StatusNotFound {
		t.Errorf("%s - check non-member status = %d, want 404", serverTestPrefix, status)
	}

	// Bulk update with a stale old list conflicts
	status, _ = env.do(t, http.MethodPut, "/api/v0/cluster/prod/hosts/",
		map[string]interface{}{"old": []string{}, "new": []string{"10.0.0.1"}})
	if status != http.StatusConflict {
		t.Errorf("%s - stale update status = %d, want 409", serverTestPrefix, status)
	}

	// Bulk update with the correct old list succeeds
	status, _ = env.do(t, http.MethodPut, "/api/v0/cluster/prod/hosts/",
		map[string]interface{}{"old": []string{"192.168.152.110"}, "new": []string{"10.0.0.1"}})
	if status != http.StatusOK {
		t.Errorf("%s - update members status = %d, want 200", serverTestPrefix, status)
	}

	// Remove the member
	status, _ = env.do(t, http.MethodDelete, "/api/v0/cluster/prod/hosts/10.0.0.1/", nil)
	if status != http.StatusOK {
		t.Errorf("%s - delete member status = %d, want 200", serverTestPrefix, status)
	}
}

func TestGateway_HostLifecycle(t *testing.T) {
	env := setupE2E(t)

	status, body := env.do(t, http.MethodPut, "/api/v0/host/10.2.0.2/",
		map[string]interface{}{"ssh_priv_key": "dGVzdAo=", "remote_user": "root"})
	if status != http.StatusCreated {
		t.Fatalf("%s - create host status = %d, want 201 (body %s)", serverTestPrefix, status, body)
	}

	// Credentials never come back
	status, body = env.do(t, http.MethodGet, "/api/v0/host/10.2.0.2/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - get host status = %d, want 200", serverTestPrefix, status)
	}
	var host models.Host
	if err := json.Unmarshal(body, &host); err != nil {
		t.Fatalf("%s - failed to unmarshal host: %v", serverTestPrefix, err)
	}
	if host.SSHPrivKey != "" {
		t.Errorf("%s - SSH key leaked in response", serverTestPrefix)
	}

	// Re-creating with a different key conflicts
	status, _ = env.do(t, http.MethodPut, "/api/v0/host/10.2.0.2/",
		map[string]interface{}{"ssh_priv_key": "b3RoZXIK"})
	if status != http.StatusConflict {
		t.Errorf("%s - conflicting create status = %d, want 409", serverTestPrefix, status)
	}

	status, _ = env.do(t, http.MethodGet, "/api/v0/host/10.2.0.2/status/", nil)
	if status != http.StatusOK {
		t.Errorf("%s - host status endpoint = %d, want 200", serverTestPrefix, status)
	}

	status, _ = env.do(t, http.MethodDelete, "/api/v0/host/10.2.0.2/", nil)
	if status != http.StatusOK {
		t.Errorf("%s - delete host status = %d, want 200", serverTestPrefix, status)
	}
}

func TestGateway_NetworkIdempotentCreate(t *testing.T) {
	env := setupE2E(t)

	network := map[string]interface{}{"type": "flannel_etcd"}
	status, _ := env.do(t, http.MethodPut, "/api/v0/network/default/", network)
	if status != http.StatusCreated {
		t.Fatalf("%s - create network status = %d, want 201", serverTestPrefix, status)
	}

	// Same content is accepted
	status, _ = env.do(t, http.MethodPut, "/api/v0/network/default/", network)
	if status != http.StatusCreated {
		t.Errorf("%s - repeat create status = %d, want 201", serverTestPrefix, status)
	}

	// Different content conflicts
	status, _ = env.do(t, http.MethodPut, "/api/v0/network/default/",
		map[string]interface{}{"type": "flannel_server"})
	if status != http.StatusConflict {
		t.Errorf("%s - conflicting create status = %d, want 409", serverTestPrefix, status)
	}
}

func TestGateway_ContainerManagerLifecycle(t *testing.T) {
	env := setupE2E(t)

	manager := map[string]interface{}{"type": "openshift"}
	status, _ := env.do(t, http.MethodPut, "/api/v0/containermanager/prod/", manager)
	if status != http.StatusCreated {
		t.Fatalf("%s - create container manager status = %d, want 201", serverTestPrefix, status)
	}

	status, body := env.do(t, http.MethodGet, "/api/v0/containermanagers/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - list container managers status = %d, want 200", serverTestPrefix, status)
	}
	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		t.Fatalf("%s - failed to unmarshal names: %v", serverTestPrefix, err)
	}
	if len(names) != 1 || names[0] != "prod" {
		t.Errorf("%s - expected [prod], got %v", serverTestPrefix, names)
	}

	// Different content conflicts
	status, _ = env.do(t, http.MethodPut, "/api/v0/containermanager/prod/",
		map[string]interface{}{"type": "kubernetes"})
	if status != http.StatusConflict {
		t.Errorf("%s - conflicting create status = %d, want 409", serverTestPrefix, status)
	}

	status, _ = env.do(t, http.MethodDelete, "/api/v0/containermanager/prod/", nil)
	if status != http.StatusOK {
		t.Errorf("%s - delete container manager status = %d, want 200", serverTestPrefix, status)
	}
}

func TestGateway_HostCreds(t *testing.T) {
	env := setupE2E(t)

	status, _ := env.do(t, http.MethodPut, "/api/v0/host/10.3.0.3/",
		map[string]interface{}{"ssh_priv_key": "dGVzdAo=", "remote_user": "root"})
	if status != http.StatusCreated {
		t.Fatalf("%s - create host status = %d, want 201", serverTestPrefix, status)
	}

	status, body := env.do(t, http.MethodGet, "/api/v0/host/10.3.0.3/creds/", nil)
	if status != http.StatusOK {
		t.Fatalf("%s - creds status = %d, want 200", serverTestPrefix, status)
	}
	var creds map[string]string
	if err := json.Unmarshal(body, &creds); err != nil {
		t.Fatalf("%s - failed to unmarshal creds: %v", serverTestPrefix, err)
	}
	if creds["ssh_priv_key"] != "dGVzdAo=" || creds["remote_user"] != "root" {
		t.Errorf("%s - unexpected creds payload %v", serverTestPrefix, creds)
	}

	status, _ = env.do(t, http.MethodGet, "/api/v0/host/10.9.9.9/creds/", nil)
	if status != http.StatusNotFound {
		t.Errorf("%s - creds for unknown host status = %d, want 404", serverTestPrefix, status)
	}
}

func TestGateway_UnknownRouteIs404(t *testing.T) {
	env := setupE2E(t)

	status, body := env.do(t, http.MethodGet, "/api/v0/nonsense/", nil)
	if status != http.StatusNotFound {
		t.Errorf("%s - status = %d, want 404", serverTestPrefix, status)
	}
	if string(body) != "Not Found" {
		t.Errorf("%s - body = %q, want %q", serverTestPrefix, body, "Not Found")
	}
}
