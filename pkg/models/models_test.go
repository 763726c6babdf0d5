package models

import "testing"

func TestCluster_Validate(t *testing.T) {
	good := Cluster{Name: "honeynut", HostSet: []string{}}
	if err := good.Validate(); err != nil {
		t.Errorf("models:models_test - expected %q to validate, got %v", good.Name, err)
	}

	for _, name := range []string{"", "bad name", "bad/name", "bad.name"} {
		bad := Cluster{Name: name}
		if err := bad.Validate(); err == nil {
			t.Errorf("models:models_test - expected cluster name %q to be rejected", name)
		}
	}
}

func TestHost_Validate(t *testing.T) {
	for _, address := range []string{"10.0.0.1", "node-1.example.com"} {
		good := Host{Address: address}
		if err := good.Validate(); err != nil {
			t.Errorf("models:models_test - expected %q to validate, got %v", address, err)
		}
	}

	for _, address := range []string{"", "spaced address", "slash/address"} {
		bad := Host{Address: address}
		if err := bad.Validate(); err == nil {
			t.Errorf("models:models_test - expected host address %q to be rejected", address)
		}
	}
}

func TestHost_SafeStripsCredentials(t *testing.T) {
	host := Host{Address: "10.0.0.1", Status: HostStatusActive, SSHPrivKey: "c2VjcmV0"}
	safe := host.Safe()

	if safe.SSHPrivKey != "" {
		t.Error("models:models_test - Safe kept the ssh key")
	}
	if safe.Address != host.Address || safe.Status != host.Status {
		t.Errorf("models:models_test - Safe changed unrelated fields: %+v", safe)
	}
	if host.SSHPrivKey == "" {
		t.Error("models:models_test - Safe mutated the original host")
	}
}

func TestKeys(t *testing.T) {
	if key := (&Cluster{Name: "web"}).Key(); key != "web" {
		t.Errorf("models:models_test - expected cluster key web, got %q", key)
	}
	if key := (&Host{Address: "10.0.0.1"}).Key(); key != "10.0.0.1" {
		t.Errorf("models:models_test - expected host key 10.0.0.1, got %q", key)
	}
	if key := (&Network{Name: DefaultNetworkName}).Key(); key != "default" {
		t.Errorf("models:models_test - expected network key default, got %q", key)
	}
}
