package agent

import (
	"fmt"
	"sync"

	"github.com/beaconlabs/beacon/internal/config"
)

// registry holds named collector instances sharing a process. The empty
// name is the default instance.
var registry = struct {
	mu      sync.Mutex
	clients map[string]*Client
}{clients: make(map[string]*Client)}

// Initialize creates and registers the instance named by
// cfg.InstanceName. Initializing a name twice is an error; use Instance
// to retrieve an existing client.
func Initialize(cfg *config.Config, opts Options) (*Client, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	name := cfg.InstanceName
	if _, exists := registry.clients[name]; exists {
		return nil, fmt.Errorf("instance %q already initialized", name)
	}

	client, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}
	registry.clients[name] = client
	return client, nil
}

// Instance returns the registered client for the given name, or nil.
func Instance(name string) *Client {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.clients[name]
}

// Default returns the default (unnamed) instance, or nil.
func Default() *Client {
	return Instance("")
}

// Teardown closes and unregisters the named instance. Closing an unknown
// name is a no-op.
func Teardown(name string) error {
	registry.mu.Lock()
	client, ok := registry.clients[name]
	delete(registry.clients, name)
	registry.mu.Unlock()

	if !ok {
		return nil
	}
	return client.Close()
}
