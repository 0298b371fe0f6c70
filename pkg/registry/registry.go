// Package registry is the source of truth for installed capabilities:
// connectors with their callable functions, expert agents, and the
// execution nodes graphs can be placed on.
//
// Lookups are read-only from the compilers' point of view; a compilation
// call works against a snapshot and never mutates the registry.
package registry

import (
	"errors"
	"sync"

	"github.com/flowforge-io/core/pkg/contracts"
)

var (
	ErrConnectorNotFound = errors.New("connector not found")
	ErrNodeNotFound      = errors.New("execution node not found")
)

// Registry resolves capability references.
type Registry interface {
	Connector(id string) (*contracts.ConnectorEntry, error)
	Agent(id string) (*contracts.AgentEntry, error)
	ExecutionNode(id string) (*contracts.ExecutionNode, error)
	// Snapshot returns the full live context for catalog validation.
	Snapshot() contracts.LiveContext
}

// InMemoryRegistry is a thread-safe in-memory implementation.
type InMemoryRegistry struct {
	mu         sync.RWMutex
	version    string
	connectors map[string]contracts.ConnectorEntry
	agents     map[string]contracts.AgentEntry
	nodes      map[string]contracts.ExecutionNode
	installed  map[string]string // capability -> installed version
}

// NewInMemoryRegistry creates an empty registry tagged with a catalog version.
func NewInMemoryRegistry(catalogVersion string) *InMemoryRegistry {
	return &InMemoryRegistry{
		version:    catalogVersion,
		connectors: make(map[string]contracts.ConnectorEntry),
		agents:     make(map[string]contracts.AgentEntry),
		nodes:      make(map[string]contracts.ExecutionNode),
		installed:  make(map[string]string),
	}
}

// RegisterConnector adds or replaces a connector entry.
func (r *InMemoryRegistry) RegisterConnector(c contracts.ConnectorEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.ID] = c
}

// RegisterAgent adds or replaces an expert agent.
func (r *InMemoryRegistry) RegisterAgent(a contracts.AgentEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
}

// RegisterExecutionNode adds or replaces an execution node.
func (r *InMemoryRegistry) RegisterExecutionNode(n contracts.ExecutionNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID] = n
}

// SetCapabilityVersion records the installed version of a named capability.
func (r *InMemoryRegistry) SetCapabilityVersion(capability, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[capability] = version
}

func (r *InMemoryRegistry) Connector(id string) (*contracts.ConnectorEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.connectors[id]; ok {
		return &c, nil
	}
	// Fall back to name match: callers reference connectors by id or name.
	for _, c := range r.connectors {
		if c.Name == id {
			return &c, nil
		}
	}
	return nil, ErrConnectorNotFound
}

func (r *InMemoryRegistry) Agent(id string) (*contracts.AgentEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return &a, nil
	}
	return nil, errors.New("agent not found")
}

func (r *InMemoryRegistry) ExecutionNode(id string) (*contracts.ExecutionNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.nodes[id]; ok {
		return &n, nil
	}
	return nil, ErrNodeNotFound
}

// ExecutionNodes returns all registered execution nodes.
func (r *InMemoryRegistry) ExecutionNodes() []contracts.ExecutionNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.ExecutionNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

func (r *InMemoryRegistry) Snapshot() contracts.LiveContext {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lc := contracts.LiveContext{
		CatalogVersion: r.version,
		Capabilities:   make(map[string]string, len(r.installed)),
	}
	for _, c := range r.connectors {
		lc.Connectors = append(lc.Connectors, c)
	}
	for _, a := range r.agents {
		lc.Agents = append(lc.Agents, a)
	}
	for cap, v := range r.installed {
		lc.Capabilities[cap] = v
	}
	return lc
}
