package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/go-session/pkg/tools"
)

// Catalog is the in-memory tool registry a session consults when the model
// calls a tool. Lookups are case-insensitive; specs keep registration order.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]tools.Tool
	order []string
}

// NewCatalog constructs a catalog seeded with the provided tools. Invalid
// entries (nil, empty or duplicate names) are rejected.
func NewCatalog(ts ...tools.Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]tools.Tool)}
	for _, t := range ts {
		if err := c.Register(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a tool under its lower-cased name. Duplicates return an error.
func (c *Catalog) Register(t tools.Tool) error {
	if t == nil {
		return fmt.Errorf("session: tool is nil")
	}
	spec := t.Spec()
	key := strings.ToLower(strings.TrimSpace(spec.Name))
	if key == "" {
		return fmt.Errorf("session: tool name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[key]; exists {
		return fmt.Errorf("session: tool %s already registered", spec.Name)
	}
	c.tools[key] = t
	c.order = append(c.order, key)
	return nil
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (tools.Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tools[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Specs returns the tool specifications in registration order.
func (c *Catalog) Specs() []tools.Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]tools.Spec, 0, len(c.order))
	for _, key := range c.order {
		specs = append(specs, c.tools[key].Spec())
	}
	return specs
}

// Len reports how many tools are registered.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
