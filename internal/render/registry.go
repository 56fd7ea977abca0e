package render

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu        sync.RWMutex
	renderers = make(map[string]Renderer)
)

// Register adds a renderer to the global registry.
func Register(r Renderer) {
	mu.Lock()
	defer mu.Unlock()
	renderers[r.Name()] = r
}

// Get returns a renderer by name.
func Get(name string) (Renderer, error) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := renderers[name]
	if !ok {
		return nil, fmt.Errorf("unknown renderer: %s", name)
	}
	return r, nil
}

// List returns all registered renderer names in ascending order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(renderers))
	for name := range renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
