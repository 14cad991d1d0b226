package registry

import (
	"fmt"
	"slices"
	"sync"
)

// Compiled-in modules, registered from init functions.
var builtins struct {
	mu    sync.Mutex
	order []string
	defs  map[string][]Definition
}

// Register adds a compiled-in module. Every Registry created afterwards
// loads it in LoadAll. Register panics if name is empty or already taken.
func Register(name string, defs ...Definition) {
	builtins.mu.Lock()
	defer builtins.mu.Unlock()

	if name == "" {
		panic("registry: Register with empty module name")
	}
	if builtins.defs == nil {
		builtins.defs = make(map[string][]Definition)
	}
	if _, dup := builtins.defs[name]; dup {
		panic(fmt.Sprintf("registry: Register called twice for module %q", name))
	}
	builtins.defs[name] = slices.Clone(defs)
	builtins.order = append(builtins.order, name)
}

// Builtins returns the names of compiled-in modules in registration order.
func Builtins() []string {
	builtins.mu.Lock()
	defer builtins.mu.Unlock()
	return slices.Clone(builtins.order)
}

func builtin(name string) ([]Definition, bool) {
	builtins.mu.Lock()
	defer builtins.mu.Unlock()
	defs, ok := builtins.defs[name]
	return defs, ok
}
