package registry

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	// ErrNoModules is returned by Discover when a directory holds no modules.
	ErrNoModules = errors.New("registry: no modules found")

	// ErrModuleNotFound is returned when a module name cannot be resolved.
	ErrModuleNotFound = errors.New("registry: module not found")

	// ErrAlreadyLoaded is returned by Load for a module that is loaded.
	ErrAlreadyLoaded = errors.New("registry: module already loaded")

	// ErrNoRuntime is returned when no runtime handles a file extension.
	ErrNoRuntime = errors.New("registry: no runtime for extension")

	// ErrDuplicateModule is returned when two sources claim the same name.
	ErrDuplicateModule = errors.New("registry: duplicate module name")

	// ErrModuleClosed is returned by handlers of a module that was unloaded
	// or replaced.
	ErrModuleClosed = errors.New("registry: module closed")

	errNoFunc = errors.New("registry: handler has no function")
)

// ModuleLoadError reports a module that failed to load. The registry skips
// the module and keeps going.
type ModuleLoadError struct {
	Module string
	Path   string
	Err    error
}

func (e *ModuleLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("registry: load module %q: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("registry: load module %q (%s): %v", e.Module, e.Path, e.Err)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}
