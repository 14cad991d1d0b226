package registry

import (
	"context"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/trigger"
)

// Entry is a triggerable handler extracted from a module.
type Entry = dispatch.Entry

// Definition is what a module declares for one handler: a name, its trigger
// spec and the function to invoke.
type Definition struct {
	Name string
	Spec trigger.Spec
	Func dispatch.HandlerFunc
}

// Module is one loaded unit of handler code.
type Module interface {
	// Name returns the module name.
	Name() string

	// Handlers returns the module's definitions in declaration order.
	Handlers() []Definition

	// Close releases the module. Handlers invoked afterwards fail with
	// ErrModuleClosed.
	Close() error
}

// Runtime loads module source files of one extension.
type Runtime interface {
	// Ext returns the file extension handled, including the dot.
	Ext() string

	// Load evaluates the file at path in an isolated namespace.
	Load(ctx context.Context, name, path string) (Module, error)
}

// staticModule is a module whose definitions are Go values.
type staticModule struct {
	name string
	defs []Definition
}

// NewModule returns a Module backed by fixed definitions.
func NewModule(name string, defs ...Definition) Module {
	return &staticModule{name: name, defs: defs}
}

func (m *staticModule) Name() string           { return m.name }
func (m *staticModule) Handlers() []Definition { return m.defs }
func (m *staticModule) Close() error           { return nil }
