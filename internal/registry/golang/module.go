package golang

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dshills/xfs/internal/dispatch"
	"github.com/dshills/xfs/internal/registry"
)

// Module is an interpreted Go module.
type Module struct {
	name   string
	defs   []registry.Definition
	closed atomic.Bool
}

func newModule(name string, handlers []Handler) *Module {
	m := &Module{name: name}
	for _, h := range handlers {
		def := registry.Definition{Name: h.Name, Spec: h.Spec}
		if h.Func != nil {
			def.Func = m.guard(h.Func)
		}
		m.defs = append(m.defs, def)
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Handlers returns the handlers in declaration order.
func (m *Module) Handlers() []registry.Definition {
	return append([]registry.Definition(nil), m.defs...)
}

// Close marks the module closed. Later calls fail with
// registry.ErrModuleClosed.
func (m *Module) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *Module) guard(fn func(context.Context, *dispatch.Call) error) dispatch.HandlerFunc {
	return func(ctx context.Context, call *dispatch.Call) error {
		if m.closed.Load() {
			return fmt.Errorf("%w: %s", registry.ErrModuleClosed, m.name)
		}
		return fn(ctx, call)
	}
}

var _ registry.Module = (*Module)(nil)
