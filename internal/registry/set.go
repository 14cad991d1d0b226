package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/dshills/xfs/internal/trigger"
)

// Set is an immutable snapshot of loaded modules and their handlers.
// A Set is never modified once published; writers build a new one.
//
// A Set keeps the modules it contains open while it has users: the
// registry holds one use while the Set is current and Registry.Acquire adds
// one per caller. A module leaves service when the last Set containing it
// is released.
type Set struct {
	order   []string
	modules map[string]setModule
	flat    []Entry

	users atomic.Int64
}

type setModule struct {
	path    string
	entries []Entry
	handle  *handle
}

// handle counts the Sets containing one loaded module.
type handle struct {
	name string
	mod  Module
	refs atomic.Int64
}

func newHandle(name string, mod Module) *handle {
	return &handle{name: name, mod: mod}
}

// release drops one Set reference and closes the module with the last.
func (h *handle) release() error {
	if h.refs.Add(-1) != 0 {
		return nil
	}
	if err := h.mod.Close(); err != nil {
		return fmt.Errorf("%s: %w", h.name, err)
	}
	return nil
}

func newSet() *Set {
	s := &Set{modules: map[string]setModule{}}
	s.users.Store(1)
	return s
}

// seal takes the registry's use of s and a reference on every module in it.
func (s *Set) seal() *Set {
	s.users.Store(1)
	for _, m := range s.modules {
		m.handle.refs.Add(1)
	}
	s.flatten()
	return s
}

// acquire adds a user unless s was already released by everyone.
func (s *Set) acquire() bool {
	for {
		n := s.users.Load()
		if n == 0 {
			return false
		}
		if s.users.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops one user. The last one releases the modules, in reverse
// load order.
func (s *Set) release() error {
	if s.users.Add(-1) != 0 {
		return nil
	}
	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		if err := s.modules[s.order[i]].handle.release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Modules returns module names in load order.
func (s *Set) Modules() []string {
	return slices.Clone(s.order)
}

// Has reports whether the module is in the set.
func (s *Set) Has(name string) bool {
	_, ok := s.modules[name]
	return ok
}

// Handlers returns the entries of one module.
func (s *Set) Handlers(name string) []Entry {
	return s.modules[name].entries
}

// Path returns the source path of a module. Empty for compiled-in modules.
func (s *Set) Path(name string) string {
	return s.modules[name].path
}

// Entries returns every entry, module by module in load order. The slice is
// shared by all readers of this Set and must not be modified.
func (s *Set) Entries() []Entry {
	return s.flat
}

// Len returns the number of modules.
func (s *Set) Len() int {
	return len(s.order)
}

// Prefixes returns the union of command prefixes across all entries.
func (s *Set) Prefixes() []string {
	specs := make([]trigger.Spec, len(s.flat))
	for i, e := range s.flat {
		specs[i] = e.Spec
	}
	return trigger.PrefixSet(specs...)
}

// with returns a copy of s where module name holds entries. A module already
// present keeps its position.
func (s *Set) with(name, path string, entries []Entry, h *handle) *Set {
	out := &Set{
		order:   slices.Clone(s.order),
		modules: make(map[string]setModule, len(s.modules)+1),
	}
	for k, v := range s.modules {
		out.modules[k] = v
	}
	if _, ok := out.modules[name]; !ok {
		out.order = append(out.order, name)
	}
	out.modules[name] = setModule{path: path, entries: entries, handle: h}
	return out.seal()
}

// without returns a copy of s with module name removed.
func (s *Set) without(name string) *Set {
	if !s.Has(name) {
		return s
	}
	out := &Set{
		order:   make([]string, 0, len(s.order)),
		modules: make(map[string]setModule, len(s.modules)),
	}
	for _, n := range s.order {
		if n == name {
			continue
		}
		out.order = append(out.order, n)
		out.modules[n] = s.modules[n]
	}
	return out.seal()
}

func (s *Set) flatten() {
	n := 0
	for _, m := range s.modules {
		n += len(m.entries)
	}
	s.flat = make([]Entry, 0, n)
	for _, name := range s.order {
		s.flat = append(s.flat, s.modules[name].entries...)
	}
}
