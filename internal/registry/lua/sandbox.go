package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts what module code can reach.
type Sandbox struct {
	L *lua.LState

	modules map[string]lua.LValue
}

// Functions removed from the base library.
var unsafeGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"module",
	"require",
	"getfenv",
	"setfenv",
	"collectgarbage",
}

// NewSandbox creates a sandbox for L.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{L: L, modules: make(map[string]lua.LValue)}
}

// Install removes unsafe globals and replaces require with a whitelist of
// the opened libraries plus modules added with Provide.
func (s *Sandbox) Install() {
	for _, name := range unsafeGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}

	for _, name := range []string{"string", "table", "math"} {
		if v := s.L.GetGlobal(name); v != lua.LNil {
			s.modules[name] = v
		}
	}

	s.L.SetGlobal("require", s.L.NewFunction(s.require))
}

// Provide makes value available to require(name).
func (s *Sandbox) Provide(name string, value lua.LValue) {
	s.modules[name] = value
}

// SetPrint replaces the global print.
func (s *Sandbox) SetPrint(fn func(msg string)) {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		msg := ""
		for i := 1; i <= n; i++ {
			if i > 1 {
				msg += "\t"
			}
			msg += L.ToStringMeta(L.Get(i)).String()
		}
		fn(msg)
		return 0
	}))
}

func (s *Sandbox) require(L *lua.LState) int {
	name := L.CheckString(1)
	if v, ok := s.modules[name]; ok {
		L.Push(v)
		return 1
	}
	L.RaiseError("module %q is not available", name)
	return 0
}
