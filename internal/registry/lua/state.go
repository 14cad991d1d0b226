package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultLoadTimeout bounds the execution of a module's top-level code.
const DefaultLoadTimeout = 5 * time.Second

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. Every entry point takes the
// mutex, so calls into one module are serialized.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool

	sandbox *Sandbox
}

// NewState creates a state with only the base, table, string and math
// libraries and the sandbox installed.
func NewState() *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(L)

	s := &State{L: L, sandbox: NewSandbox(L)}
	s.sandbox.Install()
	return s
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Not opened: io, os, debug, package, channel, coroutine.
}

// Sandbox returns the state's sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// DoFile executes a Lua file under ctx.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.with(ctx, func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// DoString executes Lua source under ctx.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.with(ctx, func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// Call invokes fn with the values produced by args. args runs with the
// state locked and may allocate tables.
func (s *State) Call(ctx context.Context, fn *lua.LFunction, args func(L *lua.LState) []lua.LValue) error {
	return s.with(ctx, func(L *lua.LState) error {
		top := L.GetTop()
		defer L.SetTop(top)

		L.Push(fn)
		var argv []lua.LValue
		if args != nil {
			argv = args(L)
		}
		for _, a := range argv {
			L.Push(a)
		}
		return L.PCall(len(argv), 0, nil)
	})
}

// with runs fn with the state locked, ctx attached and panics recovered.
func (s *State) with(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(s.L)
}

// IsClosed reports whether Close was called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the state. It waits for a call in progress.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
